package domain

// ConsumerGroupInfo describes a consumer group reading the lead stream.
// Lag is the number of leads not yet delivered to the group; it is reported
// by Redis 7 and later and is zero otherwise.
type ConsumerGroupInfo struct {
	Name            string `json:"name"`
	Consumers       int64  `json:"consumers"`
	Pending         int64  `json:"pending"`
	Lag             int64  `json:"lag"`
	EntriesRead     int64  `json:"entries_read"`
	LastDeliveredID string `json:"last_delivered_id"`
}

// PendingLeadSummary summarises leads delivered to a group but not yet acknowledged.
type PendingLeadSummary struct {
	Total          int64            `json:"total"`
	FirstMessageID string           `json:"first_message_id,omitempty"`
	LastMessageID  string           `json:"last_message_id,omitempty"`
	ConsumerTotals map[string]int64 `json:"consumer_totals,omitempty"`
}
