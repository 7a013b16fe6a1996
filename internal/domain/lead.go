package domain

import (
	"encoding/json"
	"time"
)

// UserColumn is a single answer from the ad platform's lead form.
type UserColumn struct {
	ColumnName  string `json:"column_name,omitempty"`
	StringValue string `json:"string_value"`
	ColumnID    string `json:"column_id,omitempty"`
}

// Lead is one inbound lead delivery, stored under its advertiser's key.
type Lead struct {
	ID             string          `json:"id"`
	OwnerKey       string          `json:"owner_key"`
	LeadID         string          `json:"lead_id"`
	APIVersion     string          `json:"api_version,omitempty"`
	FormID         int64           `json:"form_id"`
	CampaignID     int64           `json:"campaign_id,omitempty"`
	AdGroupID      int64           `json:"adgroup_id,omitempty"`
	CreativeID     int64           `json:"creative_id,omitempty"`
	GclID          string          `json:"gcl_id,omitempty"`
	GoogleKey      string          `json:"google_key,omitempty"`
	IsTest         bool            `json:"is_test"`
	UserColumnData []UserColumn    `json:"user_column_data,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
	Payload        json.RawMessage `json:"payload,omitempty"`

	StreamMessageID string `json:"-"` // set when read back from the buffer stream
}
