package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/V4T54L/leadhook/internal/domain"
)

// MessageWriter is the part of *kafka.Writer the notifier uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// leadEvent is the message published for every accepted lead.
type leadEvent struct {
	ID             string              `json:"id"`
	OwnerKey       string              `json:"owner_key"`
	LeadID         string              `json:"lead_id"`
	FormID         int64               `json:"form_id"`
	CampaignID     int64               `json:"campaign_id,omitempty"`
	IsTest         bool                `json:"is_test"`
	UserColumnData []domain.UserColumn `json:"user_column_data,omitempty"`
	ReceivedAt     time.Time           `json:"received_at"`
}

// KafkaNotifier publishes lead-arrival events for downstream delivery
// (email, CRM sync). Messages are keyed by owner so that one advertiser's
// events stay ordered within a partition.
type KafkaNotifier struct {
	writer MessageWriter
	logger *slog.Logger
}

// NewKafkaWriter creates an asynchronous writer for topic on brokers.
// WriteMessages only enqueues, so a broker outage never holds up a webhook
// response; failed deliveries are logged by the completion callback.
func NewKafkaWriter(brokers []string, topic string, logger *slog.Logger) *kafka.Writer {
	logger = logger.With("component", "kafka_writer", "topic", topic)
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
		Async:                  true,
		Completion:             logCompletion(logger),
	}
}

func logCompletion(logger *slog.Logger) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		keys := make([]string, 0, len(messages))
		for _, m := range messages {
			keys = append(keys, string(m.Key))
		}
		logger.Error("failed to deliver lead events", "error", err, "count", len(messages), "owner_keys", keys)
	}
}

// NewKafkaNotifier creates a new KafkaNotifier.
func NewKafkaNotifier(writer MessageWriter, logger *slog.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, logger: logger.With("component", "lead_notifier")}
}

// NotifyLead publishes the lead. Callers are expected to pass a redacted copy;
// the raw payload and credential are never included.
func (n *KafkaNotifier) NotifyLead(ctx context.Context, lead domain.Lead) error {
	value, err := json.Marshal(leadEvent{
		ID:             lead.ID,
		OwnerKey:       lead.OwnerKey,
		LeadID:         lead.LeadID,
		FormID:         lead.FormID,
		CampaignID:     lead.CampaignID,
		IsTest:         lead.IsTest,
		UserColumnData: lead.UserColumnData,
		ReceivedAt:     lead.ReceivedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal lead event: %w", err)
	}

	msg := kafka.Message{Key: []byte(lead.OwnerKey), Value: value}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish lead event: %w", err)
	}
	n.logger.DebugContext(ctx, "published lead event", "lead_id", lead.LeadID, "owner_key", lead.OwnerKey)
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
