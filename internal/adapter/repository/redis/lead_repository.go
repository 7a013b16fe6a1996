package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/leadhook/internal/adapter/metrics"
	"github.com/V4T54L/leadhook/internal/domain"
)

// LeadStreamKey is the Redis stream leads are buffered on.
const LeadStreamKey = "leads"

// LeadRepository implements domain.LeadBuffer on Redis Streams. When Redis is
// unreachable writes go to the WAL, which is replayed once Redis recovers.
type LeadRepository struct {
	client       *redis.Client
	logger       *slog.Logger
	wal          domain.WALRepository
	metrics      *metrics.Metrics
	dlqStreamKey string
	blockTimeout time.Duration
	isAvailable  atomic.Bool
}

// NewLeadRepository creates a Redis-backed lead buffer and ensures the
// consumer group exists. wal and m may be nil (consumers don't need a WAL).
func NewLeadRepository(client *redis.Client, logger *slog.Logger, group, dlqStreamKey string, wal domain.WALRepository, m *metrics.Metrics) *LeadRepository {
	repo := &LeadRepository{
		client:       client,
		logger:       logger.With("component", "lead_buffer"),
		wal:          wal,
		metrics:      m,
		dlqStreamKey: dlqStreamKey,
		blockTimeout: 2 * time.Second,
	}
	repo.isAvailable.Store(true)

	if err := repo.setupConsumerGroup(context.Background(), group); err != nil {
		repo.markUnavailable()
		repo.logger.Error("failed to set up consumer group, Redis may be unavailable on startup", "error", err)
	}

	return repo
}

// StartHealthCheck pings Redis every interval and replays the WAL after an
// outage. It blocks until ctx is done.
func (r *LeadRepository) StartHealthCheck(ctx context.Context, interval time.Duration) {
	if r.wal == nil {
		r.logger.Info("WAL is not configured, skipping health check")
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stopping Redis health check")
			return
		case <-ticker.C:
			if err := r.client.Ping(ctx).Err(); err != nil {
				if r.isAvailable.CompareAndSwap(true, false) {
					r.setWALGauge(1)
					r.logger.Error("Redis connection lost", "error", err)
				}
				continue
			}
			if r.isAvailable.CompareAndSwap(false, true) {
				// New writes go straight to Redis while the backlog drains.
				r.logger.Info("Redis connection recovered, replaying WAL")
				if err := r.ReplayWAL(ctx); err != nil {
					r.logger.Error("failed to replay WAL after Redis recovery", "error", err)
					r.markUnavailable()
					continue
				}
				r.setWALGauge(0)
			}
		}
	}
}

// ReplayWAL pushes every WAL entry to the stream and truncates the WAL.
func (r *LeadRepository) ReplayWAL(ctx context.Context) error {
	replayed := 0
	err := r.wal.Replay(ctx, func(lead domain.Lead) error {
		replayed++
		return r.addToStream(ctx, lead)
	})
	if err != nil {
		return fmt.Errorf("WAL replay failed: %w", err)
	}

	if err := r.wal.Truncate(ctx); err != nil {
		return fmt.Errorf("failed to truncate WAL after replay: %w", err)
	}

	r.logger.Info("WAL replay to Redis completed", "leads", replayed)
	return nil
}

func (r *LeadRepository) setupConsumerGroup(ctx context.Context, group string) error {
	err := r.client.XGroupCreateMkStream(ctx, LeadStreamKey, group, "0").Err()
	if err != nil && !isBusyGroupError(err) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (r *LeadRepository) BufferLead(ctx context.Context, lead domain.Lead) error {
	if !r.isAvailable.Load() {
		return r.writeToWAL(ctx, lead, nil)
	}

	err := r.addToStream(ctx, lead)
	if err == nil {
		return nil
	}
	if !isNetworkError(err) {
		return err
	}
	if r.isAvailable.CompareAndSwap(true, false) {
		r.logger.Error("Redis connection lost during write", "error", err)
	}
	r.markUnavailable()
	return r.writeToWAL(ctx, lead, err)
}

func (r *LeadRepository) writeToWAL(ctx context.Context, lead domain.Lead, cause error) error {
	if r.wal == nil {
		if cause != nil {
			return fmt.Errorf("redis is unavailable and WAL is not configured: %w", cause)
		}
		return errors.New("redis is unavailable and WAL is not configured")
	}
	r.logger.Warn("Redis is unavailable, writing lead to WAL", "id", lead.ID)
	return r.wal.Write(ctx, lead)
}

func (r *LeadRepository) addToStream(ctx context.Context, lead domain.Lead) error {
	payload, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("failed to marshal lead: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: LeadStreamKey,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	return nil
}

func (r *LeadRepository) ReadLeadBatch(ctx context.Context, group, consumer string, count int) ([]domain.Lead, error) {
	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{LeadStreamKey, ">"},
		Count:    int64(count),
		Block:    r.blockTimeout,
	}

	streams, err := r.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to XREADGROUP from redis: %w", err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	messages := streams[0].Messages
	leads := make([]domain.Lead, 0, len(messages))
	var unreadable []string
	for _, msg := range messages {
		lead, err := decodeLead(msg)
		if err != nil {
			r.logger.Warn("unreadable message in lead stream, acknowledging", "message_id", msg.ID, "error", err)
			unreadable = append(unreadable, msg.ID)
			continue
		}
		leads = append(leads, lead)
	}

	// Nothing can ever process these, so don't leave them pending.
	if len(unreadable) > 0 {
		if err := r.AcknowledgeLeads(ctx, group, unreadable...); err != nil {
			r.logger.Error("failed to acknowledge unreadable messages", "error", err)
		}
	}

	return leads, nil
}

func decodeLead(msg redis.XMessage) (domain.Lead, error) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		return domain.Lead{}, errors.New("missing payload field")
	}
	var lead domain.Lead
	if err := json.Unmarshal([]byte(payload), &lead); err != nil {
		return domain.Lead{}, err
	}
	lead.StreamMessageID = msg.ID
	return lead, nil
}

func (r *LeadRepository) AcknowledgeLeads(ctx context.Context, group string, messageIDs ...string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, LeadStreamKey, group, messageIDs...).Err(); err != nil {
		return fmt.Errorf("failed to XACK messages in redis: %w", err)
	}
	return nil
}

// MoveToDLQ copies leads to the dead-letter stream with their origin.
func (r *LeadRepository) MoveToDLQ(ctx context.Context, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}

	failedAt := time.Now().UTC().Format(time.RFC3339)
	pipe := r.client.Pipeline()
	for _, lead := range leads {
		payload, err := json.Marshal(lead)
		if err != nil {
			r.logger.Error("failed to marshal lead for DLQ", "id", lead.ID, "error", err)
			continue
		}
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: r.dlqStreamKey,
			Values: map[string]interface{}{
				"payload":         payload,
				"original_stream": LeadStreamKey,
				"original_msg_id": lead.StreamMessageID,
				"failed_at":       failedAt,
			},
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to execute DLQ pipeline: %w", err)
	}
	r.logger.Warn("moved leads to DLQ", "count", len(leads), "stream", r.dlqStreamKey)
	return nil
}

func (r *LeadRepository) markUnavailable() {
	r.isAvailable.Store(false)
	r.setWALGauge(1)
}

func (r *LeadRepository) setWALGauge(v float64) {
	if r.metrics != nil && r.wal != nil {
		r.metrics.WALActive.Set(v)
	}
}

func isBusyGroupError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func isNetworkError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) || errors.Is(err, redis.ErrClosed) || errors.Is(err, context.DeadlineExceeded)
}
