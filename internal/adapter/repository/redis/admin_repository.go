package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/leadhook/internal/domain"
)

// AdminRepository implements domain.StreamAdminRepository for the lead stream.
type AdminRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewAdminRepository creates a new Redis admin repository.
func NewAdminRepository(client *redis.Client, logger *slog.Logger) *AdminRepository {
	return &AdminRepository{
		client: client,
		logger: logger.With("component", "stream_admin"),
	}
}

func (r *AdminRepository) GetGroupInfo(ctx context.Context) ([]domain.ConsumerGroupInfo, error) {
	groups, err := r.client.XInfoGroups(ctx, LeadStreamKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get group info for stream %s: %w", LeadStreamKey, err)
	}

	result := make([]domain.ConsumerGroupInfo, len(groups))
	for i, g := range groups {
		result[i] = domain.ConsumerGroupInfo{
			Name:            g.Name,
			Consumers:       g.Consumers,
			Pending:         g.Pending,
			Lag:             g.Lag,
			EntriesRead:     g.EntriesRead,
			LastDeliveredID: g.LastDeliveredID,
		}
	}
	return result, nil
}

func (r *AdminRepository) GetPendingSummary(ctx context.Context, group string) (*domain.PendingLeadSummary, error) {
	pending, err := r.client.XPending(ctx, LeadStreamKey, group).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get pending summary for group %s: %w", group, err)
	}

	return &domain.PendingLeadSummary{
		Total:          pending.Count,
		FirstMessageID: pending.Lower,
		LastMessageID:  pending.Higher,
		ConsumerTotals: pending.Consumers,
	}, nil
}

// TrimStream trims the lead stream to approximately maxLen entries and
// returns how many were removed.
func (r *AdminRepository) TrimStream(ctx context.Context, maxLen int64) (int64, error) {
	n, err := r.client.XTrimMaxLenApprox(ctx, LeadStreamKey, maxLen, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to trim stream %s: %w", LeadStreamKey, err)
	}
	r.logger.Info("trimmed lead stream", "maxlen", maxLen, "removed", n)
	return n, nil
}

var _ domain.StreamAdminRepository = (*AdminRepository)(nil)
