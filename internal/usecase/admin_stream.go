package usecase

import (
	"context"
	"fmt"

	"github.com/V4T54L/leadhook/internal/domain"
)

// LeadGroup is the consumer group that sinks leads into PostgreSQL.
const LeadGroup = "lead-sinks"

// AdminStreamUseCase inspects and maintains the lead stream.
type AdminStreamUseCase struct {
	repo domain.StreamAdminRepository
}

// NewAdminStreamUseCase creates a new AdminStreamUseCase.
func NewAdminStreamUseCase(repo domain.StreamAdminRepository) *AdminStreamUseCase {
	return &AdminStreamUseCase{repo: repo}
}

func (uc *AdminStreamUseCase) GetGroupInfo(ctx context.Context) ([]domain.ConsumerGroupInfo, error) {
	return uc.repo.GetGroupInfo(ctx)
}

// GetPendingSummary defaults to the sink group when group is empty.
func (uc *AdminStreamUseCase) GetPendingSummary(ctx context.Context, group string) (*domain.PendingLeadSummary, error) {
	if group == "" {
		group = LeadGroup
	}
	return uc.repo.GetPendingSummary(ctx, group)
}

// TrimStream caps the stream at approximately maxLen entries.
func (uc *AdminStreamUseCase) TrimStream(ctx context.Context, maxLen int64) (int64, error) {
	if maxLen <= 0 {
		return 0, fmt.Errorf("maxlen must be positive, got %d", maxLen)
	}
	return uc.repo.TrimStream(ctx, maxLen)
}
