package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/V4T54L/leadhook/internal/adapter/metrics"
	"github.com/V4T54L/leadhook/internal/domain"
)

const (
	defaultBatchSize    = 500
	defaultRetryCount   = 3
	defaultRetryBackoff = 1 * time.Second
)

// ProcessLeadsUseCase moves buffered leads into the sink.
type ProcessLeadsUseCase struct {
	buffer       domain.LeadBuffer
	sink         domain.LeadSink
	logger       *slog.Logger
	metrics      *metrics.Metrics
	group        string
	consumer     string
	batchSize    int
	retryCount   int
	retryBackoff time.Duration
}

// NewProcessLeadsUseCase creates a new use case for sinking leads.
func NewProcessLeadsUseCase(
	buffer domain.LeadBuffer,
	sink domain.LeadSink,
	logger *slog.Logger,
	group, consumer string,
	batchSize, retryCount int,
	retryBackoff time.Duration,
) *ProcessLeadsUseCase {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if retryCount <= 0 {
		retryCount = defaultRetryCount
	}
	if retryBackoff < 0 {
		retryBackoff = defaultRetryBackoff
	}
	return &ProcessLeadsUseCase{
		buffer:       buffer,
		sink:         sink,
		logger:       logger.With("component", "lead_processor", "consumer", consumer),
		group:        group,
		consumer:     consumer,
		batchSize:    batchSize,
		retryCount:   retryCount,
		retryBackoff: retryBackoff,
	}
}

// WithMetrics attaches sink counters.
func (uc *ProcessLeadsUseCase) WithMetrics(m *metrics.Metrics) *ProcessLeadsUseCase {
	uc.metrics = m
	return uc
}

// ProcessBatch reads one batch, writes it to the sink and acknowledges it.
// A batch the sink keeps rejecting is moved to the DLQ and then acknowledged,
// in which case the sink error is returned along with a zero count.
func (uc *ProcessLeadsUseCase) ProcessBatch(ctx context.Context) (int, error) {
	leads, err := uc.buffer.ReadLeadBatch(ctx, uc.group, uc.consumer, uc.batchSize)
	if err != nil {
		uc.logger.Error("failed to read lead batch from buffer", "error", err)
		return 0, err
	}
	if len(leads) == 0 {
		return 0, nil
	}

	uc.logger.Debug("read batch of leads from buffer", "count", len(leads))

	messageIDs := make([]string, len(leads))
	for i, lead := range leads {
		messageIDs[i] = lead.StreamMessageID
	}

	if sinkErr := uc.writeWithRetry(ctx, leads); sinkErr != nil {
		uc.logger.Error("failed to write lead batch to sink after retries, moving to DLQ", "error", sinkErr, "count", len(leads))
		if err := uc.buffer.MoveToDLQ(ctx, leads); err != nil {
			// Leave the batch pending so it is redelivered.
			uc.logger.Error("failed to move leads to DLQ", "error", err)
			return 0, err
		}
		if uc.metrics != nil {
			uc.metrics.LeadsDeadLetteredTotal.Add(float64(len(leads)))
		}
		if err := uc.buffer.AcknowledgeLeads(ctx, uc.group, messageIDs...); err != nil {
			uc.logger.Error("failed to acknowledge dead-lettered leads", "error", err)
			return 0, err
		}
		return 0, sinkErr
	}

	if err := uc.buffer.AcknowledgeLeads(ctx, uc.group, messageIDs...); err != nil {
		// The sink ignores duplicate ids, so redelivery is harmless.
		uc.logger.Error("failed to acknowledge leads in buffer", "error", err)
		return 0, err
	}

	if uc.metrics != nil {
		uc.metrics.LeadsSunkTotal.Add(float64(len(leads)))
	}
	uc.logger.Info("processed lead batch", "count", len(leads))
	return len(leads), nil
}

func (uc *ProcessLeadsUseCase) writeWithRetry(ctx context.Context, leads []domain.Lead) error {
	var lastErr error
	for i := 0; i < uc.retryCount; i++ {
		err := uc.sink.WriteLeadBatch(ctx, leads)
		if err == nil {
			return nil
		}
		lastErr = err
		uc.logger.Warn("failed to write batch to sink, retrying", "attempt", i+1, "error", err)
		if i == uc.retryCount-1 {
			break
		}
		select {
		case <-time.After(uc.retryBackoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
