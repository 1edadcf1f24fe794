package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/repository"
	"avisflow/internal/infra/metrics"
)

const (
	DefaultBatchMaxRetries = 5
	DefaultItemMaxRetries  = 3
)

// CheckpointStore tracks batch-level and item-level progress so large
// runs can resume after a crash and individual failures can be retried
// without re-running whole batches.
type CheckpointStore struct {
	batches repository.BatchRepository
	items   repository.FailedItemRepository
	log     *zerolog.Logger
}

func NewCheckpointStore(
	batches repository.BatchRepository,
	items repository.FailedItemRepository,
	log *zerolog.Logger,
) *CheckpointStore {
	return &CheckpointStore{batches: batches, items: items, log: log}
}

func (s *CheckpointStore) CreateBatch(ctx context.Context, batchType string, size int, params map[string]any) (*model.Batch, error) {
	b := &model.Batch{
		Type:        batchType,
		Size:        size,
		Status:      model.BatchStatusPending,
		MaxRetries:  DefaultBatchMaxRetries,
		QueryParams: params,
		CreatedAt:   time.Now(),
	}
	if b.QueryParams == nil {
		b.QueryParams = map[string]any{}
	}
	if err := s.batches.Save(ctx, nil, b); err != nil {
		return nil, err
	}
	metrics.IncBatch(string(model.BatchStatusPending))
	s.log.Info().Str("batch_id", b.ID).Str("batch_type", batchType).Int("size", size).Msg("batch created")
	return b, nil
}

// StartBatch transitions pending -> processing and stamps the start time.
func (s *CheckpointStore) StartBatch(ctx context.Context, id string) (*model.Batch, error) {
	if err := s.batches.UpdateStatus(ctx, nil, id, model.BatchStatusPending, model.BatchStatusProcessing); err != nil {
		return nil, err
	}
	b, err := s.batches.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	metrics.IncBatch(string(model.BatchStatusProcessing))
	s.log.Info().Str("batch_id", id).Msg("batch started")
	return b, nil
}

// CompleteBatch transitions processing -> completed, recording counts
// and duration. items_success + items_failed == items_processed by
// construction.
func (s *CheckpointStore) CompleteBatch(ctx context.Context, id string, successCount, failedCount int) (*model.Batch, error) {
	b, err := s.batches.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	b.Status = model.BatchStatusCompleted
	b.CompletedAt = &now
	b.ItemsSuccess = successCount
	b.ItemsFailed = failedCount
	b.ItemsProcessed = successCount + failedCount
	if b.StartedAt != nil {
		b.DurationSeconds = now.Sub(*b.StartedAt).Seconds()
	}
	if err := s.batches.Save(ctx, nil, b); err != nil {
		return nil, err
	}
	metrics.IncBatch(string(model.BatchStatusCompleted))
	s.log.Info().
		Str("batch_id", id).
		Int("success", successCount).
		Int("failed", failedCount).
		Msg("batch completed")
	return b, nil
}

func (s *CheckpointStore) FailBatch(ctx context.Context, id, errorMessage string, details map[string]any) (*model.Batch, error) {
	b, err := s.batches.FindByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	b.Status = model.BatchStatusFailed
	b.CompletedAt = &now
	b.LastError = errorMessage
	b.ErrorDetails = details
	b.RetryCount++
	if b.StartedAt != nil {
		b.DurationSeconds = now.Sub(*b.StartedAt).Seconds()
	}
	if err := s.batches.Save(ctx, nil, b); err != nil {
		return nil, err
	}
	metrics.IncBatch(string(model.BatchStatusFailed))
	s.log.Error().
		Str("batch_id", id).
		Int("retry_count", b.RetryCount).
		Int("max_retries", b.MaxRetries).
		Str("error", errorMessage).
		Msg("batch failed")
	return b, nil
}

func (s *CheckpointStore) LogFailedItem(ctx context.Context, batchID, itemType, itemID string, itemData map[string]any, cause error, maxRetries int) (*model.FailedItem, error) {
	if maxRetries <= 0 {
		maxRetries = DefaultItemMaxRetries
	}
	item := &model.FailedItem{
		BatchID:      batchID,
		ItemType:     itemType,
		ItemID:       itemID,
		ItemData:     itemData,
		ErrorType:    errorType(cause),
		ErrorMessage: cause.Error(),
		MaxRetries:   maxRetries,
		CreatedAt:    time.Now(),
	}
	if item.ItemData == nil {
		item.ItemData = map[string]any{}
	}
	if err := s.items.Save(ctx, nil, item); err != nil {
		return nil, err
	}
	metrics.IncFailedItem(itemType, item.ErrorType)
	s.log.Warn().
		Str("batch_id", batchID).
		Str("item_type", itemType).
		Str("item_id", itemID).
		Str("error_type", item.ErrorType).
		Msg("failed item recorded")
	return item, nil
}

// RetryFailedItem increments the retry counter and stamps the attempt.
// It returns false without mutation when the item cannot be retried.
func (s *CheckpointStore) RetryFailedItem(ctx context.Context, id string) (bool, error) {
	item, err := s.items.FindByID(ctx, nil, id)
	if err != nil {
		return false, err
	}
	if !item.CanRetry() {
		s.log.Warn().
			Str("item_id", id).
			Int("retry_count", item.RetryCount).
			Int("max_retries", item.MaxRetries).
			Msg("item retry refused")
		return false, nil
	}
	now := time.Now()
	item.RetryCount++
	item.LastRetryAt = &now
	if err := s.items.Save(ctx, nil, item); err != nil {
		return false, err
	}
	s.log.Info().
		Str("item_id", id).
		Str("item_type", item.ItemType).
		Int("retry_count", item.RetryCount).
		Msg("item retry granted")
	return true, nil
}

func (s *CheckpointStore) MarkItemResolved(ctx context.Context, id string) error {
	item, err := s.items.FindByID(ctx, nil, id)
	if err != nil {
		return err
	}
	now := time.Now()
	item.IsResolved = true
	item.ResolvedAt = &now
	if err := s.items.Save(ctx, nil, item); err != nil {
		return err
	}
	s.log.Info().Str("item_id", id).Msg("item resolved")
	return nil
}

func (s *CheckpointStore) GetPendingBatches(ctx context.Context, batchType string) ([]*model.Batch, error) {
	return s.batches.ListByStatus(ctx, batchType, model.BatchStatusPending)
}

// ListBatches filters by status, optionally narrowed to one type.
func (s *CheckpointStore) ListBatches(ctx context.Context, batchType string, status model.BatchStatus) ([]*model.Batch, error) {
	return s.batches.ListByStatus(ctx, batchType, status)
}

func (s *CheckpointStore) GetFailedBatchesForRetry(ctx context.Context, batchType string, maxAge time.Duration) ([]*model.Batch, error) {
	return s.batches.ListFailedForRetry(ctx, batchType, maxAge)
}

func (s *CheckpointStore) GetFailedItemsForRetry(ctx context.Context, itemType string, limit int) ([]*model.FailedItem, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.items.ListForRetry(ctx, itemType, limit)
}

func (s *CheckpointStore) GetStats(ctx context.Context) (*repository.BatchStats, error) {
	return s.batches.Stats(ctx)
}

// LastCompletedCursor returns the end_at_id of the most recent completed
// batch of the given type, "" when there is none. This is the resume
// point for the bulk scheduler.
func (s *CheckpointStore) LastCompletedCursor(ctx context.Context, batchType string) (string, error) {
	b, err := s.batches.LastCompleted(ctx, batchType)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return b.EndAtID(), nil
}

func errorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrPollExhausted):
		return "poll_exhausted"
	case errors.Is(err, domain.ErrJobFailed):
		return "job_failed"
	case errors.Is(err, domain.ErrContentRejected):
		return "content_rejected"
	default:
		return "error"
	}
}
