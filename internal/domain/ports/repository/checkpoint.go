package repository

import (
	"context"
	"time"

	"avisflow/internal/domain/model"
)

// BatchStats is the aggregate view served by the checkpoint store.
type BatchStats struct {
	TotalBatches int
	Pending      int
	Processing   int
	Completed    int
	Failed       int

	ItemsProcessed int
	ItemsSuccess   int
	ItemsFailed    int
	SuccessRate    float64

	FailedItemsTotal      int
	FailedItemsUnresolved int
	FailedItemsResolved   int
}

type BatchRepository interface {
	Save(ctx context.Context, tx Tx, b *model.Batch) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Batch, error)
	// UpdateStatus performs a guarded single-record transition: the update
	// applies only when the batch currently has `from` status. It returns
	// domain.ErrInvalidTransition when the guard does not match.
	UpdateStatus(ctx context.Context, tx Tx, id string, from, to model.BatchStatus) error
	ListByStatus(ctx context.Context, batchType string, status model.BatchStatus) ([]*model.Batch, error)
	// ListFailedForRetry returns failed batches created within maxAge whose
	// retry budget is not exhausted, least-retried first.
	ListFailedForRetry(ctx context.Context, batchType string, maxAge time.Duration) ([]*model.Batch, error)
	// LastCompleted returns the most recently created completed batch of
	// the given type, or domain.ErrNotFound.
	LastCompleted(ctx context.Context, batchType string) (*model.Batch, error)
	Stats(ctx context.Context) (*BatchStats, error)
}

type FailedItemRepository interface {
	Save(ctx context.Context, tx Tx, item *model.FailedItem) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.FailedItem, error)
	// ListForRetry returns unresolved items with retries remaining,
	// ordered retry_count ascending then created_at ascending so fresh
	// failures are not starved behind exhausted ones.
	ListForRetry(ctx context.Context, itemType string, limit int) ([]*model.FailedItem, error)
}
