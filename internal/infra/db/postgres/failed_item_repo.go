package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/repository"
)

var _ repository.FailedItemRepository = (*failedItemRepo)(nil)

type failedItemRepo struct {
	pool *pgxpool.Pool
}

func NewFailedItemRepo(pool *pgxpool.Pool) *failedItemRepo {
	return &failedItemRepo{pool: pool}
}

const failedItemColumns = `
id, batch_id, item_type, item_id, item_data, error_type, error_message,
retry_count, max_retries, last_retry_at, resolved_at, is_resolved,
created_at, updated_at`

func (r *failedItemRepo) Save(ctx context.Context, tx repository.Tx, item *model.FailedItem) error {
	if item.ID == "" {
		item.ID = ulid.Make().String()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.UpdatedAt = time.Now()

	data, err := json.Marshal(item.ItemData)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO failed_items (id, batch_id, item_type, item_id, item_data, error_type, error_message,
  retry_count, max_retries, last_retry_at, resolved_at, is_resolved, created_at, updated_at)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (id) DO UPDATE SET
  retry_count = EXCLUDED.retry_count,
  last_retry_at = EXCLUDED.last_retry_at,
  resolved_at = EXCLUDED.resolved_at,
  is_resolved = EXCLUDED.is_resolved,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		item.ID, item.BatchID, item.ItemType, item.ItemID, data, item.ErrorType, item.ErrorMessage,
		item.RetryCount, item.MaxRetries, item.LastRetryAt, item.ResolvedAt, item.IsResolved,
		item.CreatedAt, item.UpdatedAt)
	return err
}

func (r *failedItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.FailedItem, error) {
	const q = `SELECT ` + failedItemColumns + ` FROM failed_items WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanFailedItem(row)
}

// ListForRetry orders by retry_count then created_at so fresh failures
// are not starved behind repeatedly-retried ones.
func (r *failedItemRepo) ListForRetry(ctx context.Context, itemType string, limit int) ([]*model.FailedItem, error) {
	const q = `
SELECT ` + failedItemColumns + `
FROM failed_items
WHERE NOT is_resolved
  AND retry_count < max_retries
  AND ($1 = '' OR item_type = $1)
ORDER BY retry_count, created_at
LIMIT $2;`

	rows, err := queryRows(ctx, r.pool, nil, q, itemType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.FailedItem
	for rows.Next() {
		item, err := scanFailedItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func scanFailedItem(row pgx.Row) (*model.FailedItem, error) {
	var item model.FailedItem
	var batchID *string
	var data []byte
	err := row.Scan(
		&item.ID, &batchID, &item.ItemType, &item.ItemID, &data, &item.ErrorType, &item.ErrorMessage,
		&item.RetryCount, &item.MaxRetries, &item.LastRetryAt, &item.ResolvedAt, &item.IsResolved,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, translateScanErr(err)
	}
	if batchID != nil {
		item.BatchID = *batchID
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &item.ItemData); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &item, nil
}
