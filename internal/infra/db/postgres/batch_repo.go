package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/repository"
)

var _ repository.BatchRepository = (*batchRepo)(nil)

type batchRepo struct {
	pool *pgxpool.Pool
}

func NewBatchRepo(pool *pgxpool.Pool) *batchRepo {
	return &batchRepo{pool: pool}
}

const batchColumns = `
id, batch_type, size, status, retry_count, max_retries, query_params,
items_processed, items_success, items_failed,
started_at, completed_at, duration_seconds,
last_error, error_details, created_at, updated_at`

func (r *batchRepo) Save(ctx context.Context, tx repository.Tx, b *model.Batch) error {
	if b.ID == "" {
		// ULIDs sort by creation time, which LastCompleted relies on.
		b.ID = ulid.Make().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}
	b.UpdatedAt = time.Now()

	params, err := json.Marshal(b.QueryParams)
	if err != nil {
		return err
	}
	details, err := json.Marshal(b.ErrorDetails)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO batches (id, batch_type, size, status, retry_count, max_retries, query_params,
  items_processed, items_success, items_failed,
  started_at, completed_at, duration_seconds, last_error, error_details, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
ON CONFLICT (id) DO UPDATE SET
  status = EXCLUDED.status,
  retry_count = EXCLUDED.retry_count,
  query_params = EXCLUDED.query_params,
  items_processed = EXCLUDED.items_processed,
  items_success = EXCLUDED.items_success,
  items_failed = EXCLUDED.items_failed,
  started_at = EXCLUDED.started_at,
  completed_at = EXCLUDED.completed_at,
  duration_seconds = EXCLUDED.duration_seconds,
  last_error = EXCLUDED.last_error,
  error_details = EXCLUDED.error_details,
  updated_at = EXCLUDED.updated_at;`

	_, err = execSQL(ctx, r.pool, tx, q,
		b.ID, b.Type, b.Size, string(b.Status), b.RetryCount, b.MaxRetries, params,
		b.ItemsProcessed, b.ItemsSuccess, b.ItemsFailed,
		b.StartedAt, b.CompletedAt, b.DurationSeconds,
		b.LastError, details, b.CreatedAt, b.UpdatedAt)
	return err
}

func (r *batchRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Batch, error) {
	row, err := pickRow(ctx, r.pool, tx, `SELECT `+batchColumns+` FROM batches WHERE id = $1;`, id)
	if err != nil {
		return nil, err
	}
	return scanBatch(row)
}

// UpdateStatus is a guarded single-record transition: it only applies
// when the batch currently has the `from` status, so concurrent workers
// cannot double-start the same batch.
func (r *batchRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, from, to model.BatchStatus) error {
	const q = `
UPDATE batches
SET status = $3,
    started_at = CASE WHEN $3 = 'processing' THEN now() ELSE started_at END,
    updated_at = now()
WHERE id = $1 AND status = $2;`

	affected, err := execSQL(ctx, r.pool, tx, q, id, string(from), string(to))
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := r.FindByID(ctx, tx, id); errors.Is(err, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *batchRepo) ListByStatus(ctx context.Context, batchType string, status model.BatchStatus) ([]*model.Batch, error) {
	const q = `
SELECT ` + batchColumns + `
FROM batches
WHERE status = $1 AND ($2 = '' OR batch_type = $2)
ORDER BY created_at;`

	rows, err := queryRows(ctx, r.pool, nil, q, string(status), batchType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *batchRepo) ListFailedForRetry(ctx context.Context, batchType string, maxAge time.Duration) ([]*model.Batch, error) {
	const q = `
SELECT ` + batchColumns + `
FROM batches
WHERE status = 'failed'
  AND retry_count < max_retries
  AND created_at >= $1
  AND ($2 = '' OR batch_type = $2)
ORDER BY retry_count, created_at;`

	rows, err := queryRows(ctx, r.pool, nil, q, time.Now().Add(-maxAge), batchType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatches(rows)
}

func (r *batchRepo) LastCompleted(ctx context.Context, batchType string) (*model.Batch, error) {
	const q = `
SELECT ` + batchColumns + `
FROM batches
WHERE status = 'completed' AND batch_type = $1
ORDER BY created_at DESC
LIMIT 1;`

	row, err := pickRow(ctx, r.pool, nil, q, batchType)
	if err != nil {
		return nil, err
	}
	return scanBatch(row)
}

func (r *batchRepo) Stats(ctx context.Context) (*repository.BatchStats, error) {
	st := &repository.BatchStats{}

	const batchQ = `
SELECT count(*),
  count(*) FILTER (WHERE status = 'pending'),
  count(*) FILTER (WHERE status = 'processing'),
  count(*) FILTER (WHERE status = 'completed'),
  count(*) FILTER (WHERE status = 'failed'),
  COALESCE(SUM(items_processed), 0),
  COALESCE(SUM(items_success), 0),
  COALESCE(SUM(items_failed), 0)
FROM batches;`

	row, err := pickRow(ctx, r.pool, nil, batchQ)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&st.TotalBatches, &st.Pending, &st.Processing, &st.Completed, &st.Failed,
		&st.ItemsProcessed, &st.ItemsSuccess, &st.ItemsFailed); err != nil {
		return nil, translateScanErr(err)
	}
	if st.ItemsProcessed > 0 {
		st.SuccessRate = float64(st.ItemsSuccess) / float64(st.ItemsProcessed) * 100
	}

	const itemQ = `
SELECT count(*),
  count(*) FILTER (WHERE NOT is_resolved),
  count(*) FILTER (WHERE is_resolved)
FROM failed_items;`

	row, err = pickRow(ctx, r.pool, nil, itemQ)
	if err != nil {
		return nil, err
	}
	if err := row.Scan(&st.FailedItemsTotal, &st.FailedItemsUnresolved, &st.FailedItemsResolved); err != nil {
		return nil, translateScanErr(err)
	}
	return st, nil
}

func scanBatch(row pgx.Row) (*model.Batch, error) {
	var b model.Batch
	var status string
	var params, details []byte
	err := row.Scan(
		&b.ID, &b.Type, &b.Size, &status, &b.RetryCount, &b.MaxRetries, &params,
		&b.ItemsProcessed, &b.ItemsSuccess, &b.ItemsFailed,
		&b.StartedAt, &b.CompletedAt, &b.DurationSeconds,
		&b.LastError, &details, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, translateScanErr(err)
	}
	b.Status = model.BatchStatus(status)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &b.QueryParams); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &b.ErrorDetails); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return &b, nil
}

func scanBatches(rows pgx.Rows) ([]*model.Batch, error) {
	var out []*model.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
