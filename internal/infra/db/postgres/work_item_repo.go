package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/repository"
)

var _ repository.WorkItemRepository = (*workItemRepo)(nil)

// workItemRepo is the read-mostly side of the listing catalog; rows are
// seeded by the import pipeline, this service only stamps metadata and
// generation times.
type workItemRepo struct {
	pool *pgxpool.Pool
}

func NewWorkItemRepo(pool *pgxpool.Pool) *workItemRepo {
	return &workItemRepo{pool: pool}
}

func (r *workItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.WorkItem, error) {
	const q = `
SELECT id, company_id, company_name, city, category, subcategory, naf_label,
  meta_description, is_active, last_generated_at, created_at, updated_at
FROM work_items
WHERE id = $1;`

	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}

	var wi model.WorkItem
	if err := row.Scan(&wi.ID, &wi.CompanyID, &wi.CompanyName, &wi.City, &wi.Category,
		&wi.Subcategory, &wi.NAFLabel, &wi.MetaDescription, &wi.IsActive,
		&wi.LastGeneratedAt, &wi.CreatedAt, &wi.UpdatedAt); err != nil {
		return nil, translateScanErr(err)
	}
	return &wi, nil
}

// ListIDsAfter is the keyset pagination primitive: ids are ULIDs, so the
// btree index on the primary key serves "next page" without scanning
// skipped rows.
func (r *workItemRepo) ListIDsAfter(ctx context.Context, afterID string, limit int, includeInactive bool) ([]string, error) {
	const q = `
SELECT id
FROM work_items
WHERE id > $1 AND (is_active OR $3)
ORDER BY id
LIMIT $2;`

	rows, err := queryRows(ctx, r.pool, nil, q, afterID, limit, includeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *workItemRepo) UpdateMetaDescription(ctx context.Context, tx repository.Tx, id, metaDescription string) error {
	const q = `UPDATE work_items SET meta_description = $2, updated_at = now() WHERE id = $1;`
	affected, err := execSQL(ctx, r.pool, tx, q, id, metaDescription)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *workItemRepo) TouchGeneratedAt(ctx context.Context, tx repository.Tx, id string) error {
	const q = `UPDATE work_items SET last_generated_at = now(), updated_at = now() WHERE id = $1;`
	affected, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
