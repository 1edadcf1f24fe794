package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/repository"
)

var _ repository.ArtifactRepository = (*artifactRepo)(nil)

type artifactRepo struct {
	pool *pgxpool.Pool
}

func NewArtifactRepo(pool *pgxpool.Pool) *artifactRepo {
	return &artifactRepo{pool: pool}
}

// Upsert keys on (work_item_id, kind): re-applying a job result
// overwrites the previous artifact instead of accumulating rows.
func (r *artifactRepo) Upsert(ctx context.Context, tx repository.Tx, a *model.GeneratedArtifact) error {
	if a.ID == "" {
		a.ID = ulid.Make().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.UpdatedAt = time.Now()

	const q = `
INSERT INTO generated_artifacts (id, work_item_id, kind, text, source, rating,
  confidence_score, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (work_item_id, kind) DO UPDATE SET
  text = EXCLUDED.text,
  source = EXCLUDED.source,
  rating = EXCLUDED.rating,
  confidence_score = EXCLUDED.confidence_score,
  expires_at = EXCLUDED.expires_at,
  updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.WorkItemID, string(a.Kind), a.Text, a.Source, a.Rating,
		a.ConfidenceScore, a.ExpiresAt, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *artifactRepo) FindByWorkItem(ctx context.Context, tx repository.Tx, workItemID string, kind model.ContentKind) (*model.GeneratedArtifact, error) {
	const q = `
SELECT id, work_item_id, kind, text, source, rating, confidence_score, expires_at, created_at, updated_at
FROM generated_artifacts
WHERE work_item_id = $1 AND kind = $2;`

	row, err := pickRow(ctx, r.pool, tx, q, workItemID, string(kind))
	if err != nil {
		return nil, err
	}

	var a model.GeneratedArtifact
	var k string
	if err := row.Scan(&a.ID, &a.WorkItemID, &k, &a.Text, &a.Source, &a.Rating,
		&a.ConfidenceScore, &a.ExpiresAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, translateScanErr(err)
	}
	a.Kind = model.ContentKind(k)
	return &a, nil
}
