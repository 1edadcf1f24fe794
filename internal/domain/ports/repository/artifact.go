package repository

import (
	"context"

	"avisflow/internal/domain/model"
)

type ArtifactRepository interface {
	// Upsert creates or overwrites the artifact keyed by
	// (work_item_id, kind).
	Upsert(ctx context.Context, tx Tx, a *model.GeneratedArtifact) error
	FindByWorkItem(ctx context.Context, tx Tx, workItemID string, kind model.ContentKind) (*model.GeneratedArtifact, error)
}
