package repository

import (
	"context"

	"avisflow/internal/domain/model"
)

type WorkItemRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.WorkItem, error)
	// ListIDsAfter returns up to limit active work-item IDs strictly
	// greater than afterID, ascending. afterID == "" starts from the
	// beginning. When includeInactive is set, inactive items are returned
	// too. This is the keyset pagination primitive the bulk scheduler
	// builds cursor ranges from.
	ListIDsAfter(ctx context.Context, afterID string, limit int, includeInactive bool) ([]string, error)
	UpdateMetaDescription(ctx context.Context, tx Tx, id, metaDescription string) error
	TouchGeneratedAt(ctx context.Context, tx Tx, id string) error
}
