package model

import "time"

// FailedItem records one failed unit inside a batch, with enough of the
// input snapshotted in ItemData to retry it later.
type FailedItem struct {
	ID      string
	BatchID string

	ItemType string
	ItemID   string
	ItemData map[string]any

	ErrorType    string
	ErrorMessage string

	RetryCount  int
	MaxRetries  int
	LastRetryAt *time.Time
	ResolvedAt  *time.Time
	IsResolved  bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (f *FailedItem) CanRetry() bool {
	return !f.IsResolved && f.RetryCount < f.MaxRetries
}
