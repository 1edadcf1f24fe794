package model

import "time"

type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// Batch is a checkpointed unit of scheduling work. For resumable bulk
// runs QueryParams carries the keyset cursor pair: "start_after_id"
// (exclusive lower bound) and "end_at_id" (inclusive upper bound).
type Batch struct {
	ID         string
	Type       string
	Size       int
	Status     BatchStatus
	RetryCount int
	MaxRetries int

	QueryParams map[string]any

	ItemsProcessed int
	ItemsSuccess   int
	ItemsFailed    int

	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds float64

	LastError    string
	ErrorDetails map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// StartAfterID returns the exclusive cursor lower bound, "" when unset.
func (b *Batch) StartAfterID() string { return b.paramString("start_after_id") }

// EndAtID returns the inclusive cursor upper bound, "" when unset.
func (b *Batch) EndAtID() string { return b.paramString("end_at_id") }

func (b *Batch) paramString(key string) string {
	if b.QueryParams == nil {
		return ""
	}
	s, _ := b.QueryParams[key].(string)
	return s
}

func (b *Batch) CanRetry() bool {
	return b.RetryCount < b.MaxRetries && b.Status == BatchStatusFailed
}
