package model

type JobStatus string

const (
	JobStatusQueued  JobStatus = "queued"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Terminal reports whether no further polling should happen for a job in
// this status.
func (s JobStatus) Terminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// ApplyStatus classifies the outcome of applying a finished job's result.
type ApplyStatus string

const (
	// ApplySuccess: artifact upserted with generated text.
	ApplySuccess ApplyStatus = "success"
	// ApplyNoReviews: editorial rule fired, nothing persisted beyond the
	// meta description.
	ApplyNoReviews ApplyStatus = "no_reviews"
	// ApplyNoText: review signal exists but text was a null sentinel; a
	// metadata-only artifact was upserted.
	ApplyNoText ApplyStatus = "no_text"
)

// StartTask is the payload of a queued "start generation job" task.
type StartTask struct {
	WorkItemID string `json:"work_item_id"`
	Angle      string `json:"angle"`
	Quality    string `json:"quality"`
	BatchID    string `json:"batch_id,omitempty"`
	// Periodic marks the regeneration path; it selects the longer
	// artifact expiry window.
	Periodic bool `json:"periodic,omitempty"`
}

// PollTask is the payload of a queued "poll generation job" task. It is
// produced by a completed StartTask and re-enqueued with a countdown
// until the job reaches a terminal status or Deliveries hits the budget.
type PollTask struct {
	JobID      string `json:"job_id"`
	WorkItemID string `json:"work_item_id"`
	Angle      string `json:"angle"`
	Quality    string `json:"quality"`
	BatchID    string `json:"batch_id,omitempty"`
	Periodic   bool   `json:"periodic,omitempty"`
	Deliveries int    `json:"deliveries"`
}
