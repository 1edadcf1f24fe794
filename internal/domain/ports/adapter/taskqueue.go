package adapter

import (
	"context"
	"time"

	"avisflow/internal/domain/model"
)

// TaskQueue publishes orchestration tasks onto a named queue with
// at-least-once delivery. EnqueuePoll with delay > 0 is the cooperative
// suspension primitive: the message becomes deliverable only after the
// delay elapses, so no worker thread blocks while a remote job runs.
type TaskQueue interface {
	EnqueueStart(ctx context.Context, task model.StartTask) error
	EnqueuePoll(ctx context.Context, task model.PollTask, delay time.Duration) error
}
