// File: internal/infra/queue/rabbit/queue.go
package rabbit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/adapter"
)

var _ adapter.TaskQueue = (*TaskQueue)(nil)

// taskEnvelope is the wire format shared by both task types; consumers
// dispatch on Type.
type taskEnvelope struct {
	Type  string           `json:"type"` // "start" | "poll"
	Start *model.StartTask `json:"start,omitempty"`
	Poll  *model.PollTask  `json:"poll,omitempty"`
}

const (
	taskTypeStart = "start"
	taskTypePoll  = "poll"
)

// TaskQueue publishes orchestration tasks with at-least-once semantics.
type TaskQueue struct {
	client *Client
}

func NewTaskQueue(client *Client) *TaskQueue {
	return &TaskQueue{client: client}
}

func (q *TaskQueue) EnqueueStart(ctx context.Context, task model.StartTask) error {
	return q.publish(ctx, taskEnvelope{Type: taskTypeStart, Start: &task}, 0)
}

// EnqueuePoll with delay > 0 routes through the delay queue: the message
// carries its delay as a per-message TTL and dead-letters back onto the
// work queue when it expires.
func (q *TaskQueue) EnqueuePoll(ctx context.Context, task model.PollTask, delay time.Duration) error {
	return q.publish(ctx, taskEnvelope{Type: taskTypePoll, Poll: &task}, delay)
}

func (q *TaskQueue) publish(ctx context.Context, env taskEnvelope, delay time.Duration) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	key := workRoutingKey
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}
	if delay > 0 {
		key = delayRoutingKey
		msg.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)
	}

	if err := q.client.Channel().PublishWithContext(ctx, q.client.cfg.Exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish %s task: %w", env.Type, err)
	}
	return nil
}
