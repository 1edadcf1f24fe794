// File: internal/infra/queue/rabbit/consumer.go
package rabbit

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"avisflow/internal/domain/ports/adapter"
	"avisflow/internal/infra/logging"
	"avisflow/internal/infra/worker"
	"avisflow/internal/usecase"
)

// Consumer pulls task envelopes off the work queue and drives the
// orchestrator. Acks are manual: a task is acknowledged only after its
// side effects (including any follow-up publish) have happened, so a
// crash mid-task redelivers rather than loses it.
type Consumer struct {
	client    *Client
	queue     adapter.TaskQueue
	orch      *usecase.JobOrchestrator
	pool      *worker.Pool
	countdown time.Duration
	prefetch  int
	tag       string
	log       *zerolog.Logger
}

func NewConsumer(
	client *Client,
	queue adapter.TaskQueue,
	orch *usecase.JobOrchestrator,
	pool *worker.Pool,
	countdown time.Duration,
	prefetch int,
	consumerTag string,
	log *zerolog.Logger,
) *Consumer {
	if countdown <= 0 {
		countdown = usecase.DefaultPollCountdown
	}
	if prefetch <= 0 {
		prefetch = 8
	}
	return &Consumer{
		client: client, queue: queue, orch: orch, pool: pool,
		countdown: countdown, prefetch: prefetch, tag: consumerTag, log: log,
	}
}

// Run blocks until ctx is cancelled or the delivery channel closes.
func (c *Consumer) Run(ctx context.Context) error {
	ch := c.client.Channel()
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := ch.Consume(
		c.client.cfg.WorkQueue,
		c.tag,
		false, // manual ack
		false, false, false, nil,
	)
	if err != nil {
		return err
	}
	c.log.Info().Str("queue", c.client.cfg.WorkQueue).Int("prefetch", c.prefetch).
		Msg("task consumer started")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("task consumer stopped")
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				c.log.Warn().Msg("delivery channel closed")
				return nil
			}
			delivery := d
			if err := c.pool.Submit(func(ctx context.Context) error {
				c.handle(ctx, delivery)
				return nil
			}); err != nil {
				// Pool saturated: requeue for another worker process.
				c.log.Warn().Err(err).Msg("pool saturated, requeueing delivery")
				_ = delivery.Nack(false, true)
			}
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var env taskEnvelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		c.log.Error().Err(err).Str("body", string(d.Body)).Msg("malformed task payload")
		// No requeue: malformed messages go to the DLQ, redelivery cannot fix them.
		_ = d.Nack(false, false)
		return
	}

	switch {
	case env.Type == taskTypeStart && env.Start != nil:
		c.handleStart(ctx, d, env)
	case env.Type == taskTypePoll && env.Poll != nil:
		c.handlePoll(ctx, d, env)
	default:
		c.log.Error().Str("type", env.Type).Msg("unknown task type")
		_ = d.Nack(false, false)
	}
}

func (c *Consumer) handleStart(ctx context.Context, d amqp.Delivery, env taskEnvelope) {
	ctx = logging.WithWorkItemID(ctx, env.Start.WorkItemID)
	next, err := c.orch.Start(ctx, *env.Start)
	if err != nil {
		// Already recorded as a FailedItem where it matters; the unit is
		// done, no queue-level replay.
		logging.With(ctx, c.log).Error().Err(err).Msg("start task failed")
		_ = d.Ack(false)
		return
	}
	if err := c.queue.EnqueuePoll(ctx, *next, c.countdown); err != nil {
		// Publish failed: redeliver the whole start task. StartJob is
		// repeated, which at-least-once delivery already allows.
		logging.With(ctx, c.log).Error().Err(err).Msg("poll enqueue failed, requeueing start")
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) handlePoll(ctx context.Context, d amqp.Delivery, env taskEnvelope) {
	ctx = logging.WithJobID(logging.WithWorkItemID(ctx, env.Poll.WorkItemID), env.Poll.JobID)
	out, err := c.orch.Poll(ctx, *env.Poll)
	if err != nil {
		logging.With(ctx, c.log).Error().Err(err).Msg("poll task failed")
	}
	if !out.Terminal {
		if err := c.queue.EnqueuePoll(ctx, out.Next, out.RequeueAfter); err != nil {
			logging.With(ctx, c.log).Error().Err(err).Msg("poll re-enqueue failed, requeueing delivery")
			_ = d.Nack(false, true)
			return
		}
	}
	_ = d.Ack(false)
}
