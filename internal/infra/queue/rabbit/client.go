// File: internal/infra/queue/rabbit/client.go
package rabbit

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"avisflow/internal/config"
)

const (
	workRoutingKey  = "task"
	delayRoutingKey = "task.delay"
)

// Client owns the AMQP connection and the task topology: a direct
// exchange, the work queue, and a delay queue whose dead-letter target is
// the work queue. Messages published to the delay queue with a
// per-message TTL reappear on the work queue once the TTL elapses, which
// is how poll tasks suspend without holding a worker.
type Client struct {
	cfg     *config.QueueConfig
	conn    *amqp.Connection
	channel *amqp.Channel
	log     *zerolog.Logger
}

func NewClient(cfg *config.QueueConfig, log *zerolog.Logger) (*Client, error) {
	c := &Client{cfg: cfg, log: log}
	if err := c.connect(); err != nil {
		return nil, fmt.Errorf("rabbit client: %w", err)
	}
	return c, nil
}

func (c *Client) connect() error {
	attempts := c.cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 5
	}
	interval := c.cfg.RetryInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		c.conn, err = amqp.Dial(c.cfg.URL)
		if err == nil {
			break
		}
		c.log.Warn().Int("attempt", attempt).Int("max_attempts", attempts).Err(err).
			Msg("rabbitmq connect failed")
		if attempt < attempts {
			time.Sleep(interval)
		}
	}
	if err != nil {
		return fmt.Errorf("connect after %d attempts: %w", attempts, err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := c.setup(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	c.log.Info().
		Str("exchange", c.cfg.Exchange).
		Str("work_queue", c.cfg.WorkQueue).
		Str("delay_queue", c.cfg.DelayQueue).
		Msg("rabbitmq topology ready")
	return nil
}

func (c *Client) setup() error {
	if err := c.channel.ExchangeDeclare(
		c.cfg.Exchange, "direct",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := c.channel.QueueDeclare(
		c.cfg.WorkQueue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		return fmt.Errorf("declare work queue: %w", err)
	}
	if err := c.channel.QueueBind(c.cfg.WorkQueue, workRoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind work queue: %w", err)
	}

	// Expired messages dead-letter back onto the work queue.
	if _, err := c.channel.QueueDeclare(
		c.cfg.DelayQueue,
		true, false, false, false,
		amqp.Table{
			"x-dead-letter-exchange":    c.cfg.Exchange,
			"x-dead-letter-routing-key": workRoutingKey,
		},
	); err != nil {
		return fmt.Errorf("declare delay queue: %w", err)
	}
	if err := c.channel.QueueBind(c.cfg.DelayQueue, delayRoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind delay queue: %w", err)
	}
	return nil
}

func (c *Client) Channel() *amqp.Channel { return c.channel }

func (c *Client) Close() error {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
