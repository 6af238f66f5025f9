// Package amqp consumes "work order completed" events from RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/lubricentro/usagepredict/core/lock"
	"github.com/lubricentro/usagepredict/core/logger"
	"github.com/lubricentro/usagepredict/core/prediction"
	"github.com/lubricentro/usagepredict/core/trigger"
)

// Config configures the consumer. An empty URL disables it.
type Config struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Exchange string `json:"exchange"`
	// RoutingKey binds Queue to Exchange when Exchange is set.
	RoutingKey string `json:"routing_key"`
	Prefetch   int    `json:"prefetch"`
	// RequeueDelayMS delays the requeue of a message whose vehicle is
	// still locked, so it is not redelivered in a tight loop.
	RequeueDelayMS int `json:"requeue_delay_ms"`
}

// RequeueDelay returns the locked-vehicle requeue delay.
func (c Config) RequeueDelay() time.Duration {
	return time.Duration(c.RequeueDelayMS) * time.Millisecond
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.Queue == "" {
		c.Queue = trigger.DefaultQueue
	}
	if c.RoutingKey == "" {
		c.RoutingKey = "workorder.completed"
	}
	if c.Prefetch <= 0 {
		c.Prefetch = 1
	}
	if c.RequeueDelayMS <= 0 {
		c.RequeueDelayMS = 2000
	}
}

// Enabled reports whether a broker URL is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// PayloadHandler processes a raw event body.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, payload []byte) (*prediction.Result, error)
}

// Consumer reads trigger events from a durable queue and acknowledges them
// manually once handled.
type Consumer struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     Config
	handler PayloadHandler
	log     logger.Logger

	mu      sync.Mutex
	running bool
}

// Dial connects to the broker and declares the queue (and its binding when
// an exchange is configured).
func Dial(cfg Config, handler PayloadHandler, log logger.Logger) (*Consumer, error) {
	cfg.SetDefaults()
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := declare(ch, cfg); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	log.Infof("rabbitmq consumer connected to queue %s", cfg.Queue)
	return &Consumer{conn: conn, channel: ch, cfg: cfg, handler: handler, log: log}, nil
}

func declare(ch *amqp.Channel, cfg Config) error {
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	if cfg.Exchange == "" {
		return nil
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", cfg.Queue, err)
	}
	return nil
}

// Start consumes until ctx is canceled or the delivery channel closes.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return errors.New("consumer already running")
	}
	c.running = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	if err := c.channel.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := c.channel.ConsumeWithContext(ctx, c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.cfg.Queue, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.process(ctx, msg)
		}
	}
}

// process handles one delivery and settles it:
//   - malformed payloads are acked and dropped,
//   - a vehicle still locked elsewhere is requeued after RequeueDelay,
//   - other failures are requeued once.
func (c *Consumer) process(ctx context.Context, msg amqp.Delivery) {
	_, err := c.handler.HandlePayload(ctx, msg.Body)
	switch {
	case err == nil:
		c.settle(msg.Ack(false))
	case errors.Is(err, trigger.ErrInvalidEvent):
		c.log.Warnf("drop message %s: %v", msg.MessageId, err)
		c.settle(msg.Ack(false))
	case errors.Is(err, lock.ErrHeld):
		c.log.Infof("vehicle locked, requeue message %s in %s", msg.MessageId, c.cfg.RequeueDelay())
		c.wait(ctx, c.cfg.RequeueDelay())
		c.settle(msg.Nack(false, true))
	default:
		c.log.Errorf("handle message %s: %v", msg.MessageId, err)
		c.settle(msg.Nack(false, !msg.Redelivered))
	}
}

func (c *Consumer) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (c *Consumer) settle(err error) {
	if err != nil {
		c.log.Errorf("settle delivery: %v", err)
	}
}

// Close closes the channel and connection.
func (c *Consumer) Close() error {
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			c.log.Warnf("close channel: %v", err)
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
