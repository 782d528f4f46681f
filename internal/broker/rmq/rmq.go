package rmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/programme-lv/rayjudge/internal/broker"
	"github.com/programme-lv/rayjudge/internal/pipeline"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	URL        string
	Queue      string
	Exchange   string
	RoutingKey string
	// Prefetch limits unacknowledged deliveries on the channel. Zero means
	// no limit.
	Prefetch int
	// DeadLetterExchange, when set, receives rejected deliveries and is
	// bound to DeadLetterQueue.
	DeadLetterExchange string
	DeadLetterQueue    string
	// QueueType sets x-queue-type. Quorum queues report x-delivery-count on
	// redelivery; classic queues only flag it, so counting attempts past the
	// second one needs a quorum queue.
	QueueType   string
	ConsumerTag string
}

// Queue types accepted in Config.QueueType. Empty leaves the broker default.
const (
	QueueTypeClassic = "classic"
	QueueTypeQuorum  = "quorum"
)

// Client talks AMQP 0-9-1 over a single connection and channel.
type Client struct {
	cfg    Config
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

var _ broker.Broker = (*Client)(nil)

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.ConsumerTag == "" {
		cfg.ConsumerTag = "rayjudge-" + uuid.NewString()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, logger: logger.With(slog.String("broker", "amqp"))}
}

func (c *Client) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", broker.ErrConnect, err)
	}

	c.logger.Info("connecting to message queue", slog.String("queue", c.cfg.Queue))
	conn, err := amqp.DialConfig(c.cfg.URL, amqp.Config{
		Heartbeat:  10 * time.Second,
		Properties: amqp.Table{"connection_name": "rayjudge"},
	})
	if err != nil {
		return fmt.Errorf("%w: %w", broker.ErrConnect, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: failed to open channel: %w", broker.ErrConnect, err)
	}
	c.conn = conn
	c.ch = ch
	c.logger.Info("connected to message queue")
	return nil
}

// DeclareTopology declares the queue, the direct exchange and their binding.
// Declaring an existing entity with the same arguments is a no-op.
func (c *Client) DeclareTopology(ctx context.Context) error {
	if c.ch == nil {
		return fmt.Errorf("%w: not connected", broker.ErrDeclare)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", broker.ErrDeclare, err)
	}

	if c.cfg.DeadLetterExchange != "" {
		if err := c.declareDeadLetter(); err != nil {
			return fmt.Errorf("%w: %w", broker.ErrDeclare, err)
		}
	}

	if _, err := c.ch.QueueDeclare(c.cfg.Queue, true, false, false, false, c.queueArgs()); err != nil {
		return fmt.Errorf("%w: queue %q: %w", broker.ErrDeclare, c.cfg.Queue, err)
	}
	if err := c.ch.ExchangeDeclare(c.cfg.Exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%w: exchange %q: %w", broker.ErrDeclare, c.cfg.Exchange, err)
	}
	if err := c.ch.QueueBind(c.cfg.Queue, c.cfg.RoutingKey, c.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("%w: bind %q to %q: %w", broker.ErrDeclare, c.cfg.Queue, c.cfg.Exchange, err)
	}

	c.logger.Info("declared topology",
		slog.String("queue", c.cfg.Queue),
		slog.String("queue_type", c.cfg.QueueType),
		slog.String("exchange", c.cfg.Exchange),
		slog.String("routing_key", c.cfg.RoutingKey))
	return nil
}

func (c *Client) queueArgs() amqp.Table {
	args := amqp.Table{}
	if c.cfg.QueueType != "" {
		args["x-queue-type"] = c.cfg.QueueType
	}
	if c.cfg.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = c.cfg.DeadLetterExchange
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

func (c *Client) declareDeadLetter() error {
	if err := c.ch.ExchangeDeclare(c.cfg.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("dead-letter exchange %q: %w", c.cfg.DeadLetterExchange, err)
	}
	if c.cfg.DeadLetterQueue == "" {
		return nil
	}
	if _, err := c.ch.QueueDeclare(c.cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("dead-letter queue %q: %w", c.cfg.DeadLetterQueue, err)
	}
	if err := c.ch.QueueBind(c.cfg.DeadLetterQueue, "", c.cfg.DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind dead-letter queue %q: %w", c.cfg.DeadLetterQueue, err)
	}
	return nil
}

// Publish sends body without waiting for a broker confirmation.
func (c *Client) Publish(ctx context.Context, body []byte) error {
	if c.ch == nil {
		return fmt.Errorf("failed to publish: not connected")
	}
	err := c.ch.PublishWithContext(ctx, c.cfg.Exchange, c.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish: %w", err)
	}
	return nil
}

func (c *Client) Consume(ctx context.Context, handler func(pipeline.Delivery)) error {
	if c.ch == nil {
		return fmt.Errorf("failed to consume: not connected")
	}
	if c.cfg.Prefetch > 0 {
		if err := c.ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
			return fmt.Errorf("failed to set prefetch: %w", err)
		}
	}

	deliveries, err := c.ch.Consume(c.cfg.Queue, c.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %q: %w", c.cfg.Queue, err)
	}
	closed := c.ch.NotifyClose(make(chan *amqp.Error, 1))
	c.logger.Info("consuming judge requests", slog.String("consumer_tag", c.cfg.ConsumerTag))

	for {
		select {
		case <-ctx.Done():
			if err := c.ch.Cancel(c.cfg.ConsumerTag, false); err != nil {
				c.logger.Warn("failed to cancel consumer", slog.String("error", err.Error()))
			}
			return nil
		case amqpErr := <-closed:
			if amqpErr != nil {
				return fmt.Errorf("channel closed: %w", amqpErr)
			}
			return fmt.Errorf("channel closed")
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("delivery stream of %q closed", c.cfg.Queue)
			}
			handler(toDelivery(d))
		}
	}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func toDelivery(d amqp.Delivery) pipeline.Delivery {
	return pipeline.Delivery{
		Acknowledger:    d.Acknowledger,
		Tag:             d.DeliveryTag,
		Body:            d.Body,
		ContentEncoding: d.ContentEncoding,
		DeliveryCount:   deliveryCount(d.Headers, d.Redelivered),
	}
}

// deliveryCount derives the 1-based attempt number. Quorum queues report
// x-delivery-count; dead-letter round trips leave x-death entries.
func deliveryCount(headers amqp.Table, redelivered bool) int64 {
	if n, ok := toInt64(headers["x-delivery-count"]); ok {
		return n + 1
	}
	if deaths, ok := headers["x-death"].([]interface{}); ok {
		var total int64
		for _, death := range deaths {
			if table, ok := death.(amqp.Table); ok {
				if n, ok := toInt64(table["count"]); ok {
					total += n
				}
			}
		}
		if total > 0 {
			return total + 1
		}
	}
	if redelivered {
		return 2
	}
	return 1
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case int:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}
