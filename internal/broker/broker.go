package broker

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/franz/music-pipeline/internal/logger"
	"github.com/franz/music-pipeline/internal/util"
)

// Declarer is the subset of *amqp.Channel needed to declare topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Channel is the subset of *amqp.Channel a stage worker uses.
type Channel interface {
	Declarer
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// Connection hands out channels. Each consume loop owns one.
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

// Conn wraps a live AMQP connection.
type Conn struct {
	conn *amqp.Connection
}

// Dial connects to the broker, retrying while it is still coming up.
func Dial(ctx context.Context, url string, log *logger.Logger) (*Conn, error) {
	if url == "" {
		return nil, fmt.Errorf("amqp url is empty: %w", util.ErrInvalidConfig)
	}

	cfg := util.StartupRetryConfig()
	cfg.Notify = func(attempt int, wait time.Duration, err error) {
		log.Warn("broker not reachable, retrying", "attempt", attempt, "wait", wait, "error", err)
	}

	conn, err := util.RetryWithBackoff(ctx, cfg, func() (*amqp.Connection, error) {
		return amqp.Dial(url)
	}, "amqp dial")
	if err != nil {
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

// Channel opens a new channel on the connection.
func (c *Conn) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return ch, nil
}

// Close closes the connection and every channel on it.
func (c *Conn) Close() error {
	if c.conn.IsClosed() {
		return nil
	}
	return c.conn.Close()
}
