package broker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/franz/music-pipeline/internal/pipeline"
)

// AttemptHeader counts how many times a job has been retried.
const AttemptHeader = "x-attempt"

// ErrNacked is returned when the broker refuses a confirmed publish.
var ErrNacked = errors.New("publish not confirmed by broker")

// Publisher sends persistent job messages and waits for broker confirms.
// The channel must have been put in confirm mode by the caller.
type Publisher struct {
	ch Channel
}

// NewPublisher wraps ch.
func NewPublisher(ch Channel) *Publisher {
	return &Publisher{ch: ch}
}

// OpenPublisher opens a dedicated confirm-mode channel for publishing.
func OpenPublisher(conn Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return &Publisher{ch: ch}, nil
}

// Close closes the underlying channel.
func (p *Publisher) Close() error {
	return p.ch.Close()
}

// Publish routes env to its stage queue via the jobs exchange.
func (p *Publisher) Publish(ctx context.Context, env pipeline.JobEnvelope) error {
	body, err := pipeline.Encode(env)
	if err != nil {
		return err
	}
	return p.publish(ctx, pipeline.Exchange, env.Stage.RoutingKey(), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// PublishRetry parks body in the stage's retry queue for delay, after which
// the broker dead-letters it back into the stage queue.
func (p *Publisher) PublishRetry(ctx context.Context, stage pipeline.Stage, body []byte, attempt int, delay time.Duration) error {
	ms := delay.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return p.publish(ctx, pipeline.RetryExchange, stage.RoutingKey(), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{AttemptHeader: int32(attempt)},
		Expiration:   strconv.FormatInt(ms, 10),
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
		Body:         body,
	})
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	conf, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, key, err)
	}
	if conf == nil {
		// Channel is not in confirm mode.
		return nil
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("wait for confirm on %s/%s: %w", exchange, key, err)
	}
	if !ok {
		return fmt.Errorf("publish to %s/%s: %w", exchange, key, ErrNacked)
	}
	return nil
}

// Attempt reads the retry counter from delivery headers. Missing or
// unreadable values count as zero.
func Attempt(headers amqp.Table) int {
	switch v := headers[AttemptHeader].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return 0
}
