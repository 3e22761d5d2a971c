package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/sync/errgroup"

	"github.com/franz/music-pipeline/internal/broker"
	"github.com/franz/music-pipeline/internal/logger"
	"github.com/franz/music-pipeline/internal/pipeline"
	"github.com/franz/music-pipeline/internal/util"
)

// ErrDeliveriesClosed means the broker closed the consumer, usually because
// the connection dropped. The process should exit and be restarted.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// settleTimeout bounds acks and retry publishes, which must run even while
// the loop is shutting down.
const settleTimeout = 30 * time.Second

// Config tunes a Runtime. Prefetch bounds jobs in flight per stage.
type Config struct {
	Prefetch    int
	JobTimeout  time.Duration
	Retry       *util.RetryConfig
	ConsumerTag string
}

// Runtime consumes stage queues and applies the ack policy:
// success and permanent failures are acked, transient failures are parked
// in the retry queue with exponential backoff until Retry.MaxAttempts is
// reached, after which they are treated as permanent.
type Runtime struct {
	conn broker.Connection
	cfg  Config
	log  *logger.Logger
}

// New creates a runtime that opens one channel per consume loop on conn.
func New(conn broker.Connection, cfg Config, log *logger.Logger) *Runtime {
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	if cfg.Retry == nil {
		cfg.Retry = util.DefaultRetryConfig()
	}
	return &Runtime{
		conn: conn,
		cfg:  cfg,
		log:  log.With("component", "StageWorker"),
	}
}

// RunAll runs one consume loop per handler. The first loop to fail cancels
// the rest and its error is returned.
func (r *Runtime) RunAll(ctx context.Context, handlers ...Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, h := range handlers {
		h := h
		g.Go(func() error {
			return r.Run(gctx, h)
		})
	}
	return g.Wait()
}

// Run consumes the handler's stage queue until ctx is cancelled or the
// delivery channel closes. In-flight jobs are drained before it returns.
func (r *Runtime) Run(ctx context.Context, h Handler) error {
	stage := h.Stage()
	log := r.log.With("stage", stage.String())

	ch, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Confirm(false); err != nil {
		return fmt.Errorf("enable confirms: %w", err)
	}
	if err := broker.EnsureTopology(ch); err != nil {
		return err
	}
	if err := ch.Qos(r.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(stage.QueueName(), r.cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", stage.QueueName(), err)
	}

	pub := broker.NewPublisher(ch)
	p := pool.New().WithMaxGoroutines(r.cfg.Prefetch)
	log.Info("Consuming", "queue", stage.QueueName(), "prefetch", r.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			p.Wait()
			log.Info("Consume loop stopped")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				p.Wait()
				log.Error("Delivery channel closed")
				return fmt.Errorf("%s: %w", stage.QueueName(), ErrDeliveriesClosed)
			}
			p.Go(func() {
				r.handle(ctx, h, pub, d, log)
			})
		}
	}
}

func (r *Runtime) handle(ctx context.Context, h Handler, pub *broker.Publisher, d amqp.Delivery, log *logger.Logger) {
	log = log.With("delivery_tag", d.DeliveryTag)

	env, err := pipeline.Decode(d.Body)
	if err == nil && env.Stage != h.Stage() {
		err = fmt.Errorf("%w: job for stage %s delivered to %s", pipeline.ErrMalformedJob, env.Stage, h.Stage())
	}
	if err != nil {
		log.Error("Dropping malformed job", "error", err)
		ack(d, log)
		return
	}
	log = log.With(envelopeFields(env)...)

	started := time.Now()
	err = r.process(ctx, h, env)

	switch {
	case err == nil:
		log.Debug("Job done", "elapsed", time.Since(started))
		ack(d, log)

	case pipeline.IsPermanent(err):
		r.fail(ctx, h, env, err, log)
		ack(d, log)

	case ctx.Err() != nil:
		// Shutting down; hand the job back untouched.
		log.Warn("Job interrupted by shutdown, requeueing", "error", err)
		nack(d, log)

	default:
		r.retry(ctx, h, env, pub, d, err, log)
	}
}

func (r *Runtime) process(ctx context.Context, h Handler, env pipeline.JobEnvelope) (err error) {
	if r.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.JobTimeout)
		defer cancel()
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("Job handler panic", "stage", h.Stage().String(), "panic", rec, "stack", string(debug.Stack()))
			err = pipeline.Permanent(fmt.Errorf("panic: %v", rec))
		}
	}()

	return h.Process(ctx, env)
}

func (r *Runtime) retry(ctx context.Context, h Handler, env pipeline.JobEnvelope, pub *broker.Publisher, d amqp.Delivery, cause error, log *logger.Logger) {
	attempt := broker.Attempt(d.Headers) + 1
	if attempt >= r.cfg.Retry.MaxAttempts {
		r.fail(ctx, h, env, fmt.Errorf("giving up after %d attempts: %w", attempt, cause), log)
		ack(d, log)
		return
	}

	delay := r.cfg.Retry.Delay(attempt)
	sctx, cancel := settleContext(ctx)
	defer cancel()

	if err := pub.PublishRetry(sctx, h.Stage(), d.Body, attempt, delay); err != nil {
		log.Error("Failed to schedule retry, requeueing", "error", err, "cause", cause)
		nack(d, log)
		return
	}
	log.Warn("Job failed, retry scheduled", "attempt", attempt, "delay", delay, "error", cause)
	ack(d, log)
}

func (r *Runtime) fail(ctx context.Context, h Handler, env pipeline.JobEnvelope, cause error, log *logger.Logger) {
	log.Error("Job failed permanently", "error", cause)

	rec, ok := h.(FailureRecorder)
	if !ok {
		return
	}
	sctx, cancel := settleContext(ctx)
	defer cancel()
	if err := rec.RecordFailure(sctx, env, cause); err != nil {
		log.Error("Failed to record job failure", "error", err)
	}
}

func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

func ack(d amqp.Delivery, log *logger.Logger) {
	if err := d.Ack(false); err != nil {
		log.Error("Ack failed", "error", err)
	}
}

func nack(d amqp.Delivery, log *logger.Logger) {
	if err := d.Nack(false, true); err != nil {
		log.Error("Nack failed", "error", err)
	}
}

func envelopeFields(env pipeline.JobEnvelope) []interface{} {
	var kv []interface{}
	if env.AlbumID != nil {
		kv = append(kv, "album_id", env.AlbumID.String())
	}
	if env.TrackID != nil {
		kv = append(kv, "track_id", env.TrackID.String())
	}
	if env.FileID != nil {
		kv = append(kv, "file_id", env.FileID.String())
	}
	return kv
}
