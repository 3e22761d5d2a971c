package broker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/franz/music-pipeline/internal/broker"
	"github.com/franz/music-pipeline/internal/broker/brokertest"
	"github.com/franz/music-pipeline/internal/pipeline"
)

func TestEnsureTopology(t *testing.T) {
	ch := brokertest.NewChannel()

	if err := broker.EnsureTopology(ch); err != nil {
		t.Fatalf("EnsureTopology() error = %v", err)
	}

	ex, ok := ch.Exchanges["jobs"]
	if !ok || ex.Kind != "direct" || !ex.Durable {
		t.Errorf("jobs exchange = %+v, %v", ex, ok)
	}

	for _, stage := range pipeline.Stages() {
		q, ok := ch.Queues["queue."+stage.String()]
		if !ok || !q.Durable {
			t.Errorf("queue for %s = %+v, %v", stage, q, ok)
		}
		if !ch.Bindings[brokertest.Binding{Queue: "queue." + stage.String(), Key: stage.String(), Exchange: "jobs"}] {
			t.Errorf("queue for %s not bound with key %s", stage, stage)
		}

		retry, ok := ch.Queues[stage.RetryQueueName()]
		if !ok {
			t.Fatalf("retry queue for %s missing", stage)
		}
		if retry.Args["x-dead-letter-exchange"] != "jobs" || retry.Args["x-dead-letter-routing-key"] != stage.String() {
			t.Errorf("retry queue args for %s = %v", stage, retry.Args)
		}
	}

	if len(ch.Queues) != 2*len(pipeline.Stages()) {
		t.Errorf("expected %d queues, got %d", 2*len(pipeline.Stages()), len(ch.Queues))
	}
}

func TestEnsureTopologyIsIdempotent(t *testing.T) {
	ch := brokertest.NewChannel()

	for i := 0; i < 3; i++ {
		if err := broker.EnsureTopology(ch); err != nil {
			t.Fatalf("EnsureTopology() call %d error = %v", i+1, err)
		}
	}
	if len(ch.Bindings) != 2*len(pipeline.Stages()) {
		t.Errorf("expected %d bindings, got %d", 2*len(pipeline.Stages()), len(ch.Bindings))
	}
}

func TestEnsureTopologyAbortsOnDeclareError(t *testing.T) {
	ch := brokertest.NewChannel()
	ch.DeclareErr = errors.New("channel closed")

	if err := broker.EnsureTopology(ch); err == nil {
		t.Fatal("expected EnsureTopology to fail")
	}
}

func TestPublish(t *testing.T) {
	ch := brokertest.NewChannel()
	pub := broker.NewPublisher(ch)

	album, file := uuid.New(), uuid.New()
	env := pipeline.NewFileJob(pipeline.Fingerprint, album, file)
	if err := pub.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	msgs := ch.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	m := msgs[0]
	if m.Exchange != "jobs" || m.Key != "fingerprint" {
		t.Errorf("published to %s/%s", m.Exchange, m.Key)
	}
	if m.DeliveryMode != amqp.Persistent {
		t.Errorf("expected persistent delivery, got %d", m.DeliveryMode)
	}
	got, err := pipeline.Decode(m.Body)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if got.File() != file || got.Album() != album {
		t.Errorf("decoded envelope = %+v", got)
	}
}

func TestPublishRejectsInvalidEnvelope(t *testing.T) {
	ch := brokertest.NewChannel()
	pub := broker.NewPublisher(ch)

	err := pub.Publish(context.Background(), pipeline.JobEnvelope{Stage: pipeline.Fingerprint})
	if err == nil {
		t.Fatal("expected Publish to reject an envelope without file_id")
	}
	if len(ch.Messages()) != 0 {
		t.Error("nothing should have been published")
	}
}

func TestPublishRetry(t *testing.T) {
	ch := brokertest.NewChannel()
	pub := broker.NewPublisher(ch)

	body := []byte(`{"album_id":"` + uuid.NewString() + `","stage":"import"}`)
	if err := pub.PublishRetry(context.Background(), pipeline.Import, body, 2, 10*time.Second); err != nil {
		t.Fatalf("PublishRetry() error = %v", err)
	}

	m := ch.Messages()[0]
	if m.Exchange != "jobs.retry" || m.Key != "import" {
		t.Errorf("published to %s/%s", m.Exchange, m.Key)
	}
	if m.Expiration != "10000" {
		t.Errorf("Expiration = %q, want 10000", m.Expiration)
	}
	if broker.Attempt(m.Headers) != 2 {
		t.Errorf("attempt header = %v", m.Headers[broker.AttemptHeader])
	}
	if string(m.Body) != string(body) {
		t.Errorf("body changed: %s", m.Body)
	}
}

func TestAttempt(t *testing.T) {
	tests := []struct {
		name    string
		headers amqp.Table
		want    int
	}{
		{"missing", nil, 0},
		{"int32", amqp.Table{"x-attempt": int32(3)}, 3},
		{"int64", amqp.Table{"x-attempt": int64(4)}, 4},
		{"string", amqp.Table{"x-attempt": "2"}, 2},
		{"garbage", amqp.Table{"x-attempt": "two"}, 0},
		{"wrong type", amqp.Table{"x-attempt": 1.5}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := broker.Attempt(tt.headers); got != tt.want {
				t.Errorf("Attempt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestOpenPublisher(t *testing.T) {
	ch := brokertest.NewChannel()
	pub, err := broker.OpenPublisher(&brokertest.Connection{Ch: ch})
	if err != nil {
		t.Fatalf("OpenPublisher() error = %v", err)
	}
	if !ch.Confirming {
		t.Error("expected confirm mode")
	}
	if err := pub.Close(); err != nil || !ch.Closed {
		t.Errorf("Close() = %v, closed = %v", err, ch.Closed)
	}
}
