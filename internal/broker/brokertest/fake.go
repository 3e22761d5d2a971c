// Package brokertest provides in-memory stand-ins for AMQP channels and
// acknowledgers.
package brokertest

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/franz/music-pipeline/internal/broker"
)

// Exchange is a recorded exchange declaration.
type Exchange struct {
	Kind    string
	Durable bool
}

// Queue is a recorded queue declaration.
type Queue struct {
	Durable bool
	Args    amqp.Table
}

// Binding is a recorded queue binding.
type Binding struct {
	Queue, Key, Exchange string
}

// Message is a recorded publish.
type Message struct {
	Exchange string
	Key      string
	amqp.Publishing
}

// Channel is an in-memory broker.Channel. Redeclaring an entity with
// different arguments fails the way RabbitMQ does with PRECONDITION_FAILED.
type Channel struct {
	mu sync.Mutex

	Exchanges map[string]Exchange
	Queues    map[string]Queue
	Bindings  map[Binding]bool
	Published []Message

	Prefetch   int
	Confirming bool
	Closed     bool
	Consumed   []string

	// Deliveries is handed out by Consume.
	Deliveries chan amqp.Delivery
	// PublishErr, when set, fails every publish.
	PublishErr error
	// DeclareErr, when set, fails every declare.
	DeclareErr error
}

var _ broker.Channel = (*Channel)(nil)

// NewChannel returns an empty fake channel with a buffered delivery feed.
func NewChannel() *Channel {
	return &Channel{
		Exchanges:  make(map[string]Exchange),
		Queues:     make(map[string]Queue),
		Bindings:   make(map[Binding]bool),
		Deliveries: make(chan amqp.Delivery, 64),
	}
}

func (c *Channel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return c.DeclareErr
	}
	ex := Exchange{Kind: kind, Durable: durable}
	if prev, ok := c.Exchanges[name]; ok && prev != ex {
		return fmt.Errorf("PRECONDITION_FAILED - inequivalent arg for exchange %s", name)
	}
	c.Exchanges[name] = ex
	return nil
}

func (c *Channel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return amqp.Queue{}, c.DeclareErr
	}
	q := Queue{Durable: durable, Args: args}
	if prev, ok := c.Queues[name]; ok && !reflect.DeepEqual(prev, q) {
		return amqp.Queue{}, fmt.Errorf("PRECONDITION_FAILED - inequivalent arg for queue %s", name)
	}
	c.Queues[name] = q
	return amqp.Queue{Name: name}, nil
}

func (c *Channel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.DeclareErr != nil {
		return c.DeclareErr
	}
	if _, ok := c.Queues[name]; !ok {
		return fmt.Errorf("NOT_FOUND - no queue %s", name)
	}
	if _, ok := c.Exchanges[exchange]; !ok {
		return fmt.Errorf("NOT_FOUND - no exchange %s", exchange)
	}
	c.Bindings[Binding{Queue: name, Key: key, Exchange: exchange}] = true
	return nil
}

func (c *Channel) Qos(prefetchCount, prefetchSize int, global bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prefetch = prefetchCount
	return nil
}

func (c *Channel) Confirm(noWait bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Confirming = true
	return nil
}

func (c *Channel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if autoAck {
		return nil, fmt.Errorf("fake channel only supports manual ack")
	}
	if _, ok := c.Queues[queue]; !ok {
		return nil, fmt.Errorf("NOT_FOUND - no queue %s", queue)
	}
	c.Consumed = append(c.Consumed, queue)
	return c.Deliveries, nil
}

// PublishWithDeferredConfirmWithContext records msg. It returns a nil
// confirmation, which callers treat as an immediate ack.
func (c *Channel) PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.PublishErr != nil {
		return nil, c.PublishErr
	}
	c.Published = append(c.Published, Message{Exchange: exchange, Key: key, Publishing: msg})
	return nil, nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Messages returns a snapshot of everything published so far.
func (c *Channel) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.Published...)
}

// Connection hands out the same fake channel every time.
type Connection struct {
	Ch *Channel
}

func (c *Connection) Channel() (broker.Channel, error) { return c.Ch, nil }
func (c *Connection) Close() error { return nil }

// Outcome is what happened to one delivery tag.
type Outcome struct {
	Acked    bool
	Nacked   bool
	Requeued bool
}

// Acknowledger records acks and nacks by delivery tag.
type Acknowledger struct {
	mu       sync.Mutex
	outcomes map[uint64]Outcome
	done     chan uint64
}

// NewAcknowledger returns an acknowledger that signals on Done for every
// settled tag.
func NewAcknowledger() *Acknowledger {
	return &Acknowledger{
		outcomes: make(map[uint64]Outcome),
		done:     make(chan uint64, 64),
	}
}

func (a *Acknowledger) settle(tag uint64, o Outcome) {
	a.mu.Lock()
	a.outcomes[tag] = o
	a.mu.Unlock()
	a.done <- tag
}

func (a *Acknowledger) Ack(tag uint64, multiple bool) error {
	a.settle(tag, Outcome{Acked: true})
	return nil
}

func (a *Acknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.settle(tag, Outcome{Nacked: true, Requeued: requeue})
	return nil
}

func (a *Acknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// Done yields delivery tags as they are settled.
func (a *Acknowledger) Done() <-chan uint64 {
	return a.done
}

// Outcome returns what happened to tag.
func (a *Acknowledger) Outcome(tag uint64) Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcomes[tag]
}

// Delivery builds a delivery bound to ack.
func (a *Acknowledger) Delivery(tag uint64, body []byte, headers amqp.Table) amqp.Delivery {
	return amqp.Delivery{
		Acknowledger: a,
		DeliveryTag:  tag,
		Headers:      headers,
		Body:         body,
	}
}
