package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/internal/schema"
)

var ErrBusClosed = errors.New("bus closed")

// Policy decides what a publisher does when a subscriber queue is
// full: wait for space or drop with a logged warning.
type Policy uint8

const (
	PolicyBlock Policy = iota
	PolicyDrop
)

func (p Policy) String() string {
	switch p {
	case PolicyBlock:
		return "block"
	case PolicyDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Subscription is one subscriber's registration. A subscriber may
// listen on several topics through one queue: messages published by a
// single publisher then keep their relative order even across topics,
// which the agents rely on (a trader's trade always precedes its next
// order in every observer's queue).
type Subscription struct {
	Topics []schema.Topic
	Name   string

	bus   *Bus
	queue *Queue
}

// Run consumes the subscription until the context is done. The bus's
// in-flight count is released after each handler returns, so Drain
// observes handler side effects, including cascaded publishes.
func (s *Subscription) Run(ctx context.Context, handler func(Message)) {
	s.queue.Run(ctx, func(m Message) {
		defer s.bus.release()
		handler(m)
	})
}

// Bus is a topic-based publish/subscribe router. Messages published by
// one publisher to one topic reach each subscriber in publish order;
// nothing is guaranteed across topics or publishers. Delivery is
// fire-and-forget behind a bounded per-subscriber queue.
type Bus struct {
	policy   Policy
	capacity int
	metrics  *obs.Metrics

	mu     sync.RWMutex
	subs   map[schema.Topic][]*Subscription
	closed bool

	seq     uint64
	pending int64
}

// New creates a bus. Capacity bounds every subscriber queue.
func New(policy Policy, capacity int, metrics *obs.Metrics) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{
		policy:   policy,
		capacity: capacity,
		metrics:  metrics,
		subs:     make(map[schema.Topic][]*Subscription),
	}
}

// Subscribe registers a named subscriber on one or more topics, all
// feeding a single bounded queue.
func (b *Bus) Subscribe(name string, topics ...schema.Topic) *Subscription {
	sub := &Subscription{
		Topics: topics,
		Name:   name,
		bus:    b,
		queue:  NewQueue(b.capacity),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		b.subs[topic] = append(b.subs[topic], sub)
	}
	return sub
}

// Unsubscribe removes a subscription; it simply stops receiving.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range sub.Topics {
		list := b.subs[topic]
		for i, s := range list {
			if s == sub {
				b.subs[topic] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	sub.queue.Close()
}

// Publish delivers a message to every current subscriber of the topic.
// Zero subscribers is not an error; the message is dropped.
func (b *Bus) Publish(ctx context.Context, publisher string, topic schema.Topic, payload any) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrBusClosed
	}
	subs := make([]*Subscription, len(b.subs[topic]))
	copy(subs, b.subs[topic])
	b.mu.RUnlock()

	m := Message{
		Topic:     topic,
		Seq:       atomic.AddUint64(&b.seq, 1),
		Publisher: publisher,
		TsPublish: time.Now().UTC().UnixNano(),
		Payload:   payload,
	}
	b.metrics.ObservePublish(topic)

	for _, sub := range subs {
		if err := b.deliver(ctx, sub, m); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			// Slow or closed subscriber: transport failure, logged,
			// simulation continues.
			logs.Warnf("bus: %s -> %s/%s: %v", publisher, topic, sub.Name, err)
		}
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, sub *Subscription, m Message) error {
	atomic.AddInt64(&b.pending, 1)

	var err error
	switch b.policy {
	case PolicyDrop:
		err = sub.queue.TryPush(m)
		if errors.Is(err, ErrQueueFull) {
			b.metrics.IncQueueDrop()
		}
	default:
		err = sub.queue.Push(ctx, m)
	}
	if err != nil {
		atomic.AddInt64(&b.pending, -1)
	}
	return err
}

func (b *Bus) release() {
	atomic.AddInt64(&b.pending, -1)
}

// Drain blocks until every delivered message has been handled,
// including messages published by the handlers themselves. This is the
// market clock's day-boundary quiescence barrier.
func (b *Bus) Drain(ctx context.Context) error {
	for {
		if atomic.LoadInt64(&b.pending) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

// Close drains nothing and stops all subscriptions; pending queue
// contents are still consumed by running subscribers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.queue.Close()
		}
	}
}
