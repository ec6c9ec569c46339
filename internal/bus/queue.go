package bus

import (
	"context"
	"sync/atomic"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

var (
	ErrQueueFull   = errors.New("subscriber queue full")
	ErrQueueClosed = errors.New("subscriber queue closed")
)

// Message is the unit passed through the bus.
type Message struct {
	Topic     schema.Topic
	Seq       uint64
	Publisher string
	TsPublish int64
	Payload   any
}

// Payload extracts a typed payload from a message. A false return
// means the message is malformed for its topic; the caller logs and
// discards it.
func Payload[T any](m Message) (T, bool) {
	v, ok := m.Payload.(T)
	return v, ok
}

// Queue is a bounded per-subscriber message queue.
type Queue struct {
	ch     chan Message
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Message, capacity)}
}

// TryPush enqueues a message without blocking. Pushing into a queue
// that closes concurrently returns ErrQueueClosed, never panics.
func (q *Queue) TryPush(m Message) (err error) {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	defer q.recoverClosed(&err)
	select {
	case q.ch <- m:
		return nil
	default:
		return ErrQueueFull
	}
}

// Push enqueues a message, blocking until there is space or the
// context is done.
func (q *Queue) Push(ctx context.Context, m Message) (err error) {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	defer q.recoverClosed(&err)
	select {
	case q.ch <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// recoverClosed absorbs the send-on-closed panic from a push racing
// Close; the closed flag alone leaves that window open.
func (q *Queue) recoverClosed(err *error) {
	if recover() != nil {
		*err = ErrQueueClosed
	}
}

// Close stops the queue from accepting new messages.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}

// Run consumes messages until the context is done or the queue is
// closed and drained.
func (q *Queue) Run(ctx context.Context, handler func(Message)) {
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-q.ch:
			if !ok {
				return
			}
			handler(m)
		}
	}
}
