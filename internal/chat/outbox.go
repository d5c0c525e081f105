//go:generate go run go.uber.org/mock/mockgen -source=outbox.go -destination=../mocks/mock_outbox.go -package=mocks

package chat

import (
	"context"
	"sync"
	"time"
)

// Outbound is the delivery handle of a session.
type Outbound interface {
	// Deliver enqueues msg, waiting at most timeout for room in the queue.
	Deliver(msg string, timeout time.Duration) error
	// Send enqueues msg, waiting until ctx is done or the handle is closed.
	Send(ctx context.Context, msg string) error
	Close()
}

// Outbox is a bounded message queue drained by a transport relay.
type Outbox struct {
	queue chan string
	done  chan struct{}
	once  sync.Once
}

func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 16
	}
	return &Outbox{
		queue: make(chan string, size),
		done:  make(chan struct{}),
	}
}

// Messages returns the queue the relay reads from. It is never closed; watch Done instead.
func (o *Outbox) Messages() <-chan string {
	return o.queue
}

// Done is closed once the outbox is closed.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

func (o *Outbox) Deliver(msg string, timeout time.Duration) error {
	select {
	case <-o.done:
		return ErrOutboxClosed
	default:
	}

	select {
	case o.queue <- msg:
		return nil
	default:
	}

	if timeout <= 0 {
		return ErrOutboxFull
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case o.queue <- msg:
		return nil
	case <-o.done:
		return ErrOutboxClosed
	case <-timer.C:
		return ErrOutboxFull
	}
}

func (o *Outbox) Send(ctx context.Context, msg string) error {
	select {
	case <-o.done:
		return ErrOutboxClosed
	default:
	}

	select {
	case o.queue <- msg:
		return nil
	case <-o.done:
		return ErrOutboxClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain returns whatever is still queued without waiting.
func (o *Outbox) drain() []string {
	var msgs []string
	for {
		select {
		case msg := <-o.queue:
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

// Close marks the outbox closed and wakes any blocked enqueue. Safe to call more than once.
func (o *Outbox) Close() {
	o.once.Do(func() {
		close(o.done)
	})
}
