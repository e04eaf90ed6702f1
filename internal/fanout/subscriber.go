package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/domain"
)

// Subscriber is one viewer's bounded outbound queue. The viewer transport
// drains Messages and calls Close when the viewer goes away.
type Subscriber struct {
	id        uuid.UUID
	queue     chan domain.Message
	done      chan struct{}
	closeOnce sync.Once
}

func newSubscriber(capacity int) *Subscriber {
	return &Subscriber{
		id:    uuid.New(),
		queue: make(chan domain.Message, capacity),
		done:  make(chan struct{}),
	}
}

func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// Messages returns the queue the transport drains. It is never closed;
// transports stop on Done or on their own context.
func (s *Subscriber) Messages() <-chan domain.Message {
	return s.queue
}

// Done is closed once Close has been called.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close marks the subscriber as gone. Every later delivery fails, which gets
// it evicted by the next sweep. Safe to call more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *Subscriber) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// send enqueues msg, waiting at most timeout for queue space. A zero timeout
// fails immediately on a full queue.
func (s *Subscriber) send(ctx context.Context, msg domain.Message, timeout time.Duration, clock clockwork.Clock) error {
	if s.closed() {
		return domain.ErrSubscriberClosed
	}

	select {
	case s.queue <- msg:
		return nil
	default:
	}

	if timeout <= 0 {
		return domain.ErrQueueFull
	}

	timer := clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case s.queue <- msg:
		return nil
	case <-s.done:
		return domain.ErrSubscriberClosed
	case <-timer.Chan():
		return domain.ErrSendTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
