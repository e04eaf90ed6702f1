package fanout

import (
	"sync"
	"testing"
	"time"

	"github.com/pscheid92/streamrelay/internal/domain"
)

const testQueueSize = 10

func recv(t *testing.T, sub *Subscriber) domain.Message {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

func assertNoMessage(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case msg := <-sub.Messages():
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

// drainKeepalive consumes the message every fresh subscriber starts with.
func drainKeepalive(t *testing.T, sub *Subscriber) {
	t.Helper()
	if msg := recv(t, sub); msg != domain.KeepaliveMessage {
		t.Fatalf("expected keepalive, got %q", msg)
	}
}

// collector drains a subscriber in the background, like a viewer transport.
type collector struct {
	mu       sync.Mutex
	messages []domain.Message
	stop     chan struct{}
	done     chan struct{}
}

func collect(sub *Subscriber) *collector {
	c := &collector{stop: make(chan struct{}), done: make(chan struct{})}
	go func() {
		defer close(c.done)
		for {
			select {
			case msg := <-sub.Messages():
				c.mu.Lock()
				c.messages = append(c.messages, msg)
				c.mu.Unlock()
			case <-c.stop:
				return
			}
		}
	}()
	return c
}

func (c *collector) received() []domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Message, len(c.messages))
	copy(out, c.messages)
	return out
}

func (c *collector) close() {
	close(c.stop)
	<-c.done
}
