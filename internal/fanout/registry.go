package fanout

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/pscheid92/streamrelay/internal/adapter/metrics"
	"github.com/pscheid92/streamrelay/internal/domain"
)

// Registry is the live set of subscribers. Register and the sweep-side
// replacements are the only mutations; readers work on snapshots.
type Registry struct {
	mu          sync.Mutex
	subscribers []*Subscriber

	queueSize      int
	maxSubscribers int
	metrics        *metrics.FanoutMetrics
}

// NewRegistry creates an empty registry.
// queueSize is the per-subscriber queue capacity.
// maxSubscribers caps the registry size (0 = unlimited); unswept dead
// subscribers count toward the cap until the next sweep.
func NewRegistry(queueSize, maxSubscribers int, m *metrics.FanoutMetrics) *Registry {
	return &Registry{
		queueSize:      queueSize,
		maxSubscribers: maxSubscribers,
		metrics:        m,
	}
}

// Register creates a subscriber with the keepalive message already queued
// and adds it to the registry. Returns an error wrapping
// domain.ErrConnectionSetup if the keepalive cannot be queued or the
// registry is full.
func (r *Registry) Register() (*Subscriber, error) {
	sub := newSubscriber(r.queueSize)

	select {
	case sub.queue <- domain.KeepaliveMessage:
	default:
		r.metrics.RecordRegistration("rejected")
		return nil, fmt.Errorf("%w: keepalive could not be queued", domain.ErrConnectionSetup)
	}

	r.mu.Lock()
	if r.maxSubscribers > 0 && len(r.subscribers) >= r.maxSubscribers {
		r.mu.Unlock()
		r.metrics.RecordRegistration("rejected")
		slog.Warn("Rejecting subscriber: registry full", "max_subscribers", r.maxSubscribers)
		return nil, fmt.Errorf("%w: subscriber limit (%d) reached", domain.ErrConnectionSetup, r.maxSubscribers)
	}
	r.subscribers = append(r.subscribers, sub)
	total := len(r.subscribers)
	r.mu.Unlock()

	r.metrics.RecordRegistration("ok")
	r.metrics.SetSubscribers(total)
	slog.Debug("Subscriber registered", "subscriber_id", sub.id.String(), "total_subscribers", total)
	return sub, nil
}

// Snapshot returns a copy of the current subscriber handles.
func (r *Registry) Snapshot() []*Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.subscribers)
}

// Replace substitutes the whole subscriber set.
func (r *Registry) Replace(subs []*Subscriber) {
	r.mu.Lock()
	r.subscribers = slices.Clone(subs)
	total := len(r.subscribers)
	r.mu.Unlock()

	r.metrics.SetSubscribers(total)
}

// ReplaceProbed swaps the probed subscribers for the alive subset while
// keeping anything registered after the probe snapshot was taken.
func (r *Registry) ReplaceProbed(probed, alive []*Subscriber) {
	seen := make(map[*Subscriber]struct{}, len(probed))
	for _, sub := range probed {
		seen[sub] = struct{}{}
	}

	r.mu.Lock()
	next := make([]*Subscriber, 0, len(alive)+max(len(r.subscribers)-len(probed), 0))
	next = append(next, alive...)
	for _, sub := range r.subscribers {
		if _, ok := seen[sub]; !ok {
			next = append(next, sub)
		}
	}
	r.subscribers = next
	total := len(next)
	r.mu.Unlock()

	r.metrics.SetSubscribers(total)
}

// Len returns the number of registered subscribers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}
