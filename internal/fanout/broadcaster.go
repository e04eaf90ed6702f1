package fanout

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/adapter/metrics"
	"github.com/pscheid92/streamrelay/internal/domain"
)

// Broadcaster delivers messages to every subscriber in the registry.
type Broadcaster struct {
	registry *Registry
	deliverer
}

var _ domain.Publisher = (*Broadcaster)(nil)

func NewBroadcaster(registry *Registry, clock clockwork.Clock, policy DeliveryPolicy, m *metrics.FanoutMetrics) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		deliverer: deliverer{policy: policy, clock: clock, metrics: m},
	}
}

// Broadcast attempts delivery of msg to every subscriber registered at call
// time and returns once each has had one attempt. Failed deliveries are left
// for the next sweep to clean up.
func (b *Broadcaster) Broadcast(ctx context.Context, msg domain.Message) {
	start := b.clock.Now()
	subs := b.registry.Snapshot()

	errs := b.deliverAll(ctx, metrics.KindBroadcast, subs, msg)

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}

	b.metrics.ObserveBroadcast(b.clock.Since(start))
	slog.DebugContext(ctx, "Broadcast delivered",
		"subscribers", len(subs),
		"failed", failed,
		"bytes", len(msg),
	)
}

// Publish implements domain.Publisher. It never returns an error.
func (b *Broadcaster) Publish(ctx context.Context, msg domain.Message) error {
	b.Broadcast(ctx, msg)
	return nil
}
