package fanout

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/adapter/metrics"
	"github.com/pscheid92/streamrelay/internal/domain"
)

// Sweeper periodically probes every subscriber and drops the ones that
// did not accept the probe.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	deliverer
}

// SweepResult summarises one sweep.
type SweepResult struct {
	Probed  int
	Alive   int
	Evicted int
}

func NewSweeper(registry *Registry, clock clockwork.Clock, interval time.Duration, policy DeliveryPolicy, m *metrics.FanoutMetrics) *Sweeper {
	return &Sweeper{
		registry:  registry,
		interval:  interval,
		deliverer: deliverer{policy: policy, clock: clock, metrics: m},
	}
}

// Run sweeps on every interval tick. It blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Liveness sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Liveness sweeper stopped")
			return
		case <-ticker.Chan():
			s.safeSweep(ctx)
		}
	}
}

func (s *Sweeper) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Liveness sweep panic recovered", "panic", r)
		}
	}()
	s.Sweep(ctx)
}

// Sweep probes a snapshot of the registry and keeps the subscribers that
// accepted the probe. The registry lock is only taken for the final update.
func (s *Sweeper) Sweep(ctx context.Context) SweepResult {
	start := s.clock.Now()
	probed := s.registry.Snapshot()

	errs := s.deliverAll(ctx, metrics.KindProbe, probed, domain.ProbeMessage)

	// A cancelled sweep says nothing about the subscribers.
	if ctx.Err() != nil {
		return SweepResult{Probed: len(probed), Alive: len(probed)}
	}

	alive := make([]*Subscriber, 0, len(probed))
	for i, sub := range probed {
		if errs[i] == nil {
			alive = append(alive, sub)
			continue
		}
		slog.Debug("Evicting subscriber", "subscriber_id", sub.id.String(), "reason", deliveryResult(errs[i]))
		// Releases a transport that may still be parked on the queue.
		sub.Close()
	}

	s.registry.ReplaceProbed(probed, alive)

	result := SweepResult{Probed: len(probed), Alive: len(alive), Evicted: len(probed) - len(alive)}
	s.metrics.ObserveSweep(s.clock.Since(start), result.Evicted)

	if result.Evicted > 0 {
		slog.Info("Liveness sweep evicted subscribers", "probed", result.Probed, "evicted", result.Evicted, "remaining", result.Alive)
	} else {
		slog.Debug("Liveness sweep completed", "probed", result.Probed)
	}

	return result
}
