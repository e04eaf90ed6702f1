package fanout

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/streamrelay/internal/adapter/metrics"
	"github.com/pscheid92/streamrelay/internal/domain"
	"golang.org/x/sync/errgroup"
)

// DeliveryPolicy bounds individual delivery attempts.
type DeliveryPolicy struct {
	// SendTimeout is how long one delivery may wait for queue space.
	// Zero means a full queue fails immediately.
	SendTimeout time.Duration
	// Concurrency limits parallel deliveries per call (0 = one goroutine per subscriber).
	Concurrency int
}

type deliverer struct {
	policy  DeliveryPolicy
	clock   clockwork.Clock
	metrics *metrics.FanoutMetrics
}

// deliverAll attempts msg on every subscriber and returns one error slot per
// subscriber, in input order.
func (d deliverer) deliverAll(ctx context.Context, kind string, subs []*Subscriber, msg domain.Message) []error {
	errs := make([]error, len(subs))

	var g errgroup.Group
	if d.policy.Concurrency > 0 {
		g.SetLimit(d.policy.Concurrency)
	}
	for i, sub := range subs {
		g.Go(func() error {
			err := sub.send(ctx, msg, d.policy.SendTimeout, d.clock)
			errs[i] = err
			d.metrics.RecordDelivery(kind, deliveryResult(err))
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

func deliveryResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrSubscriberClosed):
		return "closed"
	case errors.Is(err, domain.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, domain.ErrSendTimeout):
		return "timeout"
	default:
		return "cancelled"
	}
}
