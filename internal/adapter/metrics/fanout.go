package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Delivery kinds.
const (
	KindBroadcast = "broadcast"
	KindProbe     = "probe"
)

// FanoutMetrics covers the subscriber registry, broadcasts and liveness sweeps.
type FanoutMetrics struct {
	Subscribers         prometheus.Gauge
	RegistrationsTotal  *prometheus.CounterVec
	DeliveriesTotal     *prometheus.CounterVec
	BroadcastsTotal     prometheus.Counter
	BroadcastDuration   prometheus.Histogram
	SweepsTotal         prometheus.Counter
	SweepEvictionsTotal prometheus.Counter
	SweepDuration       prometheus.Histogram
}

func NewFanoutMetrics(reg prometheus.Registerer) *FanoutMetrics {
	m := &FanoutMetrics{
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "subscribers",
			Help:      "Number of subscribers currently in the registry.",
		}),
		RegistrationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "registrations_total",
			Help:      "Viewer registrations by result.",
		}, []string{"result"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "deliveries_total",
			Help:      "Delivery attempts by kind (broadcast/probe) and result.",
		}, []string{"kind", "result"}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast calls.",
		}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "broadcast_duration_seconds",
			Help:      "Time for one broadcast to attempt delivery to every subscriber.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		}),
		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "sweeps_total",
			Help:      "Total number of liveness sweeps.",
		}),
		SweepEvictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "sweep_evictions_total",
			Help:      "Subscribers removed because they failed a liveness probe.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of liveness sweeps.",
			Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5, 10},
		}),
	}

	reg.MustRegister(
		m.Subscribers,
		m.RegistrationsTotal,
		m.DeliveriesTotal,
		m.BroadcastsTotal,
		m.BroadcastDuration,
		m.SweepsTotal,
		m.SweepEvictionsTotal,
		m.SweepDuration,
	)
	return m
}

func (m *FanoutMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.Subscribers.Set(float64(n))
}

func (m *FanoutMetrics) RecordRegistration(result string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

func (m *FanoutMetrics) RecordDelivery(kind, result string) {
	if m == nil {
		return
	}
	m.DeliveriesTotal.WithLabelValues(kind, result).Inc()
}

func (m *FanoutMetrics) ObserveBroadcast(d time.Duration) {
	if m == nil {
		return
	}
	m.BroadcastsTotal.Inc()
	m.BroadcastDuration.Observe(d.Seconds())
}

func (m *FanoutMetrics) ObserveSweep(d time.Duration, evicted int) {
	if m == nil {
		return
	}
	m.SweepsTotal.Inc()
	m.SweepEvictionsTotal.Add(float64(evicted))
	m.SweepDuration.Observe(d.Seconds())
}
