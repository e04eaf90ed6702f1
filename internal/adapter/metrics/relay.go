package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RelayMetrics covers upstream relay invocations.
type RelayMetrics struct {
	RelaysTotal        *prometheus.CounterVec
	ChunksTotal        *prometheus.CounterVec
	BytesTotal         prometheus.Counter
	RelayDuration      prometheus.Histogram
	MissingCredentials prometheus.Counter
}

func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	m := &RelayMetrics{
		RelaysTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "relays_total",
			Help:      "Relay invocations by result.",
		}, []string{"result"}),
		ChunksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "chunks_total",
			Help:      "Upstream chunks by outcome (published/dropped).",
		}, []string{"result"}),
		BytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "bytes_total",
			Help:      "Bytes read from upstream response bodies.",
		}),
		RelayDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "duration_seconds",
			Help:      "Duration of complete relay invocations.",
			Buckets:   []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		MissingCredentials: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "missing_credentials_total",
			Help:      "Relays attempted without an upstream credential.",
		}),
	}

	reg.MustRegister(m.RelaysTotal, m.ChunksTotal, m.BytesTotal, m.RelayDuration, m.MissingCredentials)
	return m
}

func (m *RelayMetrics) RecordChunk(result string, size int) {
	if m == nil {
		return
	}
	m.ChunksTotal.WithLabelValues(result).Inc()
	m.BytesTotal.Add(float64(size))
}

func (m *RelayMetrics) RecordMissingCredential() {
	if m == nil {
		return
	}
	m.MissingCredentials.Inc()
}

func (m *RelayMetrics) ObserveRelay(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.RelaysTotal.WithLabelValues(result).Inc()
	m.RelayDuration.Observe(d.Seconds())
}
