package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeHit   = "hit"
	outcomeMiss  = "miss"
	outcomeError = "error"
	outcomeOK    = "ok"
)

// Metrics counts cache outcomes. A nil *Metrics records nothing.
type Metrics struct {
	lookups       *prometheus.CounterVec
	writes        *prometheus.CounterVec
	generations   *prometheus.CounterVec
	lookupSeconds prometheus.Histogram
}

// NewMetrics registers the cache collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rag_gateway",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by outcome.",
		}, []string{"outcome"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rag_gateway",
			Subsystem: "cache",
			Name:      "writes_total",
			Help:      "Cache write-backs by outcome.",
		}, []string{"outcome"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rag_gateway",
			Name:      "generations_total",
			Help:      "Generator invocations on cache misses by outcome.",
		}, []string{"outcome"}),
		lookupSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "rag_gateway",
			Subsystem: "cache",
			Name:      "lookup_seconds",
			Help:      "Cache lookup latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(m.lookups, m.writes, m.generations, m.lookupSeconds)
	return m
}

func (m *Metrics) lookup(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(outcome).Inc()
	m.lookupSeconds.Observe(d.Seconds())
}

func (m *Metrics) write(outcome string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) generation(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}
