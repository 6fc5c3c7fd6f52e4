// Package metrics exposes Prometheus collectors for the forwarding
// pipeline: per-group/per-outcome query counters and a latency histogram,
// mounted under the admin HTTP surface's /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry wraps the collectors the forwarder reports through. It
// implements forwarder.Metrics without importing that package, avoiding an
// import cycle between forwarder and metrics.
type Registry struct {
	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	registry      *prometheus.Registry
}

// New creates a Registry with its own prometheus.Registry (not the global
// default), so the admin API can mount it explicitly and tests can build
// isolated instances without collector-name collisions.
func New() *Registry {
	reg := prometheus.NewRegistry()

	queriesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "routewarden",
		Name:      "queries_total",
		Help:      "Total DNS queries handled, labeled by upstream group and outcome.",
	}, []string{"group", "outcome"})

	queryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "routewarden",
		Name:      "query_duration_seconds",
		Help:      "Forwarding pipeline latency, labeled by upstream group and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"group", "outcome"})

	reg.MustRegister(queriesTotal, queryDuration)

	return &Registry{
		queriesTotal:  queriesTotal,
		queryDuration: queryDuration,
		registry:      reg,
	}
}

// ObserveQuery records one completed query's outcome and latency.
func (r *Registry) ObserveQuery(group, outcome string, duration time.Duration) {
	r.queriesTotal.WithLabelValues(group, outcome).Inc()
	r.queryDuration.WithLabelValues(group, outcome).Observe(duration.Seconds())
}

// Gatherer exposes the underlying prometheus.Registry for mounting under an
// HTTP handler (see internal/adminapi).
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}
