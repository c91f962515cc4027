// Package metrics registers the server's Prometheus instruments. All
// instruments live on the default registry; /metrics serves them via
// promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/umami-labs/brigade/pkg/resource"
	"github.com/umami-labs/brigade/pkg/retrieval"
)

var (
	// StreamsTotal counts completed chat streams by terminal status.
	StreamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brigade_streams_total",
		Help: "Completed chat streams by terminal status.",
	}, []string{"status"})

	// EventsEmitted counts stream events written to clients by kind.
	EventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "brigade_stream_events_total",
		Help: "Stream events written to clients by kind.",
	}, []string{"kind"})

	// DecayedSessions counts sessions cleared by the idle decay job.
	DecayedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "brigade_decayed_sessions_total",
		Help: "Sessions cleared by the idle decay job.",
	})
)

// ObserveMonitor exports the resource monitor's degraded flag as a gauge.
func ObserveMonitor(m *resource.Monitor) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "brigade_degraded",
		Help: "1 when the process runs in degraded mode.",
	}, func() float64 {
		if m.Degraded() {
			return 1
		}
		return 0
	})
}

// ObserveThrottle exports the embedding throttle's queue depth and slow-wait
// counters.
func ObserveThrottle(t *retrieval.Throttle) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "brigade_embedding_queue_depth",
		Help: "Goroutines waiting for an embedding permit.",
	}, func() float64 {
		return float64(t.Snapshot().QueueDepth)
	})
	promauto.NewCounterFunc(prometheus.CounterOpts{
		Name: "brigade_embedding_slow_waits_total",
		Help: "Embedding permit waits that exceeded the slow threshold.",
	}, func() float64 {
		return float64(t.Snapshot().SlowWaits)
	})
}
