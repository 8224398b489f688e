// Package metrics exposes Prometheus instrumentation for the stock core.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors for ledger and assignment operations.
type Metrics struct {
	AppendTotal          *prometheus.CounterVec
	RecomputeTotal       *prometheus.CounterVec
	RecomputeDuration    prometheus.Histogram
	EntriesReplacedTotal prometheus.Counter
	AssignTotal          *prometheus.CounterVec
}

var singleton = sync.OnceValue(func() *Metrics {
	return &Metrics{
		AppendTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stocklane",
			Subsystem: "ledger",
			Name:      "append_total",
			Help:      "Total number of ledger append operations.",
		}, []string{"result"}),
		RecomputeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stocklane",
			Subsystem: "ledger",
			Name:      "recompute_total",
			Help:      "Total number of ledger recompute passes.",
		}, []string{"result"}),
		RecomputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stocklane",
			Subsystem: "ledger",
			Name:      "recompute_duration_seconds",
			Help:      "Duration distribution of ledger recompute passes.",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.05,
				0.1, 0.5, 1, 5, 10,
			},
		}),
		EntriesReplacedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "stocklane",
			Subsystem: "ledger",
			Name:      "entries_replaced_total",
			Help:      "Total number of calculated entries superseded by recompute.",
		}),
		AssignTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stocklane",
			Subsystem: "assignment",
			Name:      "assign_total",
			Help:      "Total number of assignment create attempts.",
		}, []string{"direction", "result"}),
	}
})

// Get returns the process-wide metrics collectors.
func Get() *Metrics {
	return singleton()
}
