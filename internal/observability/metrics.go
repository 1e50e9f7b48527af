package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for a consolidation run.
type Metrics struct {
	SnapshotsLoaded   prometheus.Counter
	SnapshotsRetained prometheus.Counter
	DuplicatesDropped prometheus.Counter
	FilesSkipped      prometheus.Counter
	RunActive         prometheus.Gauge

	// Per-variable outcome metrics.
	VariablesConsolidated prometheus.Counter
	VariableFailures      *prometheus.CounterVec // labels: kind={overlap_ambiguity,structural_mismatch,write_failure,...}
	ConsolidationDuration prometheus.Histogram

	// Source decode cache.
	SourceCache *prometheus.CounterVec // labels: result={hit,miss}
}

// NewMetrics creates and registers all consolidation metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all consolidation metrics and registers them with reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.SnapshotsLoaded,
		m.SnapshotsRetained,
		m.DuplicatesDropped,
		m.FilesSkipped,
		m.RunActive,
		m.VariablesConsolidated,
		m.VariableFailures,
		m.ConsolidationDuration,
		m.SourceCache,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		SnapshotsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consolidator",
			Name:      "snapshots_loaded_total",
			Help:      "Single-time snapshots read from chunk source files.",
		}),
		SnapshotsRetained: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consolidator",
			Name:      "snapshots_retained_total",
			Help:      "Snapshots appended to an accumulator after overlap resolution.",
		}),
		DuplicatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consolidator",
			Name:      "duplicates_dropped_total",
			Help:      "Incoming snapshots dropped because their timestamp was already retained.",
		}),
		FilesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consolidator",
			Name:      "source_files_skipped_total",
			Help:      "Source files skipped because they lack the requested variable.",
		}),
		RunActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consolidator",
			Name:      "run_active",
			Help:      "1 while a consolidation run is in progress, 0 otherwise.",
		}),
		VariablesConsolidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "consolidator",
			Name:      "variables_consolidated_total",
			Help:      "Variables whose consolidated series was written.",
		}),
		VariableFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consolidator",
			Name:      "variable_failures_total",
			Help:      "Variables whose consolidation failed, by error kind.",
		}, []string{"kind"}),
		ConsolidationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "consolidator",
			Name:      "variable_duration_seconds",
			Help:      "Duration of loading, merging and writing one variable.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}),
		SourceCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consolidator",
			Name:      "source_cache_total",
			Help:      "Decoded source file cache lookups by result.",
		}, []string{"result"}),
	}
}
