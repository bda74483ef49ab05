package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pybundle_parsing_seconds",
		Help:    "Time spent parsing a source module.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pybundle_phase_seconds",
		Help:    "Time spent in each phase of a bundling run.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	ModulesLoadedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pybundle_modules_loaded_total",
		Help: "Total number of modules read and parsed.",
	})

	ModuleCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pybundle_module_cache_hits_total",
		Help: "Total number of module loads served from the per-run cache.",
	})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pybundle_graph_nodes_total",
		Help: "Number of definitions in the last definition graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pybundle_graph_edges_total",
		Help: "Number of dependency edges in the last definition graph.",
	})

	PreservedImports = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pybundle_preserved_imports",
		Help: "Number of import statements in the last bundle preamble.",
	})

	RenamedNamesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pybundle_renamed_names_total",
		Help: "Total number of names renamed to resolve collisions.",
	})

	CycleAdvisoriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pybundle_cycle_advisories_total",
		Help: "Total number of tolerated definition cycles.",
	})

	BundleRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pybundle_runs_total",
		Help: "Total number of bundling runs by outcome.",
	}, []string{"status"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pybundle_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	WatcherThrottledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pybundle_watcher_throttled_total",
		Help: "Total number of rebuilds delayed by the rebuild limiter.",
	})
)

// WriteMetricsFile dumps the default registry in the text exposition format,
// for node_exporter's textfile collector.
func WriteMetricsFile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics file %s: %w", path, err)
	}
	return nil
}
