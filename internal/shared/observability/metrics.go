package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gapscan_stage_seconds",
		Help:    "Time spent executing a pipeline stage.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	StageAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gapscan_stage_attempts_total",
		Help: "Total number of stage execution attempts, including retries.",
	}, []string{"stage"})

	StageFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gapscan_stage_failures_total",
		Help: "Total number of stages that ended in failed status.",
	}, []string{"stage"})

	StageCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gapscan_stage_cache_hits_total",
		Help: "Total number of stage results served from the stage cache.",
	})

	StageCacheErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gapscan_stage_cache_errors_total",
		Help: "Total number of stage cache read/write errors, all degraded to misses.",
	})

	BatchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gapscan_batch_items_total",
		Help: "Total number of batch items by outcome.",
	}, []string{"outcome"})

	GraphNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gapscan_graph_nodes_total",
		Help: "Number of nodes per derived graph view in the last built bundle.",
	}, []string{"view"})

	GraphEdges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gapscan_graph_edges_total",
		Help: "Number of edges per derived graph view in the last built bundle.",
	}, []string{"view"})

	BundleBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gapscan_bundle_build_seconds",
		Help:    "Time spent parsing a symbol table and deriving its graph bundle.",
		Buckets: prometheus.DefBuckets,
	})

	BundleCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gapscan_bundle_cache_hits_total",
		Help: "Total number of bundle requests served without a rebuild.",
	})
)
