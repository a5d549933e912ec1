package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "procmap_analysis_seconds",
		Help:    "Time spent analyzing one procedure source.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})

	GraphNodes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "procmap_graph_nodes_total",
		Help: "Number of nodes in the knowledge graph by node type.",
	}, []string{"type"})

	GraphEdges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "procmap_graph_edges_total",
		Help: "Number of edges in the knowledge graph by edge type.",
	}, []string{"type"})

	CrawlDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "procmap_crawl_seconds",
		Help:    "Time spent on crawl and trace operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	CrawlDepthReached = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "procmap_crawl_depth_reached",
		Help:    "Depth actually reached by crawl operations.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
	})

	LookupMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procmap_lookup_misses_total",
		Help: "Lookups that resolved to no node, by reason.",
	}, []string{"reason"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "procmap_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	SnapshotLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "procmap_snapshot_loads_total",
		Help: "Graph snapshot load attempts by outcome.",
	}, []string{"outcome"})
)
