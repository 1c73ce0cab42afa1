// Package metrics provides Prometheus metrics for the CSN graph engine.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CSNFilesSkipped tracks CSN files skipped because they could not be read or parsed
	CSNFilesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "csngraph",
			Subsystem: "csn",
			Name:      "files_skipped_total",
			Help:      "Total number of CSN files skipped due to read or parse errors",
		},
	)

	// RelationshipsDiscovered tracks the size of the last discovery run by method
	RelationshipsDiscovered = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "csngraph",
			Subsystem: "ontology",
			Name:      "relationships_discovered",
			Help:      "Number of relationships produced by the last discovery run",
		},
		[]string{"method"},
	)

	// RelationshipsPersisted tracks ontology upserts by outcome
	RelationshipsPersisted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csngraph",
			Subsystem: "ontology",
			Name:      "relationships_persisted_total",
			Help:      "Total number of relationships inserted or updated in the ontology store",
		},
		[]string{"outcome"},
	)

	// GraphBuildsTotal tracks graph builds by type and status
	GraphBuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csngraph",
			Subsystem: "graph",
			Name:      "builds_total",
			Help:      "Total number of graph builds by graph type and status",
		},
		[]string{"graph_type", "status"},
	)

	// GraphBuildDuration tracks graph build duration in seconds
	GraphBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "csngraph",
			Subsystem: "graph",
			Name:      "build_duration_seconds",
			Help:      "Duration of graph builds in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"graph_type"},
	)

	// GraphCacheRequests tracks graph reads by cache outcome (hit, miss, bypass)
	GraphCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csngraph",
			Subsystem: "graph_cache",
			Name:      "requests_total",
			Help:      "Total number of graph reads by cache outcome",
		},
		[]string{"graph_type", "result"},
	)

	// GraphCacheWriteFailures tracks snapshot writes that failed without failing the build
	GraphCacheWriteFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csngraph",
			Subsystem: "graph_cache",
			Name:      "write_failures_total",
			Help:      "Total number of graph snapshot writes that failed",
		},
		[]string{"graph_type"},
	)

	// DataSourceQueries tracks queries sent to the external data source
	DataSourceQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csngraph",
			Subsystem: "datasource",
			Name:      "queries_total",
			Help:      "Total number of data source queries by source type and status",
		},
		[]string{"source", "status"},
	)

	// ToolCalls tracks MCP tool calls by tool and result code ("ok" on success)
	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "csngraph",
			Subsystem: "mcp",
			Name:      "tool_calls_total",
			Help:      "Total number of MCP tool calls by tool and result code",
		},
		[]string{"tool", "code"},
	)
)

// Handler returns the HTTP handler that exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
