// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ario_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ario_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Worker queue metrics
	queueAdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ario_queue_admissions_total",
			Help: "Total queue admission decisions",
		},
		[]string{"queue", "outcome"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ario_queue_depth",
			Help: "Current number of entries waiting in a queue",
		},
		[]string{"queue"},
	)

	// Chunk cache metrics
	chunkCacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ario_chunk_cache_ops_total",
			Help: "Total chunk cache lookups by outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Data source metrics
	dataSourceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ario_data_source_requests_total",
			Help: "Total whole-object retrieval attempts per source",
		},
		[]string{"source", "status"},
	)

	// Bundle processing metrics
	bundlesImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ario_bundles_imported_total",
			Help: "Total bundle downloads by outcome",
		},
		[]string{"status"},
	)

	bundlesUnbundledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ario_bundles_unbundled_total",
			Help: "Total bundles parsed by outcome",
		},
		[]string{"status"},
	)

	dataItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ario_data_items_total",
			Help: "Total parsed data items by filter outcome",
		},
		[]string{"outcome"},
	)

	// Event fan-out metrics
	itemEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ario_item_events_dropped_total",
			Help: "Total data-item events dropped for slow subscribers",
		},
	)

	itemEventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ario_item_event_subscribers",
			Help: "Number of active data-item event subscribers",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordQueueAdmission records one queue admission decision.
// Outcome is "admitted", "forced" (prioritized past capacity) or "dropped".
func RecordQueueAdmission(queue, outcome string) {
	queueAdmissionsTotal.WithLabelValues(queue, outcome).Inc()
}

// SetQueueDepth records the current depth of a queue.
func SetQueueDepth(queue string, depth int) {
	queueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordChunkCacheOp records a chunk cache lookup.
// Kind is "data" or "metadata"; outcome is "hit", "miss" or "error".
func RecordChunkCacheOp(kind, outcome string) {
	chunkCacheOpsTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDataSourceRequest records one retrieval attempt against a source.
func RecordDataSourceRequest(source string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	dataSourceRequestsTotal.WithLabelValues(source, status).Inc()
}

// RecordBundleImport records a bundle download outcome.
func RecordBundleImport(status string) {
	bundlesImportedTotal.WithLabelValues(status).Inc()
}

// RecordBundleUnbundled records a bundle parse outcome.
func RecordBundleUnbundled(status string) {
	bundlesUnbundledTotal.WithLabelValues(status).Inc()
}

// RecordDataItem records a parsed data item's filter outcome
// ("matched" or "skipped").
func RecordDataItem(outcome string) {
	dataItemsTotal.WithLabelValues(outcome).Inc()
}

// RecordItemEventDropped counts an event dropped for a slow subscriber.
func RecordItemEventDropped() {
	itemEventsDroppedTotal.Inc()
}

// SetItemEventSubscribers records the number of active subscribers.
func SetItemEventSubscribers(n int) {
	itemEventSubscribers.Set(float64(n))
}
