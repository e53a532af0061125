// Package metrics defines custom Prometheus metrics for netvault.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netvault_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netvault_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netvault_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netvault_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Upload pipeline metrics.
var (
	// UploadsTotal counts upload pipeline outcomes by result kind
	// (stored, duplicate, or the rejecting error code).
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netvault_uploads_total",
			Help: "Upload pipeline outcomes",
		},
		[]string{"outcome"},
	)

	// UploadDuration observes the full pipeline latency per upload.
	UploadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "netvault_upload_duration_seconds",
			Help:    "Upload pipeline latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ArtifactsTotal is a gauge tracking artifacts in the registry.
	ArtifactsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "netvault_artifacts_total",
			Help: "Total stored artifacts",
		},
	)

	// BytesStoredTotal counts compressed bytes written to storage.
	BytesStoredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "netvault_bytes_stored_total",
			Help: "Total compressed bytes stored",
		},
	)

	// BytesReceivedTotal counts uncompressed bytes accepted from uploads.
	BytesReceivedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "netvault_bytes_received_total",
			Help: "Total uncompressed upload bytes accepted",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			HTTPResponseSize,
			UploadsTotal,
			UploadDuration,
			ArtifactsTotal,
			BytesStoredTotal,
			BytesReceivedTotal,
		)
		// Initialize UploadsTotal so it appears in /metrics output even
		// before any upload has been attempted.
		UploadsTotal.WithLabelValues("stored")
	})
}

// NormalizePath maps actual request paths to normalized path templates
// suitable for use as Prometheus metric labels. This avoids high-cardinality
// labels from individual artifact names.
func NormalizePath(path string) string {
	switch path {
	case "/health":
		return "/health"
	case "/metrics":
		return "/metrics"
	case "/docs", "/docs/":
		return "/docs"
	case "/openapi.json":
		return "/openapi.json"
	case "/", "":
		return "/"
	}

	// Stoplight Elements assets under /docs.
	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}

	if path == "/api/v1/nets" || path == "/api/v1/nets/" {
		return "/api/v1/nets"
	}
	if strings.HasPrefix(path, "/api/v1/nets/") {
		return "/api/v1/nets/{name}"
	}

	return "/other"
}
