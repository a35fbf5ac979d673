// Package telemetry provides logging setup and Prometheus metrics for the email service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<EMAILSVC_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (the route template) rather than the raw request
// URL. App ids and names are never used as label values.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "emailsvc"

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate:  rate(emailsvc_http_requests_total[5m])
//   - p99 latency:   histogram_quantile(0.99, sum by (path, le) (rate(emailsvc_http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request latencies, by method and route template.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// App lifecycle metrics.
//
// APIKeysProvisionedTotal carries result="created" for a fresh key and
// result="existing" when provisioning found a live key at the provider.
var (
	AppsRegisteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apps_registered_total",
			Help:      "Total number of apps registered.",
		},
	)

	AppsDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "apps_deleted_total",
			Help:      "Total number of apps deleted.",
		},
	)

	APIKeysProvisionedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_provisioned_total",
			Help:      "Total number of API key provisioning calls that succeeded, by result.",
		},
		[]string{"result"},
	)

	APIKeysRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_keys_revoked_total",
			Help:      "Total number of API keys revoked.",
		},
	)
)

// EmailsSentTotal counts send attempts by result ("success" or "error").
var EmailsSentTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "emails_sent_total",
		Help:      "Total number of outbound email send attempts, by result.",
	},
	[]string{"result"},
)

// ProviderErrorsTotal counts unexpected failures from external providers.
// Tolerated not-found and conflict responses are not counted.
//
// Example alert: increase(emailsvc_provider_errors_total{provider="apigateway"}[10m]) > 5
var ProviderErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_errors_total",
		Help:      "Total number of unexpected external provider errors, by provider and operation.",
	},
	[]string{"provider", "operation"},
)
