// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for API requests.
const (
	OutcomeOK        = "ok"
	OutcomeTransient = "transient"
	OutcomePermanent = "permanent"
	OutcomeError     = "error"
)

var (
	apiRequestsTotal          *prometheus.CounterVec
	apiRetriesTotal           *prometheus.CounterVec
	apiRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds     prometheus.Histogram
	storeSavesTotal           *prometheus.CounterVec
	storeSaveDurationSeconds  prometheus.Histogram
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors with the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		apiRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hillwatch_api_requests_total",
				Help: "Upstream API requests, labeled by endpoint and outcome.",
			},
			[]string{"endpoint", "outcome"},
		)

		apiRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hillwatch_api_retries_total",
				Help: "Retries issued after transient upstream failures, labeled by endpoint.",
			},
			[]string{"endpoint"},
		)

		apiRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hillwatch_api_request_duration_seconds",
				Help:    "Latency of single upstream attempts, labeled by endpoint.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		)

		rateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hillwatch_rate_limit_delay_seconds",
				Help:    "Time callers spent waiting on the shared request budget.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		)

		storeSavesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hillwatch_store_saves_total",
				Help: "Full-dataset saves, labeled by result.",
			},
			[]string{"result"},
		)

		storeSaveDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hillwatch_store_save_duration_seconds",
				Help:    "Wall time of successful full-dataset saves.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hillwatch_http_requests_total",
				Help: "Operator HTTP requests, labeled by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "hillwatch_http_request_duration_seconds",
				Help:    "Operator HTTP request latency, labeled by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAPIRequest records one upstream attempt.
func ObserveAPIRequest(endpoint, outcome string, duration time.Duration) {
	Init()
	apiRequestsTotal.WithLabelValues(endpoint, outcome).Inc()
	apiRequestDurationSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveAPIRetry counts a retry scheduled for endpoint.
func ObserveAPIRetry(endpoint string) {
	Init()
	apiRetriesTotal.WithLabelValues(endpoint).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	Init()
	rateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveStoreSave records a save attempt sequence that ended in result ("ok" or "error").
func ObserveStoreSave(result string, duration time.Duration) {
	Init()
	storeSavesTotal.WithLabelValues(result).Inc()
	if result == OutcomeOK {
		storeSaveDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveHTTPRequest records one operator HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
