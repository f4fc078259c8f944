// Package telemetry exposes Prometheus collectors for the discovery service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the observers below.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)

	hunterFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_fetch_total",
			Help: "Round fetches, labeled by strategy and outcome.",
		},
		[]string{"strategy", "outcome"},
	)

	hunterFetchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hunter_fetch_duration_seconds",
			Help:    "Round fetch latency, labeled by strategy.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15},
		},
		[]string{"strategy"},
	)

	hunterCandidatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_candidates_total",
			Help: "Extracted candidates, labeled by verdict (accepted, noise, duplicate).",
		},
		[]string{"verdict"},
	)

	hunterClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hunter_classifications_total",
			Help: "Classifications, labeled by mode (heuristic, remote, fallback).",
		},
		[]string{"mode"},
	)

	hunterBusLaggedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hunter_bus_lagged_events_total",
			Help: "Events skipped by subscribers that fell behind the bus.",
		},
	)

	hunterBusSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hunter_bus_subscribers",
			Help: "Number of live event bus subscriptions.",
		},
	)

	hunterRateLimitDelaysSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hunter_rate_limit_delays_seconds",
			Help:    "Histogram of rate limit wait durations.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"key"},
	)
)

// Handler returns the standard Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming responses working behind the recorder.
func (rec *statusRecorder) Flush() {
	if f, ok := rec.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// ObserveHTTPRequest records metrics for an HTTP request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveFetch records one round fetch.
func ObserveFetch(strategy, outcome string, duration time.Duration) {
	hunterFetchTotal.WithLabelValues(strategy, outcome).Inc()
	hunterFetchDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveCandidate records the verdict for one extracted candidate.
func ObserveCandidate(verdict string) {
	hunterCandidatesTotal.WithLabelValues(verdict).Inc()
}

// ObserveClassification records which path produced a classification.
func ObserveClassification(mode string) {
	hunterClassificationsTotal.WithLabelValues(mode).Inc()
}

// ObserveLagged records events a slow subscriber missed.
func ObserveLagged(missed uint64) {
	hunterBusLaggedTotal.Add(float64(missed))
}

// IncSubscribers increments the live subscription gauge.
func IncSubscribers() {
	hunterBusSubscribers.Inc()
}

// DecSubscribers decrements the live subscription gauge.
func DecSubscribers() {
	hunterBusSubscribers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(key string, duration time.Duration) {
	hunterRateLimitDelaysSeconds.WithLabelValues(key).Observe(duration.Seconds())
}
