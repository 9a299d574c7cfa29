// Package metrics provides Prometheus instrumentation for the guess service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ResolutionCycles counts resolution cycles by result (ok, feed_error,
	// persist_error, enumerate_error, skipped_busy, skipped_locked, panic).
	ResolutionCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_resolution_cycles_total",
		Help: "Total resolution cycles by result",
	}, []string{"result"})

	// GuessesResolved counts resolved guesses by verdict.
	GuessesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_guesses_resolved_total",
		Help: "Guesses resolved by verdict",
	}, []string{"verdict"})

	// GuessesSkipped counts guesses left unresolved in a cycle, by reason.
	GuessesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_guesses_skipped_total",
		Help: "Guesses skipped during resolution by reason",
	}, []string{"reason"})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "btcguess_resolution_cycle_duration_seconds",
		Help:    "Resolution cycle duration in seconds",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// LastPrice is the most recently recorded BTC/USD price.
	LastPrice = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "btcguess_last_price_usd",
		Help: "Most recently recorded BTC/USD price",
	})

	// UndecodableItems counts stored rows skipped because they could not be decoded.
	UndecodableItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_undecodable_items_total",
		Help: "Stored items skipped because they failed to decode",
	}, []string{"table"})

	GuessesPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_guesses_placed_total",
		Help: "Guesses placed by direction",
	}, []string{"direction"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "btcguess_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "btcguess_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "route"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps label cardinality bounded
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
