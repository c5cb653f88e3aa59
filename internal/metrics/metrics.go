// Package metrics provides Prometheus instrumentation for the catalog engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ForecastsTotal counts forecast calls by outcome: model, fallback or absent.
	ForecastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_forecasts_total",
		Help: "Total demand forecasts computed, by outcome",
	}, []string{"outcome", "method"})

	// ForecastCacheHits counts forecasts served from the in-process memo.
	ForecastCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_forecast_cache_hits_total",
		Help: "Forecasts served from the in-process cache",
	})

	// OptimizationLatency tracks single-item price optimization latency.
	OptimizationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_price_optimization_latency_seconds",
		Help:    "Price optimization latency in seconds",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	})

	// OptimizationBatchSize tracks the number of items per optimize request.
	OptimizationBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_price_optimization_batch_size",
		Help:    "Items per price optimization request",
		Buckets: prometheus.ExponentialBuckets(1, 4, 6),
	})

	// OptimizationErrors counts rejected optimization requests by reason.
	OptimizationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_price_optimization_errors_total",
		Help: "Rejected price optimization requests",
	}, []string{"reason"})

	// CatalogProducts tracks the number of products seen by the last listing.
	CatalogProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_products",
		Help: "Products returned by the most recent unfiltered listing",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by chi route pattern so product IDs do not explode
// label cardinality.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
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

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
