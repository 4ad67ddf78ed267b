// Package metrics provides Prometheus instrumentation for the engine.
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
	// TradesTotal counts executed trades, partitioned by kind (buy, sell,
	// ratio_buy, admin_buy, admin_sell, admin_clear).
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_trades_total",
		Help: "Total number of trades executed",
	}, []string{"kind"})

	// TradeVolume accumulates units filled per item.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_trade_volume_total",
		Help: "Cumulative units filled",
	}, []string{"item", "kind"})

	// YearTransitions counts staging state machine transitions
	// (stage, settle, revert).
	YearTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_year_transitions_total",
		Help: "Staging state machine transitions",
	}, []string{"transition"})

	// EngineErrors counts rejected operations by error class.
	EngineErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_engine_errors_total",
		Help: "Operations rejected by the engine, by error class",
	}, []string{"class"})

	// Participants tracks registered portfolios.
	Participants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "siege_participants",
		Help: "Number of registered participants",
	})

	// WebSocketClients tracks connected event stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "siege_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "siege_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "siege_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
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
