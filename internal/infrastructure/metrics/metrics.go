// Package metrics provides Prometheus instrumentation for the quoter.
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
	// Runs counts strategy invocations by outcome (ok, error, skipped).
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_runs_total",
		Help: "Strategy invocations by outcome",
	}, []string{"symbol", "outcome"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quoter_run_duration_seconds",
		Help:    "Duration of one strategy invocation",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"symbol"})

	// OrderActions counts executed actions by type, side and outcome.
	OrderActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_order_actions_total",
		Help: "Order placements and cancellations",
	}, []string{"symbol", "type", "side", "outcome"})

	ConsistencyViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_consistency_violations_total",
		Help: "Position replays whose closing leg did not zero the cost",
	}, []string{"symbol"})

	PositionQuantity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quoter_position_quantity",
		Help: "Signed position quantity from trade replay",
	}, []string{"symbol"})

	RealizedPnL = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quoter_realized_pnl",
		Help: "Realized profit and loss over the trade lookback",
	}, []string{"symbol"})

	Deviation = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quoter_inventory_deviation",
		Help: "(quantity - target) / position limit",
	}, []string{"symbol"})

	TargetQuantity = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "quoter_target_quantity",
		Help: "Sigmoid inventory target",
	}, []string{"symbol"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quoter_http_requests_total",
		Help: "Status server requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "quoter_http_request_duration_seconds",
		Help:    "Status server request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency per route pattern.
func Middleware(pattern func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapped, r)

			path := pattern(r)
			HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
			HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
