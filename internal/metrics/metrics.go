// Package metrics provides Prometheus instrumentation for the economy API.
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
	// TransfersTotal counts transfer attempts by outcome.
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_transfers_total",
		Help: "Total transfer attempts by outcome",
	}, []string{"result"})

	// PurchasesTotal counts purchase attempts by outcome.
	PurchasesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_purchases_total",
		Help: "Total purchase attempts by outcome",
	}, []string{"result"})

	// TradesResolvedTotal counts trade resolutions by final status.
	TradesResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_trades_resolved_total",
		Help: "Total trades resolved by final status",
	}, []string{"status"})

	// DailyRewardClaimsTotal counts daily reward claims by outcome.
	DailyRewardClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_daily_reward_claims_total",
		Help: "Total daily reward claim attempts by outcome",
	}, []string{"result"})

	// LedgerAmountTotal tracks minor currency units moved per ledger kind.
	LedgerAmountTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_ledger_amount_minor_total",
		Help: "Cumulative minor currency units recorded per ledger kind",
	}, []string{"kind"})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "economy_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "economy_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Outcome labels for the result-partitioned counters.
const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
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
