// Package observability exposes the service's prometheus metrics.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// RequestsTotal counts decoded requests by operation.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minibank_requests_total",
			Help: "Total number of requests handled, by operation",
		},
		[]string{"op"},
	)

	// ActiveSessions tracks currently connected clients.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "minibank_active_sessions",
			Help: "Number of currently connected client sessions",
		},
	)

	// Accounts tracks the size of the ledger.
	Accounts = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "minibank_accounts",
			Help: "Number of accounts in the ledger",
		},
	)
)

// Init registers the metrics with the default registry.
func Init() {
	prometheus.MustRegister(RequestsTotal, ActiveSessions, Accounts)
}

// Serve exposes /metrics on addr. It blocks, so run it on its own
// goroutine.
func Serve(addr string, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Str("addr", addr).Msg("metrics endpoint failed")
	}
}
