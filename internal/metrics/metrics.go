package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "Duration of HTTP requests in seconds",
		},
		[]string{"method", "path"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests in flight",
		},
	)

	// Bots
	ActiveBots = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_controller_active_bots",
			Help: "Number of bots with a running trading loop",
		},
	)
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_controller_cycles_total",
			Help: "Trading cycles by outcome (hold, rejected, filled, unfilled, error)",
		},
		[]string{"outcome"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bot_controller_cycle_duration_seconds",
			Help:    "Duration of one trading cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	RiskRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_controller_risk_rejections_total",
			Help: "Signals rejected by the risk gate, by check",
		},
		[]string{"check"},
	)
	TradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_controller_trades_total",
			Help: "Filled trades by side and outcome",
		},
		[]string{"side", "outcome"},
	)
	RealizedProfit = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bot_controller_realized_profit",
			Help: "Cumulative realized profit per bot",
		},
		[]string{"bot_id"},
	)
	PersistErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_controller_persist_errors_total",
			Help: "Failed writes to the state store",
		},
	)

	// Notifications
	WebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_controller_websocket_clients",
			Help: "Connected websocket subscribers",
		},
	)
	NotificationsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_controller_notifications_dropped_total",
			Help: "Notifications dropped because a sink was slow or unavailable",
		},
		[]string{"sink"},
	)
)

// Registry holds every collector of the process. A private registry keeps
// tests free of duplicate-registration panics.
var Registry = prometheus.NewRegistry()

var initOnce sync.Once

// InitMetrics registers all collectors. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		Registry.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestsInFlight,

			ActiveBots,
			CyclesTotal,
			CycleDuration,
			RiskRejectionsTotal,
			TradesTotal,
			RealizedProfit,
			PersistErrorsTotal,

			WebSocketClients,
			NotificationsDroppedTotal,

			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
