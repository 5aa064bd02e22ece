package metrics

import "github.com/prometheus/client_golang/prometheus"

// Bot Prometheus metrics.
var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bottlebot",
			Name:      "commands_total",
			Help:      "Total number of handled chat commands",
		},
		[]string{"command"},
	)

	CommandsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bottlebot",
			Name:      "commands_dropped_total",
			Help:      "Commands dropped by the flood limiter",
		},
	)

	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bottlebot",
			Name:      "api_requests_total",
			Help:      "Total number of bottle API calls",
		},
		[]string{"action", "outcome"}, // outcome: ok, timeout, connect, http, remote, unknown
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bottlebot",
			Name:      "api_request_duration_seconds",
			Help:      "Bottle API call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"action"},
	)

	QuotaResetsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "bottlebot",
			Name:      "quota_resets_total",
			Help:      "Daily quota resets performed",
		},
	)
)

var registered bool

// Register registers the bot metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(CommandsDropped)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(QuotaResetsTotal)
	registered = true
}
