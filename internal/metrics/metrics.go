package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application collectors; it is what /metrics serves.
	Registry = prometheus.NewRegistry()

	OrdersCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "petplace",
			Subsystem: "commerce",
			Name:      "orders_created_total",
			Help:      "Orders created from carts or direct requests.",
		},
	)

	CommissionsRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petplace",
			Subsystem: "accounting",
			Name:      "commissions_recorded_total",
			Help:      "Commissions recorded by transaction type.",
		},
		[]string{"transaction_type"},
	)

	PayoutsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "petplace",
			Subsystem: "accounting",
			Name:      "payouts_created_total",
			Help:      "Payouts created.",
		},
	)

	NotificationsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petplace",
			Subsystem: "notify",
			Name:      "sent_total",
			Help:      "Notifications sent by type and outcome.",
		},
		[]string{"type", "result"},
	)

	AdEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petplace",
			Subsystem: "ads",
			Name:      "events_total",
			Help:      "Recorded ad impressions and clicks.",
		},
		[]string{"kind"},
	)

	WebhookJobs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "petplace",
			Subsystem: "webhooks",
			Name:      "jobs_total",
			Help:      "Webhook job outcomes: processed, retried, dead.",
		},
		[]string{"result"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "petplace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"method", "route", "status"},
	)
)

func init() {
	Registry.MustRegister(
		OrdersCreated,
		CommissionsRecorded,
		PayoutsCreated,
		NotificationsSent,
		AdEvents,
		WebhookJobs,
		httpDuration,
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one request. route should be the router pattern, not
// the raw path, to keep label cardinality bounded.
func ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
