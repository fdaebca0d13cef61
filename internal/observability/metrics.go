package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes recorded by RecordRequest.
const (
	OutcomeOK          = "ok"
	OutcomeRemoteError = "remote_error"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeLocalError  = "local_error"
	OutcomeClosed      = "closed"
)

// Notification directions recorded by RecordNotification.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
	DirectionDropped  = "dropped"
)

var (
	registerOnce sync.Once

	bridgeRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "requests_total",
			Help:      "Outbound bridge requests by terminal outcome.",
		},
		[]string{"role", "operation", "outcome"},
	)
	bridgeRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "request_duration_seconds",
			Help:      "Time from send to settlement of outbound bridge requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"role", "operation", "outcome"},
	)
	bridgeHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "handled_total",
			Help:      "Inbound requests answered by this side, by response code.",
		},
		[]string{"role", "operation", "code"},
	)
	bridgeNotifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "notifications_total",
			Help:      "Bridge notifications by direction.",
		},
		[]string{"role", "name", "direction"},
	)
	bridgeDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "inbound_dropped_total",
			Help:      "Inbound messages dropped before dispatch.",
		},
		[]string{"role", "reason"},
	)
	bridgePending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "bridgectl",
			Subsystem: "bridge",
			Name:      "pending_requests",
			Help:      "Outbound requests awaiting settlement.",
		},
		[]string{"role"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			bridgeRequests,
			bridgeRequestDuration,
			bridgeHandled,
			bridgeNotifications,
			bridgeDropped,
			bridgePending,
		)
	})
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordRequest(role, operation, outcome string, duration time.Duration) {
	RegisterMetrics()
	bridgeRequests.WithLabelValues(role, operation, outcome).Inc()
	bridgeRequestDuration.WithLabelValues(role, operation, outcome).Observe(duration.Seconds())
}

func RecordHandled(role, operation, code string) {
	RegisterMetrics()
	if code == "" {
		code = OutcomeOK
	}
	bridgeHandled.WithLabelValues(role, operation, code).Inc()
}

func RecordNotification(role, name, direction string) {
	RegisterMetrics()
	bridgeNotifications.WithLabelValues(role, name, direction).Inc()
}

func RecordDropped(role, reason string) {
	RegisterMetrics()
	bridgeDropped.WithLabelValues(role, reason).Inc()
}

func AddPending(role string, delta int) {
	RegisterMetrics()
	bridgePending.WithLabelValues(role).Add(float64(delta))
}
