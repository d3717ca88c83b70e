package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astrobot",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "astrobot",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// Webhook metrics
	webhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astrobot",
			Subsystem: "webhook",
			Name:      "deliveries_total",
			Help:      "Inbound webhook deliveries by kind",
		},
		[]string{"kind"},
	)

	duplicateDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "astrobot",
			Subsystem: "webhook",
			Name:      "duplicates_total",
			Help:      "Deliveries dropped by the duplicate filter",
		},
	)

	// Quota metrics
	quotaDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astrobot",
			Subsystem: "quota",
			Name:      "decisions_total",
			Help:      "Quota decisions by plan and result",
		},
		[]string{"plan", "result"},
	)

	rollovers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astrobot",
			Subsystem: "quota",
			Name:      "rollovers_total",
			Help:      "Billing period rollovers by plan",
		},
		[]string{"plan"},
	)

	// Subscription metrics
	subscriptionEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astrobot",
			Subsystem: "subscription",
			Name:      "events_total",
			Help:      "Subscription lifecycle events",
		},
		[]string{"event", "plan"},
	)

	// Conversation metrics
	panicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astrobot",
			Subsystem: "http",
			Name:      "panics_total",
			Help:      "Handler panics recovered by route",
		},
		[]string{"path"},
	)

	flowOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "astrobot",
			Subsystem: "flow",
			Name:      "outcomes_total",
			Help:      "Conversation flow outcomes",
		},
		[]string{"flow", "outcome"},
	)

	// External call metrics
	externalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "astrobot",
			Subsystem: "external",
			Name:      "call_duration_seconds",
			Help:      "Latency of calls to external collaborators",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"service", "operation", "status"},
	)
)

// Middleware records request count and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func RecordWebhook(kind string) {
	webhookDeliveries.WithLabelValues(kind).Inc()
}

func RecordDuplicate() {
	duplicateDeliveries.Inc()
}

// RecordQuotaDecision counts an allow, deny or error decision.
func RecordQuotaDecision(plan, result string) {
	quotaDecisions.WithLabelValues(plan, result).Inc()
}

func RecordRollover(plan string) {
	rollovers.WithLabelValues(plan).Inc()
}

func RecordSubscriptionEvent(event, plan string) {
	subscriptionEvents.WithLabelValues(event, plan).Inc()
}

func RecordPanic(path string) {
	panicsRecovered.WithLabelValues(path).Inc()
}

func RecordFlowOutcome(flow, outcome string) {
	flowOutcomes.WithLabelValues(flow, outcome).Inc()
}

// ObserveExternalCall records the latency of an outbound call.
func ObserveExternalCall(service, operation string, err error, since time.Time) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	externalCallDuration.WithLabelValues(service, operation, status).Observe(time.Since(since).Seconds())
}
