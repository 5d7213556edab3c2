package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "afya_transport"

var (
	RequestsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "requests_created_total", Help: "Transport requests created"},
		[]string{"urgency", "service_type"},
	)
	Assignments = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "assignments_total", Help: "Riders attached to requests"},
		[]string{"mode"},
	)
	AssignmentConflicts = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "assignment_conflicts_total", Help: "Accept attempts that lost the race for a request"},
	)
	AssignmentLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{Namespace: namespace, Name: "assignment_latency_seconds", Help: "Time spent selecting and assigning a rider"},
	)
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Request status transitions"},
		[]string{"status"},
	)
	Transactions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "transactions_total", Help: "Wallet transactions by type and final status"},
		[]string{"type", "status"},
	)
	CreditScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "credit_score",
			Help:      "Distribution of computed credit scores",
			Buckets:   prometheus.LinearBuckets(300, 50, 12),
		},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Middleware records request counts and latency per route template
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
