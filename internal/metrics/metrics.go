// Package metrics provides Prometheus instrumentation for the admin core.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admincore",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "admincore",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DisputesOpenedTotal counts disputes created, by raising party.
	DisputesOpenedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admincore",
			Name:      "disputes_opened_total",
			Help:      "Total disputes opened by raising party.",
		},
		[]string{"raised_by"},
	)

	// DisputesResolvedTotal counts resolutions by outcome.
	DisputesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admincore",
			Name:      "disputes_resolved_total",
			Help:      "Total disputes resolved by outcome.",
		},
		[]string{"outcome"},
	)

	// EscrowActionsTotal counts escrow gateway calls by instruction type and
	// terminal status. Pending actions here are the manual-reconciliation queue.
	EscrowActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admincore",
			Name:      "escrow_actions_total",
			Help:      "Total escrow actions by type and final status.",
		},
		[]string{"type", "status"},
	)

	// ResolutionDuration observes time from dispute creation to resolution.
	ResolutionDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "admincore",
		Name:      "dispute_resolution_duration_seconds",
		Help:      "Time from dispute creation to resolution in seconds.",
		Buckets:   []float64{600, 3600, 14400, 86400, 259200, 604800, 1209600},
	})

	// DisputeMessagesTotal counts thread messages by sender role.
	DisputeMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "admincore",
			Name:      "dispute_messages_total",
			Help:      "Total dispute thread messages by sender role.",
		},
		[]string{"role"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "admincore", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "admincore", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "admincore", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// DBWaitCount tracks the total number of connections waited for.
	DBWaitCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "admincore", Name: "db_wait_count_total",
		Help: "Total number of connections waited for.",
	})
	// DBWaitDuration tracks total time waited for connections.
	DBWaitDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "admincore", Name: "db_wait_duration_seconds_total",
		Help: "Total time waited for connections in seconds.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "admincore", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DisputesOpenedTotal,
		DisputesResolvedTotal,
		EscrowActionsTotal,
		ResolutionDuration,
		DisputeMessagesTotal,
		DBOpenConnections,
		DBIdleConnections,
		DBInUseConnections,
		DBWaitCount,
		DBWaitDuration,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
			DBInUseConnections.Set(float64(stats.InUse))
			DBWaitCount.Set(float64(stats.WaitCount))
			DBWaitDuration.Set(stats.WaitDuration.Seconds())
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
