// Package telemetry provides application-level observability for the StockTrail
// audit service.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and served
// on the side-channel HTTP server started by main.go:
//
//	GET http(s)://<host>:<STK_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint returns the Prometheus text exposition
// format and is intended to be scraped every 15–60 seconds. It is NOT served
// by the Gin router, so it stays off the public API ingress path.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Audit record write counters and write-failure counters
//   - Audit shipper delivery and failure counters
//   - Database connection pool gauge (polled every 30 s)
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/audit/:id)
// rather than the raw request URL to prevent unbounded label cardinality from
// user-supplied path segments. Audit metrics are labelled by operation kind
// (closed enum, 8 values) and table name (small fixed set of tracked tables).
package telemetry

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics — labelled by method, route template, and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Audit trail metrics — recorded by the change recorder and the shippers.
//
// AuditRecordsRecordedTotal is a CounterVec with labels {operation, table}
// incremented once per successfully persisted audit record.
//
// Example PromQL queries:
//   - Mutation rate by table:     sum by (table) (rate(audit_records_recorded_total[5m]))
//   - Deletes in the last hour:   increase(audit_records_recorded_total{operation="delete"}[1h])
//
// AuditRecordWriteFailuresTotal counts storage rejections. Audit writes must
// never fail silently; alert on any increase:
//   - Alert expression:           increase(audit_record_write_failures_total[15m]) > 0
//
// AuditRecordsShippedTotal / AuditShipFailuresTotal count deliveries to
// external destinations (file, webhook), labelled by destination type.
var (
	AuditRecordsRecordedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_recorded_total",
			Help: "Total number of audit records successfully persisted, by operation kind and table.",
		},
		[]string{"operation", "table"},
	)

	AuditRecordWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_record_write_failures_total",
			Help: "Total number of audit record writes rejected by the store.",
		},
	)

	AuditRecordsShippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_records_shipped_total",
			Help: "Total number of audit records delivered to external destinations, by destination type.",
		},
		[]string{"destination"},
	)

	AuditShipFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_ship_failures_total",
			Help: "Total number of failed audit record deliveries, by destination type.",
		},
		[]string{"destination"},
	)
)

// DBOpenConnections tracks the number of open connections currently held by
// the sql.DB pool. It is sampled every 30 seconds by StartDBStatsCollector
// rather than per-request to avoid the overhead of sql.DB.Stats().
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <STK_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector launches a background goroutine that samples sql.DB
// connection pool statistics every 30 seconds and updates DBOpenConnections.
// The goroutine exits cleanly when the database becomes unreachable, which
// happens automatically at shutdown once main defers db.Close().
//
// Call this once, immediately after db.Connect() succeeds in main:
//
//	telemetry.StartDBStatsCollector(database)
func StartDBStatsCollector(db *sql.DB) {
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			if err := db.Ping(); err != nil {
				slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
				return
			}
			DBOpenConnections.Set(float64(db.Stats().OpenConnections))
		}
	}()
}
