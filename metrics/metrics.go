// Package metrics exposes Prometheus instrumentation for the ledger engine,
// the report exports and the HTTP surface.
package metrics

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/building-ledger/billing"
)

const (
	metricPrefix = "building_ledger_"

	resultSuccess     = "success"
	resultClientError = "client_error"
	resultNotFound    = "not_found"
	resultError       = "error"
)

var (
	registerOnce sync.Once

	operationTotal   *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec

	exportTotal   *prometheus.CounterVec
	exportLatency *prometheus.HistogramVec

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec
)

// Init registers the collectors. When db is non-nil, record-count gauges
// are registered against it. Safe to call more than once.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		operationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "operations_total",
				Help: "Total engine operations by operation and result",
			},
			[]string{"operation", "result"},
		)
		operationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "operation_latency_seconds",
				Help:    "Engine operation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		)
		exportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total settlement report exports by format and result",
			},
			[]string{"format", "result"},
		)
		exportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Settlement report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		)
		httpRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "http_requests_total",
				Help: "Total HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		)
		httpLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "http_request_latency_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		)

		prometheus.MustRegister(
			operationTotal,
			operationLatency,
			exportTotal,
			exportLatency,
			httpRequests,
			httpLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "charge_records",
			Help: "Stored charge records",
		},
		func() float64 { return queryCount(db, logger, "SELECT COUNT(*) FROM charge_records") },
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "payment_records",
			Help: "Stored payment records",
		},
		func() float64 { return queryCount(db, logger, "SELECT COUNT(*) FROM payment_records") },
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	return float64(count)
}

// resultOf classifies an operation error for the result label.
func resultOf(err error) string {
	switch {
	case err == nil:
		return resultSuccess
	case billing.IsNotFound(err):
		return resultNotFound
	case billing.IsClientError(err):
		return resultClientError
	default:
		return resultError
	}
}

// =============================================================================
// ENGINE OBSERVER
// =============================================================================

// Observer is the billing.Observer that feeds the operation collectors.
type Observer struct{}

var _ billing.Observer = Observer{}

func (Observer) ObserveOperation(op string, elapsed time.Duration, err error) {
	ObserveOperation(op, elapsed, err)
}

// ObserveOperation records one engine operation.
func ObserveOperation(op string, elapsed time.Duration, err error) {
	if operationTotal != nil {
		operationTotal.WithLabelValues(op, resultOf(err)).Inc()
	}
	if operationLatency != nil {
		operationLatency.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

// ObserveExport records one report export.
func ObserveExport(format string, elapsed time.Duration, err error) {
	if format == "" {
		format = "unknown"
	}
	if exportTotal != nil {
		exportTotal.WithLabelValues(format, resultOf(err)).Inc()
	}
	if exportLatency != nil {
		exportLatency.WithLabelValues(format).Observe(elapsed.Seconds())
	}
}

// =============================================================================
// HTTP MIDDLEWARE
// =============================================================================

// Middleware counts requests by chi route pattern so path parameters do
// not explode label cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if httpRequests != nil {
			httpRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		}
		if httpLatency != nil {
			httpLatency.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}
