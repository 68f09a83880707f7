// Tracelane - Vehicle Presence Ingestion and Correlation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tracelane

// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Database
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table", "error_type"},
	)

	// API
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	// Ingestion
	IngestJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_jobs_total",
			Help: "Ingestion jobs by source kind and outcome",
		},
		[]string{"source_kind", "outcome"}, // outcome: completed, failed
	)

	IngestRowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_rows_total",
			Help: "Ingested rows by outcome",
		},
		[]string{"outcome"}, // imported, duplicate, error
	)

	IngestReadersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_readers_total",
			Help: "Readers auto-created or rejected during ingestion",
		},
		[]string{"outcome"}, // created, rejected
	)

	IngestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ingest_duration_seconds",
			Help:    "Ingestion job duration in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 300, 900, 1800},
		},
		[]string{"source_kind"},
	)

	// Tasks
	TasksActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tasks_active",
			Help: "Tasks currently held by the registry, by status",
		},
		[]string{"status"},
	)

	TasksEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_evicted_total",
			Help: "Terminal tasks evicted by the registry sweep",
		},
	)

	TasksTimedOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_timed_out_total",
			Help: "Tasks failed by the registry sweep after exceeding the stuck timeout",
		},
	)

	// Correlation
	CorrelationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "correlation_duration_seconds",
			Help:    "Correlation matcher duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		},
		[]string{"matcher"},
	)

	CorrelationResults = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "correlation_results",
			Help:    "Number of results returned per correlation run",
			Buckets: []float64{0, 1, 10, 100, 1000, 5000},
		},
		[]string{"matcher"},
	)

	// Result cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_hits_total",
			Help: "Result cache hits",
		},
		[]string{"backend"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_misses_total",
			Help: "Result cache misses",
		},
		[]string{"backend"},
	)

	CacheSets = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "result_cache_sets_total",
			Help: "Result cache writes",
		},
		[]string{"backend"},
	)

	// CacheBreakerState is 0 closed, 1 half-open, 2 open.
	CacheBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "result_cache_breaker_state",
			Help: "Circuit breaker state of the persistent result cache",
		},
		[]string{"breaker"},
	)
)

// RecordDBQuery records a database query metric
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table, classifyDBError(err)).Inc()
	}
}

// classifyDBError keeps the error_type label bounded.
func classifyDBError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "constraint"):
		return "constraint"
	case strings.Contains(msg, "conversion"), strings.Contains(msg, "cast"):
		return "conversion"
	case strings.Contains(msg, "connection"), strings.Contains(msg, "closed"):
		return "connection"
	default:
		return "other"
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// IngestOutcome summarizes one finished ingestion job.
type IngestOutcome struct {
	SourceKind      string
	Err             error
	Duration        time.Duration
	Imported        int
	Duplicates      int
	RowErrors       int
	ReadersCreated  int
	ReadersRejected int
}

// RecordIngestJob records the counters of one ingestion job.
func RecordIngestJob(o IngestOutcome) {
	outcome := "completed"
	if o.Err != nil {
		outcome = "failed"
	}
	IngestJobsTotal.WithLabelValues(o.SourceKind, outcome).Inc()
	IngestDuration.WithLabelValues(o.SourceKind).Observe(o.Duration.Seconds())
	IngestRowsTotal.WithLabelValues("imported").Add(float64(o.Imported))
	IngestRowsTotal.WithLabelValues("duplicate").Add(float64(o.Duplicates))
	IngestRowsTotal.WithLabelValues("error").Add(float64(o.RowErrors))
	IngestReadersTotal.WithLabelValues("created").Add(float64(o.ReadersCreated))
	IngestReadersTotal.WithLabelValues("rejected").Add(float64(o.ReadersRejected))
}

// SetTaskCounts replaces the per-status task gauges.
func SetTaskCounts(counts map[string]int) {
	for _, status := range []string{"pending", "processing", "completed", "failed"} {
		TasksActive.WithLabelValues(status).Set(float64(counts[status]))
	}
}

// RecordSweep records the result of one registry sweep.
func RecordSweep(evicted, timedOut int) {
	TasksEvicted.Add(float64(evicted))
	TasksTimedOut.Add(float64(timedOut))
}

// RecordCorrelation records a correlation run.
func RecordCorrelation(matcher string, duration time.Duration, results int) {
	CorrelationDuration.WithLabelValues(matcher).Observe(duration.Seconds())
	CorrelationResults.WithLabelValues(matcher).Observe(float64(results))
}

// RecordCacheLookup records a result cache hit or miss.
func RecordCacheLookup(backend string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(backend).Inc()
	} else {
		CacheMisses.WithLabelValues(backend).Inc()
	}
}

// RecordCacheSet records a result cache write.
func RecordCacheSet(backend string) {
	CacheSets.WithLabelValues(backend).Inc()
}
