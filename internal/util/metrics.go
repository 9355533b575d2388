package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_runs_total",
		Help: "Total number of sync runs by final status",
	}, []string{"status"})

	SyncRunsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_runs_rejected_total",
		Help: "Total number of sync runs rejected before any page was fetched",
	}, []string{"reason"})

	SyncRecordsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_sync_records_processed_total",
		Help: "Total number of external records upserted",
	})

	SyncRecordsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_sync_records_skipped_total",
		Help: "Total number of external records skipped as incomplete",
	})

	SyncRecordErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_sync_record_errors_total",
		Help: "Total number of per-record mapping or upsert errors",
	})

	SyncPageErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_sync_page_errors_total",
		Help: "Total number of fatal page fetch errors",
	})

	SyncRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_sync_run_duration_seconds",
		Help:    "Duration of sync runs",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	ExternalAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_sync_external_api_requests_total",
		Help: "Total number of requests to the external catalog API",
	}, []string{"outcome"})

	ExternalAPIRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_sync_external_api_request_duration_seconds",
		Help:    "Latency of external catalog API page fetches",
		Buckets: prometheus.DefBuckets,
	})

	DedupRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_dedup_runs_total",
		Help: "Total number of category deduplication runs",
	})

	DedupCategoriesRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_dedup_categories_removed_total",
		Help: "Total number of duplicate categories removed",
	})

	DedupGroupErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_dedup_group_errors_total",
		Help: "Total number of duplicate groups whose merge failed",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
