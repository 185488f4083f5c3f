package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// ItemsTotal counts candidate outcomes. status: success, error, skipped.
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_items_total",
			Help: "Total number of harvested candidates by outcome.",
		},
		[]string{"source", "status"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_fetch_duration_seconds",
			Help:    "Duration of page fetches.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"domain"},
	)

	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_runs_total",
			Help: "Total number of crawl runs by final state.",
		},
		[]string{"source", "state"},
	)

	LockContentionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_lock_contention_total",
			Help: "Runs refused because another run held the source lock.",
		},
		[]string{"source"},
	)

	// ExportBatchesTotal result: committed, rejected, empty, failed.
	ExportBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_export_batches_total",
			Help: "Export batches by result.",
		},
		[]string{"result"},
	)

	ExportedRowsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_exported_rows_total",
			Help: "Rows upserted into the central store.",
		},
	)
)
