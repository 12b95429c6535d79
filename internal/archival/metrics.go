package archival

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsArchivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuelops_archival_records_archived_total",
		Help: "Records moved from hot to cold storage.",
	}, []string{"collection"})

	recordsRestoredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuelops_archival_records_restored_total",
		Help: "Records moved from cold back to hot storage.",
	}, []string{"collection"})

	insertFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuelops_archival_insert_failures_total",
		Help: "Per-document cold insert failures. The source record stays in hot storage.",
	}, []string{"collection"})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fuelops_archival_runs_total",
		Help: "Archival runs by outcome.",
	}, []string{"outcome"})

	collectionDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fuelops_archival_collection_duration_seconds",
		Help:    "Duration of one collection archival pass.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 900, 3600},
	}, []string{"collection"})

	runInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fuelops_archival_run_in_progress",
		Help: "1 while this process holds the archival run lock.",
	})
)

const (
	outcomeSuccess  = "success"
	outcomeFailure  = "failure"
	outcomeRejected = "rejected"
	outcomeDryRun   = "dry_run"
)
