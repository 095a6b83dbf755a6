package disks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reconcileRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ngas_reconcile_runs_total",
		Help: "Total number of disk reconciliation passes",
	})

	reconcileSlotProblemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ngas_reconcile_slot_problems_total",
		Help: "Slots rejected during reconciliation, by problem kind",
	}, []string{"kind"})

	reconcileDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ngas_reconcile_duration_seconds",
		Help:    "Duration of disk reconciliation passes in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	targetSelectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ngas_target_selections_total",
		Help: "Target disk selections, by result",
	}, []string{"result"})

	targetCacheHitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ngas_target_cache_hits_total",
		Help: "Target disk cache hits, by cache map",
	}, []string{"map"})

	diskStatusUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ngas_disk_status_updates_total",
		Help: "Total number of post-archive disk status updates",
	})
)
