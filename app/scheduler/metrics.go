package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Worker loop iterations partitioned by result
	schedulerTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_ticks_total",
			Help: "Total number of worker loop ticks",
		},
		[]string{"result"},
	)

	// Runs materialized from due campaigns
	schedulerRunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_runs_started_total",
			Help: "Total number of campaign runs started",
		},
	)

	// Runs closed, partitioned by final status
	schedulerRunsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_runs_finished_total",
			Help: "Total number of campaign runs finished",
		},
		[]string{"status"},
	)

	// Recipient dispatches partitioned by outcome
	schedulerRecipientsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_recipients_dispatched_total",
			Help: "Total number of recipient dispatch attempts by outcome",
		},
		[]string{"outcome"},
	)

	schedulerDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scheduler_dispatch_duration_seconds",
			Help:    "Duration of one recipient claim-and-send in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Abandoned sending locks returned to the queue or failed
	schedulerStaleLocksReleased = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_stale_locks_released_total",
			Help: "Total number of stale recipient locks released by the sweep",
		},
		[]string{"status"},
	)
)
