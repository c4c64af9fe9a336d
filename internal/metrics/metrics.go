package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RowsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rows_sent_total",
			Help: "Total rows successfully emailed",
		},
	)

	RowsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rows_failed_total",
			Help: "Total rows that failed validation or sending",
		},
	)

	RowsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rows_skipped_total",
			Help: "Total rows skipped because a previous run already succeeded",
		},
	)

	JobsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total jobs that ran to completion",
		},
	)

	JobsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total jobs aborted by a fatal error",
		},
	)
)

func Init() {
	prometheus.MustRegister(RowsSent)
	prometheus.MustRegister(RowsFailed)
	prometheus.MustRegister(RowsSkipped)
	prometheus.MustRegister(JobsCompleted)
	prometheus.MustRegister(JobsFailed)
}
