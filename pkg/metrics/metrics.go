// Package metrics exposes Octopus Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// QueueDepth is the number of job envelopes waiting in the in-process queue.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "octopus",
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Number of jobs waiting in the in-process queue.",
	})

	// JobsTotal counts processed jobs by type and outcome
	// (succeeded, retried, failed).
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus",
		Subsystem: "jobs",
		Name:      "processed_total",
		Help:      "Processed jobs by type and outcome.",
	}, []string{"type", "outcome"})

	// JobDuration observes handler run time by job type.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "octopus",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Job handler duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"type"})

	// StorageOpsTotal counts storage provider operations by provider,
	// operation and status (ok, error).
	StorageOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "octopus",
		Subsystem: "storage",
		Name:      "ops_total",
		Help:      "Storage provider operations by provider, op and status.",
	}, []string{"provider", "op", "status"})

	// UploadsCommittedTotal counts committed uploads.
	UploadsCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "octopus",
		Subsystem: "uploads",
		Name:      "committed_total",
		Help:      "Committed upload sessions.",
	})
)
