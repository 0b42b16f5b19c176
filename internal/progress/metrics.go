package progress

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts store operations.
	// Labels: backend, op (load_all, upsert), result (saved, conflict, failed, ok, error)
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clustereval",
			Subsystem: "progress",
			Name:      "operations_total",
			Help:      "Total number of progress store operations by result",
		},
		[]string{"backend", "op", "result"},
	)

	// OperationDuration tracks store operation latency including retries.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clustereval",
			Subsystem: "progress",
			Name:      "operation_duration_seconds",
			Help:      "Duration of progress store operations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)

	// RetriesTotal counts retried backend calls.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clustereval",
			Subsystem: "progress",
			Name:      "retries_total",
			Help:      "Total number of retried backend calls",
		},
		[]string{"backend"},
	)

	// EvaluationsStored reports the record count seen by the last LoadAll.
	EvaluationsStored = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "clustereval",
			Subsystem: "progress",
			Name:      "evaluations_stored",
			Help:      "Number of evaluations seen by the most recent load",
		},
		[]string{"backend"},
	)
)
