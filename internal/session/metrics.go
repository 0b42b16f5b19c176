package session

import (
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

type sessionMetrics struct {
	submissions metric.Int64Counter
	conflicts   metric.Int64Counter
	rejections  metric.Int64Counter
	saveLatency metric.Float64Histogram
}

func newSessionMetrics(meter metric.Meter, logger *zap.Logger) *sessionMetrics {
	m := &sessionMetrics{}
	var err error

	m.submissions, err = meter.Int64Counter(
		"clustereval.session.submissions",
		metric.WithDescription("Evaluation saves attempted, labeled by outcome (saved, conflict, failed)."),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		logger.Warn("failed to create submissions counter", zap.Error(err))
	}

	m.conflicts, err = meter.Int64Counter(
		"clustereval.session.conflicts",
		metric.WithDescription("Concurrent writes detected, labeled by resolution (pending, overwrite, discard)."),
		metric.WithUnit("{conflict}"),
	)
	if err != nil {
		logger.Warn("failed to create conflicts counter", zap.Error(err))
	}

	m.rejections, err = meter.Int64Counter(
		"clustereval.session.validation_rejections",
		metric.WithDescription("Submissions rejected by validation before reaching the store."),
		metric.WithUnit("{submission}"),
	)
	if err != nil {
		logger.Warn("failed to create rejections counter", zap.Error(err))
	}

	m.saveLatency, err = meter.Float64Histogram(
		"clustereval.session.save_duration_seconds",
		metric.WithDescription("Time spent in the progress store per save."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5),
	)
	if err != nil {
		logger.Warn("failed to create save latency histogram", zap.Error(err))
	}
	return m
}
