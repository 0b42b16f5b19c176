package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
)

const instrumentationName = "github.com/fyrsmithlabs/clustereval/internal/progress"

// Service implements Store over a Backend with retries, conflict detection
// and instrumentation.
type Service struct {
	backend     Backend
	retryPolicy RetryPolicy
	logger      *zap.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger. Nil keeps the no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRetryPolicy replaces the default retry budget.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Service) { s.retryPolicy = p }
}

// WithTracer sets the tracer used for spans.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithClock overrides time.Now for CreatedAt stamping.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wraps backend.
func NewService(backend Backend, opts ...Option) *Service {
	s := &Service{
		backend:     backend,
		retryPolicy: DefaultRetryPolicy(),
		logger:      zap.NewNop(),
		tracer:      otel.Tracer(instrumentationName),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("backend", backend.Name()))
	return s
}

var _ Store = (*Service)(nil)

// Backend returns the wrapped backend.
func (s *Service) Backend() Backend { return s.backend }

// Close closes the backend.
func (s *Service) Close() error { return s.backend.Close() }

// LoadAll returns every stored evaluation. It fails soft: on error the map
// is empty and non-nil.
func (s *Service) LoadAll(ctx context.Context) (map[string]*evaluation.Evaluation, error) {
	ctx, span := s.tracer.Start(ctx, "progress.load_all",
		trace.WithAttributes(attribute.String("backend", s.backend.Name())))
	defer span.End()

	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues(s.backend.Name(), "load_all").Observe(time.Since(start).Seconds())
	}()

	var all map[string]*evaluation.Evaluation
	err := s.retry(ctx, "load_all", func(ctx context.Context) error {
		var err error
		all, err = s.backend.All(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		OperationsTotal.WithLabelValues(s.backend.Name(), "load_all", "error").Inc()
		return map[string]*evaluation.Evaluation{}, fmt.Errorf("load evaluations: %w: %w", ErrStoreUnavailable, err)
	}

	if all == nil {
		all = map[string]*evaluation.Evaluation{}
	}
	span.SetAttributes(attribute.Int("evaluations", len(all)))
	OperationsTotal.WithLabelValues(s.backend.Name(), "load_all", "ok").Inc()
	EvaluationsStored.WithLabelValues(s.backend.Name()).Set(float64(len(all)))
	return all, nil
}

// Upsert writes ev unless the guard detects a concurrent write.
//
// The conflict check and the write are joined by compare-and-set on the
// revision that was checked, so a write landing between the two is reported
// as a conflict rather than overwritten.
func (s *Service) Upsert(ctx context.Context, ev *evaluation.Evaluation, guard Guard) (Result, error) {
	if ev == nil || ev.ClusterID == "" {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("%w: cluster id is required", ErrInvalidEvaluation)
	}

	ctx, span := s.tracer.Start(ctx, "progress.upsert", trace.WithAttributes(
		attribute.String("backend", s.backend.Name()),
		attribute.String("cluster.id", ev.ClusterID),
		attribute.Bool("overwrite", guard.Overwrite),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		OperationDuration.WithLabelValues(s.backend.Name(), "upsert").Observe(time.Since(start).Seconds())
	}()

	record := ev.Clone()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = s.now()
	}
	record.CreatedAt = record.CreatedAt.UTC()

	stored, err := s.get(ctx, record.ClusterID)
	if err != nil {
		return s.failed(ctx, span, record.ClusterID, err)
	}
	if IsConflict(stored, guard) {
		return s.conflict(ctx, span, stored)
	}

	var prev uint64
	if stored != nil {
		prev = stored.Revision
	}

	var rev uint64
	err = s.retry(ctx, "write", func(ctx context.Context) error {
		var err error
		rev, err = s.backend.Write(ctx, record, prev)
		return err
	})
	if errors.Is(err, ErrRevisionMismatch) {
		latest, gerr := s.get(ctx, record.ClusterID)
		if gerr != nil {
			return s.failed(ctx, span, record.ClusterID, gerr)
		}
		// A retried write may have landed on an earlier attempt.
		if sameWrite(latest, record) {
			return s.saved(ctx, span, latest)
		}
		return s.conflict(ctx, span, latest)
	}
	if err != nil {
		return s.failed(ctx, span, record.ClusterID, err)
	}

	record.Revision = rev
	return s.saved(ctx, span, record)
}

func (s *Service) get(ctx context.Context, clusterID string) (*evaluation.Evaluation, error) {
	var stored *evaluation.Evaluation
	err := s.retry(ctx, "get", func(ctx context.Context) error {
		var err error
		stored, err = s.backend.Get(ctx, clusterID)
		return err
	})
	return stored, err
}

func (s *Service) saved(_ context.Context, span trace.Span, record *evaluation.Evaluation) (Result, error) {
	span.SetAttributes(
		attribute.String("outcome", OutcomeSaved.String()),
		attribute.Int64("revision", int64(record.Revision)),
	)
	OperationsTotal.WithLabelValues(s.backend.Name(), "upsert", OutcomeSaved.String()).Inc()
	s.logger.Debug("evaluation saved",
		zap.String("cluster.id", record.ClusterID),
		zap.Uint64("revision", record.Revision),
	)
	return Result{Outcome: OutcomeSaved, Current: record.Clone()}, nil
}

func (s *Service) conflict(_ context.Context, span trace.Span, stored *evaluation.Evaluation) (Result, error) {
	span.SetAttributes(attribute.String("outcome", OutcomeConflict.String()))
	OperationsTotal.WithLabelValues(s.backend.Name(), "upsert", OutcomeConflict.String()).Inc()
	if stored != nil {
		s.logger.Info("concurrent write detected",
			zap.String("cluster.id", stored.ClusterID),
			zap.String("stored_annotator", stored.Annotator),
			zap.Time("stored_at", stored.CreatedAt),
			zap.Uint64("stored_revision", stored.Revision),
		)
	}
	return Result{Outcome: OutcomeConflict, Current: stored.Clone()}, nil
}

func (s *Service) failed(_ context.Context, span trace.Span, clusterID string, err error) (Result, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "upsert failed")
	span.SetAttributes(attribute.String("outcome", OutcomeFailed.String()))
	OperationsTotal.WithLabelValues(s.backend.Name(), "upsert", OutcomeFailed.String()).Inc()
	return Result{Outcome: OutcomeFailed}, fmt.Errorf("upsert cluster %s: %w: %w", clusterID, ErrStoreUnavailable, err)
}

func sameWrite(stored, record *evaluation.Evaluation) bool {
	return stored != nil &&
		stored.ClusterID == record.ClusterID &&
		stored.Annotator == record.Annotator &&
		stored.Judgment == record.Judgment &&
		stored.BatchIndex == record.BatchIndex &&
		stored.CreatedAt.Equal(record.CreatedAt)
}
