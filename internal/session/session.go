// Package session drives one annotator through the clusters of a campaign.
//
// A Session is a state machine:
//
//	Loading -> Presenting -> Submitting -> Presenting | Conflict | DoneBatch
//	                                    -> DoneAll (terminal)
//
// Each Session serializes its own actions. Sessions share nothing but the
// read-only campaign and the progress store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/campaign"
	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
	"github.com/fyrsmithlabs/clustereval/internal/navigator"
	"github.com/fyrsmithlabs/clustereval/internal/progress"
)

const instrumentationName = "github.com/fyrsmithlabs/clustereval/internal/session"

// Session is one annotator's pass over a campaign.
type Session struct {
	mu sync.Mutex

	id        string
	annotator string
	campaign  *campaign.Campaign
	store     progress.Store
	logger    *zap.Logger
	tracer    trace.Tracer
	metrics   *sessionMetrics
	now       func() time.Time

	state     State
	index     int
	window    navigator.Window
	evaluated map[string]*evaluation.Evaluation

	// viewStart and readRevision describe what was on screen when the
	// current cluster was presented.
	viewStart    time.Time
	readRevision uint64

	pending  *evaluation.Evaluation
	conflict *evaluation.Evaluation
	notice   string
}

// Option configures a Session.
type Option func(*options)

type options struct {
	id     string
	logger *zap.Logger
	tracer trace.Tracer
	meter  metric.Meter
	now    func() time.Time
}

// WithID sets the session id. The default is a random UUID.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer used for action spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// WithMeter sets the meter used for session counters.
func WithMeter(m metric.Meter) Option {
	return func(o *options) { o.meter = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a session in the Loading state. Call Start before anything
// else.
func New(c *campaign.Campaign, store progress.Store, annotator string, opts ...Option) *Session {
	o := options{
		id:     uuid.NewString(),
		tracer: otel.Tracer(instrumentationName),
		meter:  otel.Meter(instrumentationName),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	return &Session{
		id:        o.id,
		annotator: annotator,
		campaign:  c,
		store:     store,
		logger:    o.logger.With(zap.String("session.id", o.id), zap.String("annotator", annotator)),
		tracer:    o.tracer,
		metrics:   newSessionMetrics(o.meter, o.logger),
		now:       o.now,
		state:     StateLoading,
		evaluated: map[string]*evaluation.Evaluation{},
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Annotator returns the annotator name.
func (s *Session) Annotator() string { return s.annotator }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start loads stored evaluations and positions the session one past the
// furthest evaluated cluster. A store failure is logged and the session
// starts as if nothing had been evaluated.
func (s *Session) Start(ctx context.Context) (View, error) {
	ctx, span := s.startSpan(ctx, "session.start")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateLoading {
		return s.view(), transitionError("start", s.state)
	}

	s.refresh(ctx)
	ids := s.campaign.IDs()
	resume := navigator.ResumeIndex(ids, s.evaluated)
	s.window = s.campaign.WindowFor(resume)
	s.index = s.landing(resume)
	s.settle()

	s.logger.Info("session started",
		zap.String("state", s.state.String()),
		zap.Int("index", s.index),
		zap.Int("batch", s.window.Number),
		zap.Int("evaluated", len(s.evaluated)),
	)
	span.SetAttributes(attribute.String("state", s.state.String()))
	return s.view(), nil
}

// Submit validates draft for the presented cluster and saves it. A
// validation failure leaves the state unchanged and never reaches the
// store. A concurrent write moves the session to Conflict and returns an
// error wrapping ErrConflict.
func (s *Session) Submit(ctx context.Context, draft evaluation.Judgment) (View, error) {
	ctx, span := s.startSpan(ctx, "session.submit")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePresenting {
		return s.view(), transitionError("submit", s.state)
	}

	id := s.currentID()
	if !s.campaign.Index.Contains(id) {
		return s.view(), fmt.Errorf("cluster at position %d is not in the ordering: %w", s.index, ErrInvalidTransition)
	}
	span.SetAttributes(attribute.String("cluster.id", id))

	if err := draft.Validate(s.validateOptions(id)...); err != nil {
		if s.metrics.rejections != nil {
			s.metrics.rejections.Add(ctx, 1)
		}
		span.SetAttributes(attribute.Bool("rejected", true))
		return s.view(), err
	}

	s.pending = &evaluation.Evaluation{
		ClusterID:  id,
		Annotator:  s.annotator,
		Judgment:   draft,
		BatchIndex: s.window.Number,
	}
	return s.save(ctx, span, progress.Guard{ViewStart: s.viewStart, ReadRevision: s.readRevision})
}

// ConfirmOverwrite replaces the conflicting record with the pending
// evaluation.
func (s *Session) ConfirmOverwrite(ctx context.Context) (View, error) {
	ctx, span := s.startSpan(ctx, "session.confirm_overwrite")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConflict || s.pending == nil {
		return s.view(), transitionError("overwrite", s.state)
	}
	s.countConflict(ctx, "overwrite")
	return s.save(ctx, span, progress.Guard{ViewStart: s.viewStart, ReadRevision: s.readRevision, Overwrite: true})
}

// DiscardConflict returns to the presented cluster without writing. The
// pending draft is kept for editing and the stored record counts as seen,
// so a later submit only conflicts on yet another write.
func (s *Session) DiscardConflict(ctx context.Context) (View, error) {
	ctx, span := s.startSpan(ctx, "session.discard_conflict")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateConflict {
		return s.view(), transitionError("discard", s.state)
	}
	s.countConflict(ctx, "discard")

	if s.conflict != nil {
		s.evaluated[s.conflict.ClusterID] = s.conflict
		s.readRevision = s.conflict.Revision
	}
	s.viewStart = s.now().UTC()
	s.conflict = nil
	s.state = StatePresenting
	return s.view(), nil
}

// Retry resubmits the pending evaluation after a failed save.
func (s *Session) Retry(ctx context.Context) (View, error) {
	ctx, span := s.startSpan(ctx, "session.retry")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePresenting || s.pending == nil {
		return s.view(), transitionError("retry", s.state)
	}
	return s.save(ctx, span, progress.Guard{ViewStart: s.viewStart, ReadRevision: s.readRevision})
}

// SelectBatch switches to batch n and resumes inside it.
func (s *Session) SelectBatch(ctx context.Context, n int) (View, error) {
	ctx, span := s.startSpan(ctx, "session.select_batch")
	defer span.End()
	span.SetAttributes(attribute.Int("batch", n))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePresenting && s.state != StateDoneBatch {
		return s.view(), transitionError("select batch", s.state)
	}
	w, ok := s.campaign.Batch(n)
	if !ok {
		return s.view(), fmt.Errorf("batch %d of %d: %w", n, s.campaign.BatchCount(), ErrUnknownBatch)
	}

	s.refresh(ctx)
	s.window = w
	s.index = navigator.ScanWindow(s.campaign.IDs(), s.evaluated, w.Start, w)
	s.pending = nil
	s.settle()

	s.logger.Debug("batch selected", zap.Int("batch", n), zap.Int("index", s.index))
	return s.view(), nil
}

// Next moves to the following cluster of the batch.
func (s *Session) Next(ctx context.Context) (View, error) {
	return s.move(ctx, "session.next", 1)
}

// Previous moves to the preceding cluster of the batch.
func (s *Session) Previous(ctx context.Context) (View, error) {
	return s.move(ctx, "session.previous", -1)
}

func (s *Session) move(ctx context.Context, name string, delta int) (View, error) {
	ctx, span := s.startSpan(ctx, name)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StatePresenting && s.state != StateDoneBatch {
		return s.view(), transitionError("move", s.state)
	}
	target := s.index + delta
	if !s.window.Contains(target) {
		return s.view(), fmt.Errorf("position %d not in %s: %w", target, s.window.Label(), ErrOutsideBatch)
	}

	s.refresh(ctx)
	s.index = target
	s.pending = nil
	s.present()
	return s.view(), nil
}

// View returns the presentation model of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// save runs the Submitting state. The caller holds the lock and has set
// s.pending.
func (s *Session) save(ctx context.Context, span trace.Span, guard progress.Guard) (View, error) {
	s.state = StateSubmitting
	start := time.Now()
	res, err := s.store.Upsert(ctx, s.pending, guard)
	if s.metrics.saveLatency != nil {
		s.metrics.saveLatency.Record(ctx, time.Since(start).Seconds())
	}
	if s.metrics.submissions != nil {
		s.metrics.submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", res.Outcome.String())))
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))

	switch {
	case err == nil && res.Outcome == progress.OutcomeSaved:
		saved := res.Current
		s.logger.Info("evaluation saved",
			zap.String("cluster.id", saved.ClusterID),
			zap.Int("batch", saved.BatchIndex),
			zap.Uint64("revision", saved.Revision),
		)
		s.pending = nil
		s.conflict = nil
		s.refresh(ctx)
		s.evaluated[saved.ClusterID] = saved
		s.advance()
		return s.view(), nil

	case err == nil && res.Outcome == progress.OutcomeConflict:
		s.conflict = res.Current
		s.state = StateConflict
		s.countConflict(ctx, "pending")
		fields := []zap.Field{zap.String("cluster.id", s.pending.ClusterID)}
		if s.conflict != nil {
			fields = append(fields,
				zap.String("stored_annotator", s.conflict.Annotator),
				zap.Time("stored_at", s.conflict.CreatedAt),
			)
		}
		s.logger.Warn("evaluation conflicts with a concurrent write", fields...)
		return s.view(), fmt.Errorf("cluster %s: %w", s.pending.ClusterID, ErrConflict)

	default:
		if err == nil {
			err = errors.New("store reported failure")
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "save failed")
		s.state = StatePresenting
		s.conflict = nil
		s.notice = err.Error()
		s.logger.Error("evaluation not saved", zap.String("cluster.id", s.pending.ClusterID), zap.Error(err))
		return s.view(), err
	}
}

// advance moves past the cluster just saved without leaving the batch.
func (s *Session) advance() {
	s.index = s.landing(s.index + 1)
	s.settle()
}

// landing scans the current window from start. When the scan lands on an
// evaluated cluster while earlier ones in the batch are still open, it
// wraps to the batch start.
func (s *Session) landing(start int) int {
	ids := s.campaign.IDs()
	next := navigator.ScanWindow(ids, s.evaluated, start, s.window)
	if next < 0 || next >= len(ids) {
		return next
	}
	if _, done := s.evaluated[ids[next]]; done && !navigator.Complete(ids, s.evaluated, s.window) {
		next = navigator.ScanWindow(ids, s.evaluated, s.window.Start, s.window)
	}
	return next
}

// settle picks the state for the current position.
func (s *Session) settle() {
	ids := s.campaign.IDs()
	switch {
	case navigator.Remaining(ids, s.evaluated) == 0:
		s.state = StateDoneAll
	case navigator.Complete(ids, s.evaluated, s.window):
		s.state = StateDoneBatch
	default:
		s.present()
	}
}

// present shows the cluster at s.index and records what was seen.
func (s *Session) present() {
	s.state = StatePresenting
	s.viewStart = s.now().UTC()
	s.readRevision = 0
	s.conflict = nil
	if stored, ok := s.evaluated[s.currentID()]; ok && stored != nil {
		s.readRevision = stored.Revision
	}
}

// refresh reloads the evaluated set. On failure the previous set is kept.
func (s *Session) refresh(ctx context.Context) {
	all, err := s.store.LoadAll(ctx)
	if err != nil {
		s.notice = err.Error()
		s.logger.Warn("could not load evaluations, continuing with last known progress", zap.Error(err))
		return
	}
	s.notice = ""
	s.evaluated = all
}

func (s *Session) currentID() string {
	id, _ := s.campaign.Index.At(s.index)
	return id
}

func (s *Session) validateOptions(id string) []evaluation.ValidateOption {
	if s.requiresImprovement(id) {
		return []evaluation.ValidateOption{evaluation.RequireImprovement()}
	}
	return nil
}

// requiresImprovement reports whether the baseline label of id was marked
// unacceptable, which makes the prompt-improvement judgment mandatory.
func (s *Session) requiresImprovement(id string) bool {
	entry, ok := s.campaign.Baseline.Get(id)
	return ok && entry.Acceptability == evaluation.AcceptableNo
}

func (s *Session) countConflict(ctx context.Context, resolution string) {
	if s.metrics.conflicts != nil {
		s.metrics.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("resolution", resolution)))
	}
}

func (s *Session) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("session.id", s.id),
		attribute.String("annotator", s.annotator),
	))
}
