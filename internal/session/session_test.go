package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/clustereval/internal/campaign"
	"github.com/fyrsmithlabs/clustereval/internal/catalog"
	"github.com/fyrsmithlabs/clustereval/internal/clusterindex"
	"github.com/fyrsmithlabs/clustereval/internal/corpus"
	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
	"github.com/fyrsmithlabs/clustereval/internal/progress"
	"github.com/fyrsmithlabs/clustereval/internal/telemetry"
)

var errTransport = errors.New("connection refused")

// countingStore wraps a real store, counts calls and can fail on demand.
type countingStore struct {
	inner *progress.Service

	mu          sync.Mutex
	loads       int
	upserts     int
	failLoads   bool
	failUpserts int
}

func newCountingStore() *countingStore {
	return &countingStore{inner: progress.NewService(progress.NewMemoryBackend())}
}

func (c *countingStore) LoadAll(ctx context.Context) (map[string]*evaluation.Evaluation, error) {
	c.mu.Lock()
	c.loads++
	fail := c.failLoads
	c.mu.Unlock()
	if fail {
		return map[string]*evaluation.Evaluation{}, fmt.Errorf("load: %w: %w", progress.ErrStoreUnavailable, errTransport)
	}
	return c.inner.LoadAll(ctx)
}

func (c *countingStore) Upsert(ctx context.Context, ev *evaluation.Evaluation, guard progress.Guard) (progress.Result, error) {
	c.mu.Lock()
	c.upserts++
	fail := c.failUpserts > 0
	if fail {
		c.failUpserts--
	}
	c.mu.Unlock()
	if fail {
		return progress.Result{Outcome: progress.OutcomeFailed}, fmt.Errorf("upsert: %w: %w", progress.ErrStoreUnavailable, errTransport)
	}
	return c.inner.Upsert(ctx, ev, guard)
}

func (c *countingStore) upsertCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.upserts
}

// seed stores an evaluation for each id as another annotator.
func (c *countingStore) seed(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := c.inner.Upsert(context.Background(), &evaluation.Evaluation{
			ClusterID: id, Annotator: "seed", Judgment: validJudgment(),
		}, progress.Guard{Overwrite: true})
		require.NoError(t, err)
	}
}

// newCampaign builds clusters "0".."n-1", cluster i occurring on line i.
// Cluster 1 carries a baseline label marked unacceptable.
func newCampaign(n, batchSize int) *campaign.Campaign {
	records := make([]clusterindex.OccurrenceRecord, n)
	lines := make([]string, n)
	for i := range records {
		records[i] = clusterindex.OccurrenceRecord{Token: "t", SourceLine: i, ClusterID: strconv.Itoa(i)}
		lines[i] = fmt.Sprintf("line %d", i)
	}
	baseline := catalog.New("baseline", map[string]catalog.Entry{
		"0": {PrimaryLabel: "identifier", SyntacticLabel: "Name", Description: "names", Acceptability: evaluation.AcceptableYes},
		"1": {PrimaryLabel: "loop", SyntacticLabel: "Keyword", Description: "loops", Acceptability: evaluation.AcceptableNo},
	})
	candidate := catalog.New("candidate", map[string]catalog.Entry{
		"c0": {PrimaryLabel: "Variable", SyntacticLabel: "Variable", Description: "vars", UniqueTokens: []string{"i", "j"}},
	})
	return campaign.New(clusterindex.FromRecords(records), baseline, candidate, corpus.FromLines(lines), batchSize)
}

func validJudgment() evaluation.Judgment {
	return evaluation.Judgment{
		Acceptability: evaluation.AcceptableYes,
		Precision:     evaluation.PrecisionSame,
		Quality:       evaluation.QualityMore,
	}
}

func improvedJudgment() evaluation.Judgment {
	j := validJudgment()
	j.PromptImprovement = evaluation.Improved
	return j
}

func startSession(t *testing.T, c *campaign.Campaign, store progress.Store, annotator string) *Session {
	t.Helper()
	s := New(c, store, annotator)
	_, err := s.Start(context.Background())
	require.NoError(t, err)
	return s
}

func TestSession_StartResumesAfterFurthestEvaluated(t *testing.T) {
	store := newCountingStore()
	store.seed(t, "0", "1")

	s := startSession(t, newCampaign(12, 5), store, "ana")
	v := s.View()

	assert.Equal(t, StatePresenting, v.State)
	assert.Equal(t, 2, v.Index)
	assert.Equal(t, "2", v.ClusterID)
	assert.Equal(t, 0, v.Batch.Number)
	assert.Equal(t, 10, v.Remaining)
	assert.Equal(t, 2, v.Evaluated)
	assert.Equal(t, 3, v.Batches)
}

func TestSession_StartWrapsToOpenClusters(t *testing.T) {
	store := newCountingStore()
	store.seed(t, "4")

	v := startSession(t, newCampaign(5, 5), store, "ana").View()
	assert.Equal(t, StatePresenting, v.State)
	assert.Equal(t, 0, v.Index, "the last cluster is done but earlier ones are open")
}

func TestSession_StartWithEmptyStore(t *testing.T) {
	s := startSession(t, newCampaign(3, 50), newCountingStore(), "ana")
	v := s.View()
	assert.Equal(t, StatePresenting, v.State)
	assert.Equal(t, 0, v.Index)
	assert.Equal(t, "Batch 0 (clusters 0-2)", v.BatchName)
}

func TestSession_StartFailsSoft(t *testing.T) {
	store := newCountingStore()
	store.failLoads = true

	s := New(newCampaign(3, 50), store, "ana")
	v, err := s.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePresenting, v.State)
	assert.Equal(t, 0, v.Index)
	assert.Contains(t, v.Notice, "unavailable")
}

func TestSession_StartTwice(t *testing.T) {
	s := startSession(t, newCampaign(3, 50), newCountingStore(), "ana")
	_, err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSession_EmptyCampaignIsDone(t *testing.T) {
	s := startSession(t, newCampaign(0, 50), newCountingStore(), "ana")
	v := s.View()
	assert.Equal(t, StateDoneAll, v.State)
	assert.Empty(t, v.ClusterID)
}

func TestSession_SubmitSavesAndAdvances(t *testing.T) {
	store := newCountingStore()
	s := startSession(t, newCampaign(4, 50), store, "ana")

	v, err := s.Submit(context.Background(), validJudgment())
	require.NoError(t, err)
	assert.Equal(t, StatePresenting, v.State)
	assert.Equal(t, 1, v.Index)
	assert.Equal(t, 1, v.Evaluated)
	assert.True(t, v.RequireImprovement, "baseline of cluster 1 is unacceptable")

	all, err := store.inner.LoadAll(context.Background())
	require.NoError(t, err)
	require.Contains(t, all, "0")
	assert.Equal(t, "ana", all["0"].Annotator)
	assert.Equal(t, 0, all["0"].BatchIndex)
	assert.False(t, all["0"].CreatedAt.IsZero())
}

func TestSession_SubmitValidationMakesNoStoreCall(t *testing.T) {
	tests := []struct {
		name  string
		draft evaluation.Judgment
		field string
	}{
		{
			name:  "unacceptable without justification",
			draft: evaluation.Judgment{Acceptability: evaluation.AcceptableNo, Precision: evaluation.PrecisionSame, Quality: evaluation.QualitySame},
			field: evaluation.FieldAcceptability,
		},
		{
			name:  "less precise with blank justification",
			draft: evaluation.Judgment{Acceptability: evaluation.AcceptableYes, Precision: evaluation.PrecisionLess, PrecisionNote: "  ", Quality: evaluation.QualitySame},
			field: evaluation.FieldPrecision,
		},
		{
			name:  "missing quality",
			draft: evaluation.Judgment{Acceptability: evaluation.AcceptableYes, Precision: evaluation.PrecisionSame},
			field: evaluation.FieldQuality,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCountingStore()
			s := startSession(t, newCampaign(3, 50), store, "ana")

			v, err := s.Submit(context.Background(), tt.draft)
			require.Error(t, err)

			var verr *evaluation.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, 0, store.upsertCalls())
			assert.Equal(t, StatePresenting, v.State)
			assert.Equal(t, 0, v.Index)
		})
	}
}

func TestSession_ImprovementRequiredForUnacceptableBaseline(t *testing.T) {
	store := newCountingStore()
	store.seed(t, "0")
	s := startSession(t, newCampaign(3, 50), store, "ana")
	require.Equal(t, "1", s.View().ClusterID)

	_, err := s.Submit(context.Background(), validJudgment())
	var verr *evaluation.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, evaluation.FieldPromptImprovement, verr.Field)
	assert.Equal(t, 0, store.upsertCalls())

	notImproved := validJudgment()
	notImproved.PromptImprovement = evaluation.NotImproved
	_, err = s.Submit(context.Background(), notImproved)
	require.ErrorAs(t, err, &verr)

	v, err := s.Submit(context.Background(), improvedJudgment())
	require.NoError(t, err)
	assert.Equal(t, 2, v.Index)
}

func TestSession_ConflictThenDiscard(t *testing.T) {
	store := newCountingStore()
	c := newCampaign(3, 50)
	ana := startSession(t, c, store, "ana")
	bo := startSession(t, c, store, "bo")

	_, err := bo.Submit(context.Background(), validJudgment())
	require.NoError(t, err)

	v, err := ana.Submit(context.Background(), validJudgment())
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, StateConflict, v.State)
	require.NotNil(t, v.Conflict)
	assert.Equal(t, "bo", v.Conflict.Annotator)
	require.NotNil(t, v.Pending)
	assert.Equal(t, 0, v.Index)

	// Only the conflict resolutions are accepted now.
	_, err = ana.Submit(context.Background(), validJudgment())
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = ana.Next(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	v, err = ana.DiscardConflict(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePresenting, v.State)
	assert.Equal(t, 0, v.Index)
	require.NotNil(t, v.Pending, "draft is kept for editing")
	require.NotNil(t, v.Existing)
	assert.Equal(t, "bo", v.Existing.Annotator)

	all, _ := store.inner.LoadAll(context.Background())
	assert.Equal(t, "bo", all["0"].Annotator, "discard never writes")

	// Having seen bo's record, a resubmit replaces it.
	v, err = ana.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v.Index)
	all, _ = store.inner.LoadAll(context.Background())
	assert.Equal(t, "ana", all["0"].Annotator)
}

func TestSession_ConflictThenOverwrite(t *testing.T) {
	store := newCountingStore()
	c := newCampaign(3, 50)
	ana := startSession(t, c, store, "ana")
	bo := startSession(t, c, store, "bo")

	_, err := bo.Submit(context.Background(), validJudgment())
	require.NoError(t, err)
	_, err = ana.Submit(context.Background(), validJudgment())
	require.ErrorIs(t, err, ErrConflict)

	v, err := ana.ConfirmOverwrite(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePresenting, v.State)
	assert.Equal(t, 1, v.Index)
	assert.Nil(t, v.Conflict)

	all, _ := store.inner.LoadAll(context.Background())
	assert.Equal(t, "ana", all["0"].Annotator)

	_, err = ana.ConfirmOverwrite(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSession_FailedOverwriteClearsConflict(t *testing.T) {
	store := newCountingStore()
	c := newCampaign(3, 50)
	ana := startSession(t, c, store, "ana")
	bo := startSession(t, c, store, "bo")

	_, err := bo.Submit(context.Background(), validJudgment())
	require.NoError(t, err)
	v, err := ana.Submit(context.Background(), validJudgment())
	require.ErrorIs(t, err, ErrConflict)
	require.NotNil(t, v.Conflict)

	store.failUpserts = 1
	v, err = ana.ConfirmOverwrite(context.Background())
	require.ErrorIs(t, err, progress.ErrStoreUnavailable)
	assert.Equal(t, StatePresenting, v.State)
	assert.Nil(t, v.Conflict)
	assert.NotNil(t, v.Pending)
	assert.NotEmpty(t, v.Notice)
}

func TestSession_FailedSaveKeepsDraftAndRetries(t *testing.T) {
	store := newCountingStore()
	store.failUpserts = 1
	s := startSession(t, newCampaign(3, 50), store, "ana")

	v, err := s.Submit(context.Background(), validJudgment())
	require.ErrorIs(t, err, progress.ErrStoreUnavailable)
	assert.Equal(t, StatePresenting, v.State)
	assert.Equal(t, 0, v.Index)
	require.NotNil(t, v.Pending)
	assert.Equal(t, evaluation.AcceptableYes, v.Pending.Acceptability)
	assert.NotEmpty(t, v.Notice)

	v, err = s.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v.Index)
	assert.Nil(t, v.Pending)
	assert.Equal(t, 2, store.upsertCalls())
}

func TestSession_RetryWithoutPending(t *testing.T) {
	s := startSession(t, newCampaign(3, 50), newCountingStore(), "ana")
	_, err := s.Retry(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSession_BatchCompletionAndSelection(t *testing.T) {
	store := newCountingStore()
	s := startSession(t, newCampaign(6, 3), store, "ana")
	ctx := context.Background()

	var v View
	var err error
	for i := 0; i < 3; i++ {
		v, err = s.Submit(ctx, improvedJudgment())
		require.NoError(t, err)
	}
	assert.Equal(t, StateDoneBatch, v.State)
	assert.Equal(t, 2, v.Index, "never crosses into the next batch")
	assert.Equal(t, 0, v.Batch.Number)

	_, err = s.Submit(ctx, validJudgment())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.SelectBatch(ctx, 7)
	assert.ErrorIs(t, err, ErrUnknownBatch)

	v, err = s.SelectBatch(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, StatePresenting, v.State)
	assert.Equal(t, 3, v.Index)
	assert.Equal(t, "Batch 1 (clusters 3-5)", v.BatchName)

	for i := 0; i < 3; i++ {
		v, err = s.Submit(ctx, validJudgment())
		require.NoError(t, err)
	}
	assert.Equal(t, StateDoneAll, v.State)
	assert.Equal(t, 0, v.Remaining)

	_, err = s.SelectBatch(ctx, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSession_SelectBatchResumesInsideBatch(t *testing.T) {
	store := newCountingStore()
	store.seed(t, "3", "4")
	s := startSession(t, newCampaign(9, 3), store, "ana")

	v, err := s.SelectBatch(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 5, v.Index)
}

func TestSession_AdvanceWrapsToOpenClusters(t *testing.T) {
	store := newCountingStore()
	store.seed(t, "2")
	s := startSession(t, newCampaign(5, 5), store, "ana")
	ctx := context.Background()
	require.Equal(t, 3, s.View().Index)

	v, err := s.Submit(ctx, validJudgment())
	require.NoError(t, err)
	assert.Equal(t, 4, v.Index)

	v, err = s.Submit(ctx, validJudgment())
	require.NoError(t, err)
	assert.Equal(t, 0, v.Index, "positions before the resume point are still open")
}

func TestSession_ManualMovesStayInBatch(t *testing.T) {
	s := startSession(t, newCampaign(6, 3), newCountingStore(), "ana")
	ctx := context.Background()

	_, err := s.Previous(ctx)
	assert.ErrorIs(t, err, ErrOutsideBatch)

	v, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Index)
	v, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v.Index)

	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, ErrOutsideBatch)

	v, err = s.Previous(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Index)
}

func TestSession_RevisitEvaluatedCluster(t *testing.T) {
	store := newCountingStore()
	s := startSession(t, newCampaign(3, 50), store, "ana")
	ctx := context.Background()

	_, err := s.Submit(ctx, validJudgment())
	require.NoError(t, err)
	v, err := s.Previous(ctx)
	require.NoError(t, err)
	require.NotNil(t, v.Existing)
	assert.Equal(t, "ana", v.Existing.Annotator)

	revised := validJudgment()
	revised.Quality = evaluation.QualitySame
	_, err = s.Submit(ctx, revised)
	require.NoError(t, err, "own earlier write is not a conflict")

	all, _ := store.inner.LoadAll(ctx)
	assert.Equal(t, evaluation.QualitySame, all["0"].Quality)
}

func TestSession_ViewAssemblesPresentation(t *testing.T) {
	s := startSession(t, newCampaign(3, 50), newCountingStore(), "ana")
	v := s.View()

	require.NotNil(t, v.Baseline)
	require.NotNil(t, v.Candidate)
	assert.Equal(t, "identifier", v.Baseline.PrimaryLabel)
	assert.Equal(t, "Variable", v.Candidate.PrimaryLabel)
	assert.Equal(t, []string{"i", "j"}, v.UniqueTokens)
	assert.Equal(t, []corpus.SourceLine{{ID: 0, Text: "line 0"}}, v.SourceLines)
	assert.False(t, v.ViewStart.IsZero())

	_, err := s.Next(context.Background())
	require.NoError(t, err)
	_, err = s.Next(context.Background())
	require.NoError(t, err)

	// Cluster 2 is in neither catalog.
	v = s.View()
	assert.Equal(t, catalog.Placeholder, v.Baseline.PrimaryLabel)
	assert.Equal(t, catalog.Placeholder, v.Candidate.Description)
	assert.Empty(t, v.UniqueTokens)
}

func TestSession_Instrumentation(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	store := newCountingStore()
	s := New(newCampaign(3, 50), store, "ana",
		WithID("s-1"),
		WithTracer(tt.Tracer("test")),
		WithMeter(tt.Meter("test")),
	)
	ctx := context.Background()
	_, err := s.Start(ctx)
	require.NoError(t, err)
	_, err = s.Submit(ctx, validJudgment())
	require.NoError(t, err)
	_, err = s.Submit(ctx, evaluation.Judgment{})
	require.Error(t, err)

	assert.Equal(t, "s-1", s.ID())
	tt.AssertSpanExists(t, "session.start")
	tt.AssertSpanAttribute(t, "session.submit", "outcome", "saved")
	tt.AssertSpanAttribute(t, "session.submit", "session.id", "s-1")
	assert.Equal(t, int64(1), tt.CounterValue(t, "clustereval.session.submissions"))
	assert.Equal(t, int64(1), tt.CounterValue(t, "clustereval.session.validation_rejections"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "done_batch", StateDoneBatch.String())
	text, err := StateConflict.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "conflict", string(text))
	assert.Equal(t, "state(42)", State(42).String())

	var decoded State
	require.NoError(t, decoded.UnmarshalText([]byte("done_all")))
	assert.Equal(t, StateDoneAll, decoded)
	assert.Error(t, decoded.UnmarshalText([]byte("sleeping")))
}
