package session

import (
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/catalog"
	"github.com/fyrsmithlabs/clustereval/internal/corpus"
	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
	"github.com/fyrsmithlabs/clustereval/internal/navigator"
)

// View is everything needed to render the session. It shares no memory
// with the session.
type View struct {
	SessionID string `json:"session_id"`
	Annotator string `json:"annotator"`
	State     State  `json:"state"`

	Index     int              `json:"index"`
	ClusterID string           `json:"cluster_id,omitempty"`
	Batch     navigator.Window `json:"batch"`
	BatchName string           `json:"batch_label"`
	Batches   int              `json:"batches"`
	Total     int              `json:"total"`
	Evaluated int              `json:"evaluated"`
	Remaining int              `json:"remaining"`

	Baseline     *catalog.Entry      `json:"baseline,omitempty"`
	Candidate    *catalog.Entry      `json:"candidate,omitempty"`
	UniqueTokens []string            `json:"unique_tokens,omitempty"`
	SourceLines  []corpus.SourceLine `json:"source_lines,omitempty"`

	// RequireImprovement is set when the baseline label was marked
	// unacceptable and the prompt-improvement judgment must be given.
	RequireImprovement bool `json:"require_improvement"`

	Existing *evaluation.Evaluation `json:"existing,omitempty"`
	Pending  *evaluation.Judgment   `json:"pending,omitempty"`
	Conflict *evaluation.Evaluation `json:"conflict,omitempty"`

	ViewStart time.Time `json:"view_start"`
	Notice    string    `json:"notice,omitempty"`
}

// view assembles the View. The caller holds the lock.
func (s *Session) view() View {
	ids := s.campaign.IDs()
	v := View{
		SessionID: s.id,
		Annotator: s.annotator,
		State:     s.state,
		Index:     s.index,
		Batch:     s.window,
		BatchName: s.window.Label(),
		Batches:   s.campaign.BatchCount(),
		Total:     len(ids),
		Remaining: navigator.Remaining(ids, s.evaluated),
		Notice:    s.notice,
	}
	v.Evaluated = v.Total - v.Remaining

	if s.state == StateLoading || s.state == StateDoneAll || len(ids) == 0 {
		return v
	}

	id := s.currentID()
	v.ClusterID = id
	v.ViewStart = s.viewStart
	v.RequireImprovement = s.requiresImprovement(id)

	baseline := s.lookup(s.campaign.Baseline, id)
	candidate := s.lookup(s.campaign.Candidate, id)
	v.Baseline = &baseline
	v.Candidate = &candidate
	v.UniqueTokens = candidate.UniqueTokens
	v.SourceLines = s.campaign.Corpus.Resolve(s.campaign.Index.Lines(id))

	if stored, ok := s.evaluated[id]; ok {
		v.Existing = stored.Clone()
	}
	if s.pending != nil {
		j := s.pending.Judgment
		v.Pending = &j
	}
	v.Conflict = s.conflict.Clone()
	return v
}

func (s *Session) lookup(c *catalog.Catalog, id string) catalog.Entry {
	entry, err := c.Lookup(id)
	if err != nil {
		s.logger.Debug("catalog lookup miss", zap.String("cluster.id", id), zap.Error(err))
	}
	return entry
}
