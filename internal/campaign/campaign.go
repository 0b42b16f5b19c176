// Package campaign holds the read-only inputs of one annotation campaign.
package campaign

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/clustereval/internal/catalog"
	"github.com/fyrsmithlabs/clustereval/internal/clusterindex"
	"github.com/fyrsmithlabs/clustereval/internal/config"
	"github.com/fyrsmithlabs/clustereval/internal/corpus"
	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
	"github.com/fyrsmithlabs/clustereval/internal/navigator"
)

// Campaign is loaded once and shared by every session. Nothing in it
// changes after Load.
type Campaign struct {
	Index     *clusterindex.Index
	Baseline  *catalog.Catalog
	Candidate *catalog.Catalog
	Corpus    *corpus.Corpus
	BatchSize int
}

// Load reads every input named by cfg.
func Load(cfg config.CampaignConfig, logger *zap.Logger) (*Campaign, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.RequireInputs(); err != nil {
		return nil, err
	}

	index, err := clusterindex.BuildFile(cfg.OccurrencesPath, logger)
	if err != nil {
		return nil, err
	}
	baseline, err := catalog.LoadBaselineFile(cfg.BaselinePath)
	if err != nil {
		return nil, err
	}
	candidate, err := catalog.LoadCandidateFile(cfg.CandidatePath)
	if err != nil {
		return nil, err
	}
	lines, err := corpus.LoadFile(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}

	c := New(index, baseline, candidate, lines, cfg.BatchSize)
	report := index.Report()
	logger.Info("campaign loaded",
		zap.Int("clusters", index.Len()),
		zap.Int("records", report.Records),
		zap.Int("skipped_lines", report.Skipped),
		zap.Int("baseline_entries", baseline.Len()),
		zap.Int("candidate_entries", candidate.Len()),
		zap.Int("corpus_lines", lines.Len()),
		zap.Int("batch_size", c.BatchSize),
		zap.Int("batches", c.BatchCount()),
	)
	c.warnMissing(logger)
	return c, nil
}

// New assembles a campaign from loaded parts. A non-positive batch size
// puts every cluster in one batch.
func New(index *clusterindex.Index, baseline, candidate *catalog.Catalog, lines *corpus.Corpus, batchSize int) *Campaign {
	if index == nil {
		index = clusterindex.FromRecords(nil)
	}
	if baseline == nil {
		baseline = catalog.New("baseline", nil)
	}
	if candidate == nil {
		candidate = catalog.New("candidate", nil)
	}
	if lines == nil {
		lines = corpus.FromLines(nil)
	}
	return &Campaign{
		Index:     index,
		Baseline:  baseline,
		Candidate: candidate,
		Corpus:    lines,
		BatchSize: batchSize,
	}
}

// IDs returns the canonical cluster ordering.
func (c *Campaign) IDs() []string { return c.Index.IDs() }

// BatchCount returns the number of batches in the ordering.
func (c *Campaign) BatchCount() int {
	return navigator.BatchCount(c.Index.Len(), c.BatchSize)
}

// Batch returns window n.
func (c *Campaign) Batch(n int) (navigator.Window, bool) {
	return navigator.Batch(n, c.BatchSize, c.Index.Len())
}

// WindowFor returns the batch window containing position i.
func (c *Campaign) WindowFor(i int) navigator.Window {
	return navigator.WindowFor(i, c.BatchSize, c.Index.Len())
}

// Batches lists every batch window, for selectors.
func (c *Campaign) Batches() []navigator.Window {
	out := make([]navigator.Window, 0, c.BatchCount())
	for n := 0; n < c.BatchCount(); n++ {
		w, _ := c.Batch(n)
		out = append(out, w)
	}
	return out
}

// Report is a progress snapshot of the campaign against the stored
// evaluations.
type Report struct {
	Total     int                       `json:"total"`
	Evaluated int                       `json:"evaluated"`
	Remaining int                       `json:"remaining"`
	BatchSize int                       `json:"batch_size"`
	Batches   []navigator.BatchProgress `json:"batches"`
}

// Percent returns the evaluated share in [0, 1].
func (r Report) Percent() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Evaluated) / float64(r.Total)
}

// CompleteBatches counts batches with every cluster evaluated.
func (r Report) CompleteBatches() int {
	n := 0
	for _, b := range r.Batches {
		if b.Done == b.Total {
			n++
		}
	}
	return n
}

// Progress builds a Report from the stored evaluations. Records for
// clusters outside the index are ignored.
func (c *Campaign) Progress(evaluated map[string]*evaluation.Evaluation) Report {
	ids := c.IDs()
	remaining := navigator.Remaining(ids, evaluated)
	return Report{
		Total:     len(ids),
		Evaluated: len(ids) - remaining,
		Remaining: remaining,
		BatchSize: c.BatchSize,
		Batches:   navigator.Progress(ids, evaluated, c.BatchSize),
	}
}

// warnMissing logs clusters that have no entry in a catalog. Lookups for
// them fall back to placeholders.
func (c *Campaign) warnMissing(logger *zap.Logger) {
	for _, cat := range []*catalog.Catalog{c.Baseline, c.Candidate} {
		missing := 0
		for _, id := range c.Index.IDs() {
			if _, ok := cat.Get(id); !ok {
				missing++
			}
		}
		if missing > 0 {
			logger.Warn("clusters missing from catalog",
				zap.String("catalog", cat.Name()),
				zap.Int("missing", missing),
			)
		}
	}
}

// String describes the campaign size for logs and CLI output.
func (c *Campaign) String() string {
	return fmt.Sprintf("%d clusters in %d batches of %d", c.Index.Len(), c.BatchCount(), c.BatchSize)
}
