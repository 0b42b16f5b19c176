package clusterindex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// maxLineSize bounds a single occurrence line.
const maxLineSize = 1024 * 1024

// Index maps cluster ids to the source lines they occur on and holds the
// canonical ordering. It is immutable after Build.
type Index struct {
	ids      []string
	lines    map[string][]int
	position map[string]int
	report   BuildReport
}

// BuildReport summarizes a build.
type BuildReport struct {
	Lines   int // input lines read
	Records int // records accepted
	Skipped int // lines rejected
	Errors  []*ParseError
}

// maxReportedErrors caps the errors retained in a BuildReport.
const maxReportedErrors = 100

// Build reads occurrence lines from r. Malformed lines are skipped and
// reported; only read failures return an error.
func Build(r io.Reader, logger *zap.Logger) (*Index, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		records []OccurrenceRecord
		report  BuildReport
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		report.Lines++
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}
		rec, err := ParseLine(raw, report.Lines)
		if err != nil {
			report.Skipped++
			var pe *ParseError
			if errors.As(err, &pe) && len(report.Errors) < maxReportedErrors {
				report.Errors = append(report.Errors, pe)
			}
			logger.Debug("skipping occurrence line", zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read occurrences: %w", err)
	}

	idx := FromRecords(records)
	report.Records = len(records)
	idx.report = report
	return idx, nil
}

// BuildFile opens path and builds an Index from it.
func BuildFile(path string, logger *zap.Logger) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open occurrences: %w", err)
	}
	defer f.Close()
	return Build(f, logger)
}

// FromRecords builds an Index from already parsed records, in order.
func FromRecords(records []OccurrenceRecord) *Index {
	idx := &Index{
		lines:    make(map[string][]int),
		position: make(map[string]int),
	}

	var seen []string
	for _, rec := range records {
		if _, ok := idx.lines[rec.ClusterID]; !ok {
			seen = append(seen, rec.ClusterID)
		}
		idx.lines[rec.ClusterID] = append(idx.lines[rec.ClusterID], rec.SourceLine)
	}

	idx.ids = Order(seen)
	for i, id := range idx.ids {
		idx.position[id] = i
	}
	idx.report.Records = len(records)
	return idx
}

// Order returns ids in canonical order: numeric ids ascending by value,
// then non-numeric ids in their given order. The input is not modified.
func Order(ids []string) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		an, bn := isNumeric(a), isNumeric(b)
		switch {
		case an && bn:
			return numericLess(a, b)
		case an:
			return true
		default:
			return false
		}
	})
	return out
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// numericLess compares digit strings by value without overflow.
func numericLess(a, b string) bool {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}

// IDs returns the canonical ordering. Callers must not modify it.
func (x *Index) IDs() []string { return x.ids }

// Len returns the number of clusters.
func (x *Index) Len() int { return len(x.ids) }

// Lines returns the source lines for id in input order, duplicates kept.
func (x *Index) Lines(id string) []int {
	return x.lines[id]
}

// Contains reports whether id is in the ordering.
func (x *Index) Contains(id string) bool {
	_, ok := x.position[id]
	return ok
}

// Position returns the index of id in the ordering.
func (x *Index) Position(id string) (int, bool) {
	p, ok := x.position[id]
	return p, ok
}

// At returns the id at position i.
func (x *Index) At(i int) (string, bool) {
	if i < 0 || i >= len(x.ids) {
		return "", false
	}
	return x.ids[i], true
}

// Report returns the build summary.
func (x *Index) Report() BuildReport { return x.report }
