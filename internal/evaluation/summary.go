package evaluation

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// SummaryRow counts one judgment value on one axis.
type SummaryRow struct {
	Criterion  string  `json:"criterion"`
	Judgment   string  `json:"judgment"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Summary aggregates judgment counts across evaluations.
type Summary struct {
	Total int          `json:"total"`
	Rows  []SummaryRow `json:"rows"`
}

// Summarize counts every judgment value of every axis. Percentages are
// relative to the evaluations that answered the axis, rounded to one
// decimal; an axis nobody answered reports 0.
func Summarize(evals map[string]*Evaluation) Summary {
	s := Summary{Total: len(evals)}

	for _, axis := range Axes {
		counts := make(map[string]int, len(axis.Values))
		answered := 0
		for _, ev := range evals {
			v := ev.Value(axis.Field)
			if contains(axis.Values, v) {
				counts[v]++
				answered++
			}
		}
		for _, v := range axis.Values {
			row := SummaryRow{Criterion: axis.Field, Judgment: v, Count: counts[v]}
			if answered > 0 {
				row.Percentage = math.Round(float64(counts[v])/float64(answered)*1000) / 10
			}
			s.Rows = append(s.Rows, row)
		}
	}
	return s
}

// WriteCSV writes the summary as criterion,judgment,count,percentage.
func (s Summary) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"criterion", "judgment", "count", "percentage"}); err != nil {
		return err
	}
	for _, r := range s.Rows {
		rec := []string{
			r.Criterion,
			r.Judgment,
			strconv.Itoa(r.Count),
			strconv.FormatFloat(r.Percentage, 'f', 1, 64),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
