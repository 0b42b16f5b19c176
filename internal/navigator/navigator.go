// Package navigator partitions the canonical cluster ordering into batches
// and picks the position an annotator should see next.
//
// Every function is pure: callers pass the evaluated set they just loaded.
package navigator

import "fmt"

// DefaultBatchSize is the number of clusters handed to one annotator.
const DefaultBatchSize = 50

// Window is the half-open position range [Start, End) of one batch.
type Window struct {
	Number int `json:"number"`
	Start  int `json:"start"`
	End    int `json:"end"`
}

// Len returns the number of positions in the window.
func (w Window) Len() int { return w.End - w.Start }

// Contains reports whether position i lies inside the window.
func (w Window) Contains(i int) bool { return i >= w.Start && i < w.End }

// Label renders the window the way the batch selector shows it.
func (w Window) Label() string {
	if w.Len() <= 0 {
		return fmt.Sprintf("Batch %d (empty)", w.Number)
	}
	return fmt.Sprintf("Batch %d (clusters %d-%d)", w.Number, w.Start, w.End-1)
}

// WindowFor returns the batch window containing position start. A
// non-positive batchSize yields a single window over the whole ordering.
func WindowFor(start, batchSize, total int) Window {
	if start < 0 {
		start = 0
	}
	if batchSize <= 0 {
		return Window{Number: 0, Start: 0, End: total}
	}
	n := start / batchSize
	return window(n, batchSize, total)
}

// Batch returns window n, or false when n is not a batch of the ordering.
func Batch(n, batchSize, total int) (Window, bool) {
	if n < 0 || n >= BatchCount(total, batchSize) {
		return Window{}, false
	}
	if batchSize <= 0 {
		return Window{Number: 0, Start: 0, End: total}, true
	}
	return window(n, batchSize, total), true
}

func window(n, batchSize, total int) Window {
	start := n * batchSize
	end := min(start+batchSize, total)
	if start > total {
		start = total
	}
	return Window{Number: n, Start: start, End: end}
}

// BatchCount returns ceil(total / batchSize).
func BatchCount(total, batchSize int) int {
	if total <= 0 {
		return 0
	}
	if batchSize <= 0 {
		return 1
	}
	return (total + batchSize - 1) / batchSize
}

// FindNextUnevaluated returns the position to present when starting at
// start: the first unevaluated position at or after start inside start's
// batch, else the last evaluated position of the batch, else the batch
// start. The result never leaves the batch.
func FindNextUnevaluated[V any](ids []string, evaluated map[string]V, start, batchSize int) int {
	return ScanWindow(ids, evaluated, start, WindowFor(start, batchSize, len(ids)))
}

// ScanWindow runs the FindNextUnevaluated scan with an explicit window, so
// that a start position one past the window's end stays confined to it.
func ScanWindow[V any](ids []string, evaluated map[string]V, start int, w Window) int {
	end := min(w.End, len(ids))
	if start < w.Start {
		start = w.Start
	}

	for i := start; i < end; i++ {
		if _, done := evaluated[ids[i]]; !done {
			return i
		}
	}
	for i := end - 1; i >= w.Start; i-- {
		if _, done := evaluated[ids[i]]; done {
			return i
		}
	}
	return w.Start
}

// ResumeIndex returns one past the highest evaluated position, clamped to
// the last position. Evaluations for ids outside the ordering are ignored.
func ResumeIndex[V any](ids []string, evaluated map[string]V) int {
	if len(ids) == 0 {
		return 0
	}
	last := -1
	for i, id := range ids {
		if _, done := evaluated[id]; done {
			last = i
		}
	}
	return min(last+1, len(ids)-1)
}

// Remaining counts ordered ids without an evaluation.
func Remaining[V any](ids []string, evaluated map[string]V) int {
	n := 0
	for _, id := range ids {
		if _, done := evaluated[id]; !done {
			n++
		}
	}
	return n
}

// Complete reports whether every position of w is evaluated.
func Complete[V any](ids []string, evaluated map[string]V, w Window) bool {
	for i := w.Start; i < min(w.End, len(ids)); i++ {
		if _, done := evaluated[ids[i]]; !done {
			return false
		}
	}
	return true
}

// BatchProgress is the completion of one batch.
type BatchProgress struct {
	Window Window `json:"window"`
	Done   int    `json:"done"`
	Total  int    `json:"total"`
}

// Progress returns the completion of every batch in order.
func Progress[V any](ids []string, evaluated map[string]V, batchSize int) []BatchProgress {
	count := BatchCount(len(ids), batchSize)
	out := make([]BatchProgress, 0, count)
	for n := 0; n < count; n++ {
		w, _ := Batch(n, batchSize, len(ids))
		p := BatchProgress{Window: w, Total: w.Len()}
		for i := w.Start; i < w.End; i++ {
			if _, done := evaluated[ids[i]]; done {
				p.Done++
			}
		}
		out = append(out, p)
	}
	return out
}
