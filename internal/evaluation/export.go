package evaluation

import (
	"encoding/json"
	"fmt"
	"io"
)

// Export writes evaluations as a JSON object keyed by cluster id, keys
// sorted, two-space indent.
func Export(w io.Writer, evals map[string]*Evaluation) error {
	if evals == nil {
		evals = map[string]*Evaluation{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(evals); err != nil {
		return fmt.Errorf("encode evaluations: %w", err)
	}
	return nil
}

// Import reads the format written by Export. A record whose cluster_id is
// empty takes its key; a record that names a different cluster is rejected.
// CreatedAt keeps the instant and UTC offset that were written but not the
// zone name, so timestamps round-trip under time.Time.Equal.
func Import(r io.Reader) (map[string]*Evaluation, error) {
	var raw map[string]*Evaluation
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode evaluations: %w", err)
	}

	out := make(map[string]*Evaluation, len(raw))
	for id, ev := range raw {
		if ev == nil {
			return nil, fmt.Errorf("evaluation %q is null", id)
		}
		if ev.ClusterID == "" {
			ev.ClusterID = id
		}
		if ev.ClusterID != id {
			return nil, fmt.Errorf("evaluation keyed %q names cluster %q", id, ev.ClusterID)
		}
		out[id] = ev
	}
	return out, nil
}
