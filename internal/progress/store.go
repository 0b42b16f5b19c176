// Package progress persists evaluations to a shared store and detects
// concurrent writes to the same cluster.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
)

var (
	// ErrStoreUnavailable wraps every failure that survived the retry budget.
	ErrStoreUnavailable = errors.New("progress store unavailable")

	// ErrRevisionMismatch is returned by Backend.Write when the stored
	// revision is not the one the caller expected.
	ErrRevisionMismatch = errors.New("revision mismatch")

	// ErrInvalidEvaluation is returned for records the store cannot key.
	ErrInvalidEvaluation = errors.New("invalid evaluation")
)

// Outcome is the result of an Upsert.
type Outcome int

const (
	OutcomeSaved Outcome = iota
	OutcomeConflict
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeConflict:
		return "conflict"
	default:
		return "failed"
	}
}

// Guard carries what the writer knew when it started viewing the cluster.
type Guard struct {
	// ViewStart is when the writer started viewing the cluster.
	ViewStart time.Time
	// ReadRevision is the revision of the record the writer saw, 0 if none.
	ReadRevision uint64
	// Overwrite skips the conflict check after explicit confirmation.
	Overwrite bool
}

// Result reports an Upsert. Current is the written record on Saved and the
// stored record on Conflict.
type Result struct {
	Outcome Outcome
	Current *evaluation.Evaluation
}

// Store is the contract the session depends on.
type Store interface {
	// LoadAll returns every stored evaluation keyed by cluster id. On
	// failure it returns an empty, non-nil map and an error wrapping
	// ErrStoreUnavailable.
	LoadAll(ctx context.Context) (map[string]*evaluation.Evaluation, error)

	// Upsert writes ev unless the guard detects a concurrent write.
	Upsert(ctx context.Context, ev *evaluation.Evaluation, guard Guard) (Result, error)
}

// Backend is a key-value persistence layer with compare-and-set writes.
type Backend interface {
	// Name identifies the backend in logs and metrics.
	Name() string

	// Get returns the stored record, or nil when the cluster has none.
	Get(ctx context.Context, clusterID string) (*evaluation.Evaluation, error)

	// All returns every stored record.
	All(ctx context.Context) (map[string]*evaluation.Evaluation, error)

	// Write stores ev if the current revision equals prev (0 = absent) and
	// returns the new revision, or ErrRevisionMismatch.
	Write(ctx context.Context, ev *evaluation.Evaluation, prev uint64) (uint64, error)

	Close() error
}

// IsConflict reports whether writing over stored would clobber a write the
// guard's owner has not seen. A missing record never conflicts.
func IsConflict(stored *evaluation.Evaluation, guard Guard) bool {
	if stored == nil || guard.Overwrite {
		return false
	}
	if stored.CreatedAt.After(guard.ViewStart) {
		return true
	}
	return stored.Revision != guard.ReadRevision
}
