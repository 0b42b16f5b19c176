package progress

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/clustereval/internal/evaluation"
)

// MemoryBackend keeps evaluations in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*evaluation.Evaluation
	seq     uint64
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]*evaluation.Evaluation)}
}

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Get(_ context.Context, clusterID string) (*evaluation.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.records[clusterID].Clone(), nil
}

func (m *MemoryBackend) All(_ context.Context) (map[string]*evaluation.Evaluation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*evaluation.Evaluation, len(m.records))
	for id, ev := range m.records {
		out[id] = ev.Clone()
	}
	return out, nil
}

func (m *MemoryBackend) Write(_ context.Context, ev *evaluation.Evaluation, prev uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var current uint64
	if stored, ok := m.records[ev.ClusterID]; ok {
		current = stored.Revision
	}
	if current != prev {
		return 0, ErrRevisionMismatch
	}

	m.seq++
	record := ev.Clone()
	record.Revision = m.seq
	m.records[ev.ClusterID] = record
	return m.seq, nil
}

func (m *MemoryBackend) Close() error { return nil }
