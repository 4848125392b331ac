package oracle

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore is an in-memory analysis store for demo/development mode.
type MemoryStore struct {
	analyses map[common.Hash]*Analysis
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory analysis store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{analyses: make(map[common.Hash]*Analysis)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateRequest(_ context.Context, a *Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.analyses[a.ThreatID]; ok {
		return nil
	}
	m.analyses[a.ThreatID] = copyAnalysis(a)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id common.Hash) (*Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.analyses[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return copyAnalysis(a), nil
}

func (m *MemoryStore) Update(_ context.Context, a *Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.analyses[a.ThreatID]; !ok {
		return ErrRequestNotFound
	}
	m.analyses[a.ThreatID] = copyAnalysis(a)
	return nil
}

func (m *MemoryStore) ListPending(_ context.Context, limit int) ([]*Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Analysis, 0, limit)
	for _, a := range m.analyses {
		if !a.Completed {
			out = append(out, copyAnalysis(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RequestedAt.Before(out[j].RequestedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func copyAnalysis(a *Analysis) *Analysis {
	cp := *a
	cp.Payload = append([]byte(nil), a.Payload...)
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
