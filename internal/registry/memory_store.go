package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore is an in-memory target store for demo/development mode.
type MemoryStore struct {
	targets map[common.Address]*ProtectedTarget
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory target store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{targets: make(map[common.Address]*ProtectedTarget)}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) Upsert(_ context.Context, t *ProtectedTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.targets[t.Address] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, addr common.Address) (*ProtectedTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.targets[addr]
	if !ok {
		return nil, ErrTargetNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MemoryStore) List(_ context.Context, activeOnly bool, limit int) ([]*ProtectedTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ProtectedTarget, 0, len(m.targets))
	for _, t := range m.targets {
		if activeOnly && !t.Protected {
			continue
		}
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].RegisteredAt.Before(out[j].RegisteredAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
