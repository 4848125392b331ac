package freeze

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryStore is an in-memory freeze store for demo/development mode.
type MemoryStore struct {
	threats map[common.Hash]*ThreatRecord
	frozen  map[common.Hash]*FrozenCall
	order   []common.Hash // threat creation order, oldest first
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory freeze store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threats: make(map[common.Hash]*ThreatRecord),
		frozen:  make(map[common.Hash]*FrozenCall),
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) CreateThreat(_ context.Context, rec *ThreatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threats[rec.ID]; !ok {
		m.order = append(m.order, rec.ID)
	}
	m.threats[rec.ID] = copyThreat(rec)
	return nil
}

func (m *MemoryStore) GetThreat(_ context.Context, id common.Hash) (*ThreatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.threats[id]
	if !ok {
		return nil, ErrThreatNotFound
	}
	return copyThreat(rec), nil
}

func (m *MemoryStore) UpdateThreat(_ context.Context, rec *ThreatRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.threats[rec.ID]; !ok {
		return ErrThreatNotFound
	}
	m.threats[rec.ID] = copyThreat(rec)
	return nil
}

func (m *MemoryStore) ListThreats(_ context.Context, limit int) ([]*ThreatRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*ThreatRecord, 0, limit)
	// Newest first.
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, copyThreat(m.threats[m.order[i]]))
	}
	return out, nil
}

func (m *MemoryStore) CreateFrozenCall(_ context.Context, fc *FrozenCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *fc
	m.frozen[fc.ThreatID] = &cp
	return nil
}

func (m *MemoryStore) GetFrozenCall(_ context.Context, id common.Hash) (*FrozenCall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fc, ok := m.frozen[id]
	if !ok {
		return nil, ErrNotFrozen
	}
	cp := *fc
	return &cp, nil
}

func (m *MemoryStore) UpdateFrozenCall(_ context.Context, fc *FrozenCall) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.frozen[fc.ThreatID]; !ok {
		return ErrNotFrozen
	}
	cp := *fc
	m.frozen[fc.ThreatID] = &cp
	return nil
}

func (m *MemoryStore) ListActiveFrozen(_ context.Context, limit int) ([]*FrozenCall, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*FrozenCall, 0, limit)
	for _, fc := range m.frozen {
		if fc.IsTerminal() {
			continue
		}
		cp := *fc
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].FrozenAt.Before(out[j].FrozenAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// copyThreat returns a deep copy so callers cannot race on shared state.
func copyThreat(rec *ThreatRecord) *ThreatRecord {
	cp := *rec
	if rec.Value != nil {
		cp.Value = new(big.Int).Set(rec.Value)
	}
	cp.Payload = append([]byte(nil), rec.Payload...)
	cp.MitigationResult = append([]byte(nil), rec.MitigationResult...)
	return &cp
}
