package gateway

import (
	"math/big"
	"sync"
	"sync/atomic"
)

// Stats holds the global enforcement counters. Counters are monotonic;
// lossPrevented accumulates the value kept away from targets by reverted
// freezes.
type Stats struct {
	threatsDetected  atomic.Int64
	threatsMitigated atomic.Int64
	callsForwarded   atomic.Int64

	mu            sync.Mutex
	lossPrevented *big.Int
}

// NewStats creates zeroed statistics.
func NewStats() *Stats {
	return &Stats{lossPrevented: new(big.Int)}
}

// RecordThreat counts a detection (any level above NONE).
func (s *Stats) RecordThreat() {
	s.threatsDetected.Add(1)
}

// RecordForwarded counts a call delivered to its target.
func (s *Stats) RecordForwarded() {
	s.callsForwarded.Add(1)
}

// RecordMitigation counts a resolved freeze and, for reverts, accumulates
// the prevented loss. A nil loss counts the mitigation only.
func (s *Stats) RecordMitigation(loss *big.Int) {
	s.threatsMitigated.Add(1)
	gwMitigations.Inc()
	if loss == nil || loss.Sign() <= 0 {
		return
	}
	s.mu.Lock()
	s.lossPrevented.Add(s.lossPrevented, loss)
	s.mu.Unlock()
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	ThreatsDetected  int64  `json:"threatsDetected"`
	ThreatsMitigated int64  `json:"threatsMitigated"`
	CallsForwarded   int64  `json:"callsForwarded"`
	LossPrevented    string `json:"lossPrevented"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	loss := s.lossPrevented.String()
	s.mu.Unlock()

	return Snapshot{
		ThreatsDetected:  s.threatsDetected.Load(),
		ThreatsMitigated: s.threatsMitigated.Load(),
		CallsForwarded:   s.callsForwarded.Load(),
		LossPrevented:    loss,
	}
}
