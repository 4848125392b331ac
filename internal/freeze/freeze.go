// Package freeze tracks threat records and frozen calls: the audit trail of
// every flagged attempt and the resolution state machine for calls blocked
// pending review.
//
// Lifecycle:
//  1. Gateway classifies an attempt at HIGH or above → ThreatRecord +
//     FrozenCall created, call fails back to the submitter
//  2. Oracle analyzes out of band and submits a verdict
//  3. Owner override or initiator self-resolution applies execute/revert
//  4. A frozen call nobody resolves before its expiry unit is permanently
//     stuck; expiry is a fail-safe, not an implicit cancellation
package freeze

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cordonlabs/cordon/internal/detector"
)

var (
	ErrThreatNotFound      = errors.New("threat record not found")
	ErrNotFrozen           = errors.New("no frozen call for threat")
	ErrAlreadyResolved     = errors.New("frozen call already resolved")
	ErrFreezeExpired       = errors.New("freeze window expired")
	ErrNotInitiator        = errors.New("caller is not the initiator of the frozen call")
	ErrCriticalThreat      = errors.New("critical threat requires an owner resolution")
	ErrInvalidAction       = errors.New("invalid resolution action")
	ErrSimulationRequested = errors.New("simulation requested, retry after re-analysis")
)

// Action is a resolution decision for a frozen call.
type Action string

const (
	ActionExecute  Action = "execute"
	ActionRevert   Action = "revert"
	ActionSimulate Action = "simulate"
)

// ParseAction validates an action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionExecute, ActionRevert, ActionSimulate:
		return Action(s), nil
	}
	return "", ErrInvalidAction
}

// ThreatRecord is the immutable audit record of a flagged attempt. Created
// exactly once per attempt classified above NONE; only the mitigation fields
// change afterwards, and only through the resolution engine.
type ThreatRecord struct {
	ID               common.Hash        `json:"threatId"`
	Caller           common.Address     `json:"caller"`
	Target           common.Address     `json:"target"`
	Payload          []byte             `json:"payload"`
	Value            *big.Int           `json:"value"`
	Unit             uint64             `json:"unit"`
	At               time.Time          `json:"at"`
	Level            detector.Level     `json:"level"`
	Type             detector.VulnType  `json:"vulnerabilityType"`
	Heuristic        string             `json:"heuristic"`
	Reason           string             `json:"reason"`
	FreezeExpiry     uint64             `json:"freezeExpiry"` // 0 if never frozen
	Mitigated        bool               `json:"isMitigated"`
	MitigationResult []byte             `json:"mitigationResult,omitempty"`
}

// ValueAtRisk estimates the amount a freeze kept away from the target: the
// attached value, or the decoded withdrawal amount from the payload when
// that is larger.
func (r *ThreatRecord) ValueAtRisk() *big.Int {
	risk := new(big.Int)
	if r.Value != nil {
		risk.Set(r.Value)
	}
	if len(r.Payload) >= 36 {
		if decoded := new(big.Int).SetBytes(r.Payload[4:36]); decoded.Cmp(risk) > 0 {
			risk.Set(decoded)
		}
	}
	return risk
}

// FrozenCall is the resolution state of a blocked attempt.
// At most one of Executed/Cancelled ever becomes true; once either is set
// the record is terminal.
type FrozenCall struct {
	ThreatID     common.Hash    `json:"threatId"`
	Initiator    common.Address `json:"initiator"`
	FrozenAt     time.Time      `json:"frozenAt"`
	FrozenAtUnit uint64         `json:"frozenAtUnit"`
	FreezeExpiry uint64         `json:"freezeExpiry"`
	Executed     bool           `json:"executed"`
	Cancelled    bool           `json:"cancelled"`
}

// IsTerminal reports whether the call has been resolved either way.
func (f *FrozenCall) IsTerminal() bool {
	return f.Executed || f.Cancelled
}

// Status renders the state machine position, deriving EXPIRED from the
// current ordering unit since expiry is never written back to the record.
func (f *FrozenCall) Status(nowUnit uint64) string {
	switch {
	case f.Executed:
		return "EXECUTED"
	case f.Cancelled:
		return "CANCELLED"
	case nowUnit > f.FreezeExpiry:
		return "EXPIRED"
	default:
		return "FROZEN"
	}
}

// Resolution is the outcome of a resolution attempt, returned to callers and
// echoed into the audit log.
type Resolution struct {
	ThreatID      common.Hash `json:"threatId"`
	Action        Action      `json:"action"`
	Executed      bool        `json:"executed"`
	Cancelled     bool        `json:"cancelled"`
	Result        []byte      `json:"result,omitempty"`
	LossPrevented *big.Int    `json:"lossPrevented,omitempty"`
}
