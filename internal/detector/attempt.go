package detector

import (
	"encoding/binary"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Attempt is the unit of analysis: a proposed call plus the environment
// signals the surrounding runtime supplies. Attempts are ephemeral; only
// the threat records derived from them are persisted.
type Attempt struct {
	Caller           common.Address `json:"caller"`
	Origin           common.Address `json:"origin"` // ultimate transaction originator
	Target           common.Address `json:"target"`
	Payload          []byte         `json:"payload"`
	Value            *big.Int       `json:"value"`
	CallerIsContract bool           `json:"callerIsContract"`
	CallerBalance    *big.Int       `json:"callerBalance"`
	PriorityFee      *big.Int       `json:"priorityFee"`
	GasRemaining     uint64         `json:"gasRemaining"`
	CallDepth        int            `json:"callDepth"`
	Unit             uint64         `json:"unit"` // ordering counter at submission
	At               time.Time      `json:"at"`
}

// Selector returns the 4-byte function selector of the payload.
// ok is false for payloads shorter than 4 bytes (plain value transfers).
func (a *Attempt) Selector() (sel [4]byte, ok bool) {
	if len(a.Payload) < 4 {
		return sel, false
	}
	copy(sel[:], a.Payload[:4])
	return sel, true
}

// Amount decodes the first 32-byte argument of the payload as an unsigned
// integer. Used by the withdrawal heuristics; returns zero for short payloads.
func (a *Attempt) Amount() *big.Int {
	if len(a.Payload) < 36 {
		return new(big.Int)
	}
	return new(big.Int).SetBytes(a.Payload[4:36])
}

// ThreatID derives the deterministic, content-addressed identifier for this
// attempt: Keccak-256 over caller, target, payload, value, ordering unit and
// submission time. The same attempt always maps to the same ID so audit-log
// entries, frozen calls and oracle verdicts correlate.
func (a *Attempt) ThreatID() common.Hash {
	var unit, at [8]byte
	binary.BigEndian.PutUint64(unit[:], a.Unit)
	binary.BigEndian.PutUint64(at[:], uint64(a.At.UnixNano()))

	value := a.Value
	if value == nil {
		value = new(big.Int)
	}

	return common.BytesToHash(crypto.Keccak256(
		a.Caller.Bytes(),
		a.Target.Bytes(),
		a.Payload,
		common.BigToHash(value).Bytes(),
		unit[:],
		at[:],
	))
}
