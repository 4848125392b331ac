package detector

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// CallGraph is the in-memory behavioral state shared across classifications:
// per-caller call counters keyed by ordering unit, per-caller withdrawal
// history, and per-target deposit profiles. All access is serialized by a
// single mutex; two concurrent attempts must not both observe a
// pre-increment counter and both pass a threshold only one should pass.
type CallGraph struct {
	mu      sync.Mutex
	callers map[common.Address]*callerNode
	targets map[common.Address]*targetProfile
}

// callerNode tracks activity for a single caller.
type callerNode struct {
	unit          uint64 // ordering unit the counter belongs to
	calls         int
	withdrawUnits []uint64 // units of recent withdrawals, oldest first
}

// targetProfile tracks the deposit history of a ledger-style target.
type targetProfile struct {
	depositCount int64
	depositTotal *big.Int
}

// NewCallGraph creates an empty graph.
func NewCallGraph() *CallGraph {
	return &CallGraph{
		callers: make(map[common.Address]*callerNode),
		targets: make(map[common.Address]*targetProfile),
	}
}

// BumpCall increments the caller's counter for the given ordering unit and
// returns the new count. The counter resets whenever the unit advances.
// This is the bookkeeping side effect of the burst heuristic; the
// high-frequency heuristic reads the same counter via CallCount.
func (g *CallGraph) BumpCall(caller common.Address, unit uint64) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	node := g.caller(caller)
	if node.unit != unit {
		node.unit = unit
		node.calls = 0
	}
	node.calls++
	return node.calls
}

// CallCount returns the caller's counter for the given unit without
// modifying it. Returns 0 if the counter belongs to an older unit.
func (g *CallGraph) CallCount(caller common.Address, unit uint64) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.callers[caller]
	if !ok || node.unit != unit {
		return 0
	}
	return node.calls
}

// RecordDeposit folds a deposit into the target's running profile.
func (g *CallGraph) RecordDeposit(target common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.targets[target]
	if !ok {
		p = &targetProfile{depositTotal: new(big.Int)}
		g.targets[target] = p
	}
	p.depositCount++
	p.depositTotal.Add(p.depositTotal, amount)
}

// AverageDeposit returns the running average deposit for the target, or nil
// if the target has no recorded deposits.
func (g *CallGraph) AverageDeposit(target common.Address) *big.Int {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.targets[target]
	if !ok || p.depositCount == 0 {
		return nil
	}
	return new(big.Int).Div(new(big.Int).Set(p.depositTotal), big.NewInt(p.depositCount))
}

// RecordWithdrawal appends a withdrawal at the given unit to the caller's
// history, evicts entries older than the pattern window, and returns the
// number of withdrawals remaining inside the window (including this one).
func (g *CallGraph) RecordWithdrawal(caller common.Address, unit, window uint64) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	node := g.caller(caller)

	var cutoff uint64
	if unit > window {
		cutoff = unit - window
	}
	i := 0
	for i < len(node.withdrawUnits) && node.withdrawUnits[i] < cutoff {
		i++
	}
	if i > 0 {
		node.withdrawUnits = append(node.withdrawUnits[:0], node.withdrawUnits[i:]...)
	}

	node.withdrawUnits = append(node.withdrawUnits, unit)
	return len(node.withdrawUnits)
}

// caller returns the node for caller, creating it if needed.
// Caller of this method must hold the lock.
func (g *CallGraph) caller(addr common.Address) *callerNode {
	node, ok := g.callers[addr]
	if !ok {
		node = &callerNode{}
		g.callers[addr] = node
	}
	return node
}
