package freeze

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cordonlabs/cordon/internal/detector"
	"github.com/cordonlabs/cordon/internal/ordering"
	"github.com/cordonlabs/cordon/internal/syncutil"
	"github.com/cordonlabs/cordon/internal/traces"
)

// DefaultFreezeDuration is the freeze window in ordering units.
const DefaultFreezeDuration = 30

// TargetInvoker re-invokes the original call when an execute resolution is
// applied. The gateway wires its forwarding router in here.
type TargetInvoker interface {
	Invoke(ctx context.Context, caller, target common.Address, payload []byte, value *big.Int) ([]byte, error)
}

// AnalysisRequester re-emits an analysis request on a simulate resolution.
type AnalysisRequester interface {
	RequestAnalysis(ctx context.Context, threatID common.Hash, target, caller common.Address, payload []byte) error
}

// MitigationRecorder receives statistics updates when a freeze is resolved.
type MitigationRecorder interface {
	RecordMitigation(lossPrevented *big.Int)
}

// Ledger owns frozen-call state transitions. All resolution paths for a
// given threat ID are serialized through a sharded lock so the
// executed/cancelled pair can never both be set.
type Ledger struct {
	store    Store
	clock    ordering.Clock
	invoker  TargetInvoker
	analysis AnalysisRequester
	stats    MitigationRecorder
	logger   *slog.Logger

	locks    syncutil.ShardedMutex
	duration atomic.Uint64 // freeze window, ordering units
}

// LedgerOption configures the Ledger.
type LedgerOption func(*Ledger)

// WithInvoker sets the target invoker used by execute resolutions.
func WithInvoker(inv TargetInvoker) LedgerOption {
	return func(l *Ledger) { l.invoker = inv }
}

// WithAnalysisRequester sets the requester used by simulate resolutions.
func WithAnalysisRequester(ar AnalysisRequester) LedgerOption {
	return func(l *Ledger) { l.analysis = ar }
}

// WithMitigationRecorder sets the statistics sink.
func WithMitigationRecorder(mr MitigationRecorder) LedgerOption {
	return func(l *Ledger) { l.stats = mr }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) LedgerOption {
	return func(l *Ledger) { l.logger = logger }
}

// NewLedger creates a freeze ledger with the default freeze duration.
func NewLedger(store Store, clock ordering.Clock, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		clock:  clock,
		logger: slog.Default(),
	}
	l.duration.Store(DefaultFreezeDuration)
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FreezeDuration returns the current freeze window in ordering units.
func (l *Ledger) FreezeDuration() uint64 {
	return l.duration.Load()
}

// SetFreezeDuration updates the freeze window. Applies to future freezes
// only; outstanding frozen calls keep their original expiry.
func (l *Ledger) SetFreezeDuration(units uint64) error {
	if units == 0 {
		return fmt.Errorf("freeze: duration must be positive")
	}
	l.duration.Store(units)
	return nil
}

// Record persists a threat record without freezing. Used for the
// soft-monitoring band where the call is still forwarded.
func (l *Ledger) Record(ctx context.Context, rec *ThreatRecord) error {
	return l.store.CreateThreat(ctx, rec)
}

// Freeze persists the threat record and creates its frozen call, stamping
// freezeExpiry at the current unit plus the freeze window. Callers hold the
// per-target submission lock; the ledger itself does not serialize creation.
func (l *Ledger) Freeze(ctx context.Context, rec *ThreatRecord) (*FrozenCall, error) {
	now := l.clock.Unit()
	rec.FreezeExpiry = now + l.duration.Load()

	if err := l.store.CreateThreat(ctx, rec); err != nil {
		return nil, fmt.Errorf("freeze: record threat: %w", err)
	}

	fc := &FrozenCall{
		ThreatID:     rec.ID,
		Initiator:    rec.Caller,
		FrozenAt:     time.Now().UTC(),
		FrozenAtUnit: now,
		FreezeExpiry: rec.FreezeExpiry,
	}
	if err := l.store.CreateFrozenCall(ctx, fc); err != nil {
		return nil, fmt.Errorf("freeze: create frozen call: %w", err)
	}

	l.logger.Info("call frozen",
		"threatId", rec.ID.Hex(),
		"target", rec.Target.Hex(),
		"caller", rec.Caller.Hex(),
		"level", rec.Level.String(),
		"type", string(rec.Type),
		"freezeExpiry", fc.FreezeExpiry,
	)
	return fc, nil
}

// GetThreat returns the threat record for the given ID.
func (l *Ledger) GetThreat(ctx context.Context, id common.Hash) (*ThreatRecord, error) {
	return l.store.GetThreat(ctx, id)
}

// EscalateToCritical raises a threat record to CRITICAL. Called when the
// analyst's verdict flags the threat; this is the only path to CRITICAL,
// heuristics top out at HIGH.
func (l *Ledger) EscalateToCritical(ctx context.Context, id common.Hash) error {
	unlock := l.locks.Lock(id.Hex())
	defer unlock()

	rec, err := l.store.GetThreat(ctx, id)
	if err != nil {
		return err
	}
	if rec.Level >= detector.LevelCritical {
		return nil
	}
	rec.Level = detector.LevelCritical
	if err := l.store.UpdateThreat(ctx, rec); err != nil {
		return err
	}
	l.logger.Warn("threat escalated to critical", "threatId", id.Hex(), "target", rec.Target.Hex())
	return nil
}

// GetFrozenCall returns the frozen call for the given threat ID.
func (l *Ledger) GetFrozenCall(ctx context.Context, id common.Hash) (*FrozenCall, error) {
	return l.store.GetFrozenCall(ctx, id)
}

// ListActiveFrozen returns unresolved frozen calls, oldest first.
func (l *Ledger) ListActiveFrozen(ctx context.Context, limit int) ([]*FrozenCall, error) {
	return l.store.ListActiveFrozen(ctx, limit)
}

// ListThreats returns recent threat records, newest first.
func (l *Ledger) ListThreats(ctx context.Context, limit int) ([]*ThreatRecord, error) {
	return l.store.ListThreats(ctx, limit)
}

// OwnerOverride applies a privileged resolution.
func (l *Ledger) OwnerOverride(ctx context.Context, id common.Hash, action Action) (*Resolution, error) {
	res, err := l.resolve(ctx, id, common.Address{}, action, true)
	if err == nil {
		fzResolutions.WithLabelValues(string(action), "owner").Inc()
	}
	return res, err
}

// SelfResolve applies a resolution on behalf of the frozen call's original
// initiator. Fails ErrNotInitiator for anyone else, and ErrCriticalThreat
// once the threat has been escalated to CRITICAL.
func (l *Ledger) SelfResolve(ctx context.Context, id common.Hash, caller common.Address, action Action) (*Resolution, error) {
	res, err := l.resolve(ctx, id, caller, action, false)
	if err == nil {
		fzResolutions.WithLabelValues(string(action), "self").Inc()
	}
	return res, err
}

func (l *Ledger) resolve(ctx context.Context, id common.Hash, caller common.Address, action Action, privileged bool) (*Resolution, error) {
	ctx, span := traces.StartSpan(ctx, "freeze.Resolve",
		traces.ThreatID(id.Hex()),
		traces.Caller(caller.Hex()),
	)
	defer span.End()

	unlock := l.locks.Lock(id.Hex())
	defer unlock()

	fc, err := l.store.GetFrozenCall(ctx, id)
	if err != nil {
		return nil, err
	}
	if fc.IsTerminal() {
		return nil, ErrAlreadyResolved
	}
	// Resolvable through the expiry unit itself; one unit past is too late.
	if l.clock.Unit() > fc.FreezeExpiry {
		return nil, ErrFreezeExpired
	}
	if !privileged && caller != fc.Initiator {
		return nil, ErrNotInitiator
	}

	rec, err := l.store.GetThreat(ctx, id)
	if err != nil {
		return nil, err
	}
	// CRITICAL is set only by the analyst's verdict. Once set, the initiator
	// loses self-resolution; the owner has to decide.
	if !privileged && rec.Level >= detector.LevelCritical {
		return nil, ErrCriticalThreat
	}

	switch action {
	case ActionExecute:
		return l.applyExecute(ctx, rec, fc)
	case ActionRevert:
		return l.applyRevert(ctx, rec, fc)
	case ActionSimulate:
		if l.analysis != nil {
			if err := l.analysis.RequestAnalysis(ctx, rec.ID, rec.Target, rec.Caller, rec.Payload); err != nil {
				l.logger.Warn("re-analysis request failed", "threatId", id.Hex(), "error", err)
			}
		}
		// Deliberately not a state change: the caller retries after the
		// fresh verdict arrives.
		return nil, ErrSimulationRequested
	default:
		return nil, ErrInvalidAction
	}
}

func (l *Ledger) applyExecute(ctx context.Context, rec *ThreatRecord, fc *FrozenCall) (*Resolution, error) {
	if l.invoker == nil {
		return nil, fmt.Errorf("freeze: no target invoker configured")
	}

	result, err := l.invoker.Invoke(ctx, rec.Caller, rec.Target, rec.Payload, rec.Value)
	if err != nil {
		// The frozen call stays resolvable; the target rejected the replay.
		return nil, fmt.Errorf("freeze: execute %s: %w", rec.ID.Hex(), err)
	}

	rec.Mitigated = true
	rec.MitigationResult = result
	if err := l.store.UpdateThreat(ctx, rec); err != nil {
		return nil, err
	}
	fc.Executed = true
	if err := l.store.UpdateFrozenCall(ctx, fc); err != nil {
		return nil, err
	}

	if l.stats != nil {
		l.stats.RecordMitigation(nil)
	}
	l.logger.Info("frozen call executed", "threatId", rec.ID.Hex(), "target", rec.Target.Hex())

	return &Resolution{
		ThreatID: rec.ID,
		Action:   ActionExecute,
		Executed: true,
		Result:   result,
	}, nil
}

func (l *Ledger) applyRevert(ctx context.Context, rec *ThreatRecord, fc *FrozenCall) (*Resolution, error) {
	rec.Mitigated = true
	if err := l.store.UpdateThreat(ctx, rec); err != nil {
		return nil, err
	}
	fc.Cancelled = true
	if err := l.store.UpdateFrozenCall(ctx, fc); err != nil {
		return nil, err
	}

	loss := rec.ValueAtRisk()
	if l.stats != nil {
		l.stats.RecordMitigation(loss)
	}
	l.logger.Info("frozen call reverted",
		"threatId", rec.ID.Hex(),
		"target", rec.Target.Hex(),
		"lossPrevented", loss.String(),
	)

	return &Resolution{
		ThreatID:      rec.ID,
		Action:        ActionRevert,
		Cancelled:     true,
		LossPrevented: loss,
	}, nil
}
