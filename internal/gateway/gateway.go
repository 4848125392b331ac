// Package gateway is the enforcement façade: every call to a protected
// target flows through Submit, which classifies the attempt, freezes
// dangerous calls and forwards the rest. The invariant is exactly-once
// disposition: a submitted attempt is either forwarded once to the target,
// or it produces one threat-record/frozen-call pair and fails Frozen —
// never both.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cordonlabs/cordon/internal/detector"
	"github.com/cordonlabs/cordon/internal/events"
	"github.com/cordonlabs/cordon/internal/freeze"
	"github.com/cordonlabs/cordon/internal/ordering"
	"github.com/cordonlabs/cordon/internal/registry"
	"github.com/cordonlabs/cordon/internal/syncutil"
	"github.com/cordonlabs/cordon/internal/traces"
)

var ErrNoForwarder = errors.New("no target forwarder configured")

// Forwarder delivers an allowed call to its target and returns the target's
// result. Target-level failures propagate to the submitter unchanged; the
// gateway never masks them.
type Forwarder interface {
	Invoke(ctx context.Context, caller, target common.Address, payload []byte, value *big.Int) ([]byte, error)
}

// AnalysisRequester notifies the analysis channel about a frozen call.
type AnalysisRequester interface {
	RequestAnalysis(ctx context.Context, threatID common.Hash, target, caller common.Address, payload []byte) error
}

// FrozenError is returned when a high-risk call is blocked. It carries the
// threat ID so the submitter can track resolution, and the expiry unit so
// they know how long the resolution window stays open.
type FrozenError struct {
	ThreatID     common.Hash
	Level        detector.Level
	Type         detector.VulnType
	FreezeExpiry uint64
}

func (e *FrozenError) Error() string {
	return fmt.Sprintf("call frozen: threat %s (%s/%s), resolvable until unit %d",
		e.ThreatID.Hex(), e.Level, e.Type, e.FreezeExpiry)
}

// SubmitResult is the outcome of an allowed submission.
type SubmitResult struct {
	Forwarded bool                    `json:"forwarded"`
	Result    []byte                  `json:"result,omitempty"`
	ThreatID  *common.Hash            `json:"threatId,omitempty"` // set when soft-monitored
	Level     detector.Level          `json:"level"`
	Type      detector.VulnType       `json:"vulnerabilityType,omitempty"`
}

// Service wires the registry, detector, freeze ledger, oracle and audit
// channel into the submission path.
type Service struct {
	registry  *registry.Service
	detector  *detector.Detector
	ledger    *freeze.Ledger
	forwarder Forwarder
	analysis  AnalysisRequester
	emitter   *events.Emitter
	stats     *Stats
	clock     ordering.Clock
	logger    *slog.Logger

	// Serializes classify + freeze per target so two concurrent attempts
	// cannot both observe pre-increment counters and both squeak under a
	// threshold only one should pass.
	locks syncutil.ShardedMutex
}

// Option configures the Service.
type Option func(*Service)

// WithForwarder sets the target forwarder.
func WithForwarder(f Forwarder) Option {
	return func(s *Service) { s.forwarder = f }
}

// WithAnalysisRequester sets the oracle request hook.
func WithAnalysisRequester(ar AnalysisRequester) Option {
	return func(s *Service) { s.analysis = ar }
}

// WithEmitter sets the audit event emitter.
func WithEmitter(e *events.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithStats shares an externally created statistics instance. The freeze
// ledger reports mitigations into the same counters, so wiring creates the
// Stats first and hands it to both sides.
func WithStats(st *Stats) Option {
	return func(s *Service) {
		if st != nil {
			s.stats = st
		}
	}
}

// New creates the gateway service.
func New(reg *registry.Service, det *detector.Detector, ledger *freeze.Ledger, clock ordering.Clock, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		detector: det,
		ledger:   ledger,
		clock:    clock,
		stats:    NewStats(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns the live statistics counters.
func (s *Service) Stats() *Stats {
	return s.stats
}

// Ledger exposes the freeze ledger for the resolution handlers.
func (s *Service) Ledger() *freeze.Ledger {
	return s.ledger
}

// Registry exposes the target registry.
func (s *Service) Registry() *registry.Service {
	return s.registry
}

// Detector exposes the detector for the config handlers.
func (s *Service) Detector() *detector.Detector {
	return s.detector
}

// Submit runs the full enforcement path for one call attempt.
func (s *Service) Submit(ctx context.Context, a *detector.Attempt) (*SubmitResult, error) {
	start := time.Now()
	a.Unit = s.clock.Unit()
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}

	ctx, span := traces.StartSpan(ctx, "gateway.Submit",
		traces.Target(a.Target.Hex()),
		traces.Caller(a.Caller.Hex()),
		traces.Unit(a.Unit),
	)
	defer span.End()

	unlock := s.locks.Lock(a.Target.Hex())
	defer unlock()

	level, err := s.registry.ProtectionLevel(ctx, a.Target)
	if err != nil {
		if errors.Is(err, registry.ErrNotProtected) {
			s.emitter.EmitPolicyRejected(a.Target, a.Caller, "target not protected")
			gwSubmissions.WithLabelValues("rejected").Inc()
			return nil, registry.ErrNotProtected
		}
		return nil, fmt.Errorf("gateway: protection lookup: %w", err)
	}

	cls := s.detector.Classify(a, level)
	span.SetAttributes(traces.Level(cls.Level.String()))

	switch {
	case cls.Level == detector.LevelNone:
		// Clean pass-through, no record.
		result, err := s.forward(ctx, a)
		if err != nil {
			gwSubmissions.WithLabelValues("forward_failed").Inc()
			return nil, err
		}
		s.stats.RecordForwarded()
		gwSubmissions.WithLabelValues("forwarded").Inc()
		gwSubmitLatency.Observe(time.Since(start).Seconds())
		return &SubmitResult{Forwarded: true, Result: result, Level: cls.Level}, nil

	case cls.Level < detector.LevelHigh:
		// Soft monitoring: audit, then still forward.
		rec := s.buildRecord(a, cls)
		span.SetAttributes(traces.ThreatID(rec.ID.Hex()))
		if err := s.ledger.Record(ctx, rec); err != nil {
			return nil, fmt.Errorf("gateway: record threat: %w", err)
		}
		s.stats.RecordThreat()
		gwThreats.WithLabelValues(cls.Level.String(), string(cls.Type)).Inc()
		s.emitter.EmitThreatDetected(rec.ID, rec.Target, rec.Caller, cls.Level.String(), string(cls.Type), cls.Reason)

		result, err := s.forward(ctx, a)
		if err != nil {
			gwSubmissions.WithLabelValues("forward_failed").Inc()
			return nil, err
		}
		s.stats.RecordForwarded()
		gwSubmissions.WithLabelValues("monitored").Inc()
		gwSubmitLatency.Observe(time.Since(start).Seconds())
		id := rec.ID
		return &SubmitResult{
			Forwarded: true,
			Result:    result,
			ThreatID:  &id,
			Level:     cls.Level,
			Type:      cls.Type,
		}, nil

	default:
		// HIGH and above: freeze, never forward.
		rec := s.buildRecord(a, cls)
		span.SetAttributes(traces.ThreatID(rec.ID.Hex()))
		fc, err := s.ledger.Freeze(ctx, rec)
		if err != nil {
			return nil, fmt.Errorf("gateway: freeze: %w", err)
		}
		s.stats.RecordThreat()
		gwThreats.WithLabelValues(cls.Level.String(), string(cls.Type)).Inc()
		gwSubmissions.WithLabelValues("frozen").Inc()

		s.emitter.EmitThreatDetected(rec.ID, rec.Target, rec.Caller, cls.Level.String(), string(cls.Type), cls.Reason)
		s.emitter.EmitCallFrozen(rec.ID, rec.Target, rec.Caller, fc.FreezeExpiry, cls.Level.String())
		s.emitter.EmitAnalysisRequested(rec.ID, rec.Target)

		if s.analysis != nil {
			if err := s.analysis.RequestAnalysis(ctx, rec.ID, rec.Target, rec.Caller, rec.Payload); err != nil {
				s.logger.Warn("analysis request failed", "threatId", rec.ID.Hex(), "error", err)
			}
		}

		gwSubmitLatency.Observe(time.Since(start).Seconds())
		return nil, &FrozenError{
			ThreatID:     rec.ID,
			Level:        cls.Level,
			Type:         cls.Type,
			FreezeExpiry: fc.FreezeExpiry,
		}
	}
}

// Resolve applies a resolution and emits the audit trail for it. Privileged
// callers pass owner=true; everyone else must be the frozen call's initiator.
func (s *Service) Resolve(ctx context.Context, id common.Hash, caller common.Address, action freeze.Action, owner bool) (*freeze.Resolution, error) {
	var (
		res *freeze.Resolution
		err error
	)
	if owner {
		res, err = s.ledger.OwnerOverride(ctx, id, action)
	} else {
		res, err = s.ledger.SelfResolve(ctx, id, caller, action)
	}
	if err != nil {
		// SimulationRequested is control flow, not a fault; everything else
		// surfaces verbatim.
		if !errors.Is(err, freeze.ErrSimulationRequested) {
			s.logger.Info("resolution failed", "threatId", id.Hex(), "action", string(action), "error", err)
		}
		return nil, err
	}

	rec, recErr := s.ledger.GetThreat(ctx, id)
	if recErr == nil {
		s.emitter.EmitMitigationApplied(id, rec.Target, true, string(action), res.Result)
	}
	return res, nil
}

func (s *Service) forward(ctx context.Context, a *detector.Attempt) ([]byte, error) {
	if s.forwarder == nil {
		return nil, ErrNoForwarder
	}
	return s.forwarder.Invoke(ctx, a.Caller, a.Target, a.Payload, a.Value)
}

func (s *Service) buildRecord(a *detector.Attempt, cls detector.Classification) *freeze.ThreatRecord {
	value := a.Value
	if value == nil {
		value = new(big.Int)
	}
	return &freeze.ThreatRecord{
		ID:        a.ThreatID(),
		Caller:    a.Caller,
		Target:    a.Target,
		Payload:   append([]byte(nil), a.Payload...),
		Value:     new(big.Int).Set(value),
		Unit:      a.Unit,
		At:        a.At,
		Level:     cls.Level,
		Type:      cls.Type,
		Heuristic: cls.Heuristic,
		Reason:    cls.Reason,
	}
}
