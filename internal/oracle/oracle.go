// Package oracle manages the asynchronous analysis channel for frozen calls.
// The gateway emits an analysis request when a call is frozen; a trusted
// external analyst submits exactly one verdict per threat, out of band and
// with no latency bound. Nothing in the gateway ever blocks on the oracle:
// the freeze expiry window is the only time bound.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cordonlabs/cordon/internal/events"
	"github.com/cordonlabs/cordon/internal/freeze"
	"github.com/cordonlabs/cordon/internal/syncutil"
)

var (
	ErrRequestNotFound  = errors.New("analysis request not found")
	ErrAlreadyCompleted = errors.New("analysis already completed")
)

// Analysis is an analysis request and, once completed, its verdict.
// Immutable after completion.
type Analysis struct {
	ThreatID        common.Hash    `json:"threatId"`
	Target          common.Address `json:"target"`
	Caller          common.Address `json:"caller"`
	Payload         []byte         `json:"payload,omitempty"`
	RequestedAt     time.Time      `json:"requestedAt"`
	Completed       bool           `json:"completed"`
	AnalysisText    string         `json:"analysisText,omitempty"`
	SuggestedAction freeze.Action  `json:"suggestedAction,omitempty"`
	IsCritical      bool           `json:"isCritical,omitempty"`
	CompletedAt     *time.Time     `json:"completedAt,omitempty"`
}

// Store persists analysis requests and verdicts.
type Store interface {
	// CreateRequest stores a pending request. Idempotent: creating an
	// existing request leaves it untouched.
	CreateRequest(ctx context.Context, a *Analysis) error
	Get(ctx context.Context, id common.Hash) (*Analysis, error)
	Update(ctx context.Context, a *Analysis) error
	ListPending(ctx context.Context, limit int) ([]*Analysis, error)
}

// ThreatEscalator raises a threat record to critical when the analyst flags
// it. The freeze ledger implements this.
type ThreatEscalator interface {
	EscalateToCritical(ctx context.Context, id common.Hash) error
}

// Service coordinates the request/verdict lifecycle.
type Service struct {
	store      Store
	dispatcher *Dispatcher
	escalator  ThreatEscalator
	emitter    *events.Emitter
	logger     *slog.Logger
	locks      syncutil.ShardedMutex
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithDispatcher sets the async request notifier.
func WithDispatcher(d *Dispatcher) ServiceOption {
	return func(s *Service) { s.dispatcher = d }
}

// WithEscalator sets the critical-escalation hook.
func WithEscalator(e ThreatEscalator) ServiceOption {
	return func(s *Service) { s.escalator = e }
}

// WithEmitter sets the audit event emitter. Verdicts land in the audit trail
// alongside the freezes they resolve.
func WithEmitter(e *events.Emitter) ServiceOption {
	return func(s *Service) { s.emitter = e }
}

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates an oracle service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestAnalysis records a pending analysis request for a frozen threat and
// notifies the analyst channel. Idempotent: a repeat request for the same
// threat is a no-op and does not re-notify.
func (s *Service) RequestAnalysis(ctx context.Context, id common.Hash, target, caller common.Address, payload []byte) error {
	unlock := s.locks.Lock(id.Hex())
	defer unlock()

	if existing, err := s.store.Get(ctx, id); err == nil && existing != nil {
		return nil
	}

	a := &Analysis{
		ThreatID:    id,
		Target:      target,
		Caller:      caller,
		Payload:     append([]byte(nil), payload...),
		RequestedAt: time.Now().UTC(),
	}
	if err := s.store.CreateRequest(ctx, a); err != nil {
		return fmt.Errorf("oracle: create request: %w", err)
	}

	orRequests.Inc()
	if s.dispatcher != nil {
		s.dispatcher.Send(a)
	}
	s.logger.Info("analysis requested",
		"threatId", id.Hex(),
		"target", target.Hex(),
		"caller", caller.Hex(),
	)
	return nil
}

// SubmitAnalysis records the analyst's verdict. Exactly once per threat;
// a second submission fails ErrAlreadyCompleted and leaves the stored
// verdict unchanged.
func (s *Service) SubmitAnalysis(ctx context.Context, id common.Hash, text string, action freeze.Action, isCritical bool) (*Analysis, error) {
	if _, err := freeze.ParseAction(string(action)); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(id.Hex())
	defer unlock()

	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Completed {
		return nil, ErrAlreadyCompleted
	}

	now := time.Now().UTC()
	a.Completed = true
	a.AnalysisText = text
	a.SuggestedAction = action
	a.IsCritical = isCritical
	a.CompletedAt = &now

	if err := s.store.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("oracle: store verdict: %w", err)
	}
	orVerdicts.WithLabelValues(string(action)).Inc()
	s.emitter.EmitAnalysisCompleted(id, a.Target, string(action), isCritical)

	if isCritical && s.escalator != nil {
		if err := s.escalator.EscalateToCritical(ctx, id); err != nil {
			s.logger.Warn("critical escalation failed", "threatId", id.Hex(), "error", err)
		}
	}

	s.logger.Info("analysis submitted",
		"threatId", id.Hex(),
		"suggestedAction", string(action),
		"isCritical", isCritical,
	)
	return a, nil
}

// GetAnalysis returns the analysis state for a threat. A threat with no
// request yet yields an empty, uncompleted Analysis rather than an error so
// pollers can treat absence and pending uniformly.
func (s *Service) GetAnalysis(ctx context.Context, id common.Hash) (*Analysis, error) {
	a, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrRequestNotFound) {
		return &Analysis{ThreatID: id}, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListPending returns requests still awaiting a verdict, oldest first.
func (s *Service) ListPending(ctx context.Context, limit int) ([]*Analysis, error) {
	return s.store.ListPending(ctx, limit)
}
