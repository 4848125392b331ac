// Package registry tracks which targets are under protection and at what
// level. Targets are never deleted, only deactivated, so the audit history
// of a target survives deregistration.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cordonlabs/cordon/internal/events"
)

var (
	ErrTargetNotFound = errors.New("target not registered")
	ErrNotProtected   = errors.New("target not protected")
	ErrInvalidLevel   = errors.New("protection level must be between 1 and 5")
	ErrInvalidTarget  = errors.New("invalid target address")
)

// MinLevel and MaxLevel bound the protection scale. Level 1 is the most
// permissive (LOW findings are suppressed), 4 and up escalate MEDIUM
// findings to HIGH.
const (
	MinLevel = 1
	MaxLevel = 5
)

// ProtectedTarget is a registered target and its protection state.
type ProtectedTarget struct {
	Address         common.Address `json:"address"`
	Protected       bool           `json:"isProtected"`
	ProtectionLevel int            `json:"protectionLevel"`
	LastAuditTime   time.Time      `json:"lastAuditTime"`
	RegisteredAt    time.Time      `json:"registeredAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Store persists protected targets.
type Store interface {
	// Upsert creates or replaces a target row.
	Upsert(ctx context.Context, t *ProtectedTarget) error
	Get(ctx context.Context, addr common.Address) (*ProtectedTarget, error)
	List(ctx context.Context, activeOnly bool, limit int) ([]*ProtectedTarget, error)
}

// Service owns target registration.
type Service struct {
	store   Store
	emitter *events.Emitter
	logger  *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

// WithEmitter sets the audit event emitter. Registration changes are part of
// the audit trail.
func WithEmitter(e *events.Emitter) Option {
	return func(s *Service) { s.emitter = e }
}

// NewService creates a registry service.
func NewService(store Store, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: store, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register puts a target under protection at the given level. Re-registering
// an existing target updates its level and reactivates it; registration time
// is preserved.
func (s *Service) Register(ctx context.Context, addr common.Address, level int) (*ProtectedTarget, error) {
	if addr == (common.Address{}) {
		return nil, ErrInvalidTarget
	}
	if level < MinLevel || level > MaxLevel {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLevel, level)
	}

	now := time.Now().UTC()
	target := &ProtectedTarget{
		Address:         addr,
		Protected:       true,
		ProtectionLevel: level,
		LastAuditTime:   now,
		RegisteredAt:    now,
		UpdatedAt:       now,
	}
	if existing, err := s.store.Get(ctx, addr); err == nil {
		target.RegisteredAt = existing.RegisteredAt
	}

	if err := s.store.Upsert(ctx, target); err != nil {
		return nil, fmt.Errorf("registry: register %s: %w", addr.Hex(), err)
	}

	s.logger.Info("target registered", "target", addr.Hex(), "level", level)
	s.emitter.EmitTargetRegistered(addr, level)
	return target, nil
}

// Deregister deactivates protection for a target. The row stays for audit.
// Fails ErrNotProtected when the target is unknown or already deactivated.
func (s *Service) Deregister(ctx context.Context, addr common.Address) error {
	target, err := s.store.Get(ctx, addr)
	if errors.Is(err, ErrTargetNotFound) {
		return ErrNotProtected
	}
	if err != nil {
		return err
	}
	if !target.Protected {
		return ErrNotProtected
	}

	target.Protected = false
	target.UpdatedAt = time.Now().UTC()
	if err := s.store.Upsert(ctx, target); err != nil {
		return fmt.Errorf("registry: deregister %s: %w", addr.Hex(), err)
	}

	s.logger.Info("target deregistered", "target", addr.Hex())
	s.emitter.EmitTargetDeregistered(addr)
	return nil
}

// Get returns a target's registration, active or not.
func (s *Service) Get(ctx context.Context, addr common.Address) (*ProtectedTarget, error) {
	return s.store.Get(ctx, addr)
}

// ProtectionLevel returns the active protection level for a target, or
// ErrNotProtected when it is unregistered or deactivated.
func (s *Service) ProtectionLevel(ctx context.Context, addr common.Address) (int, error) {
	target, err := s.store.Get(ctx, addr)
	if errors.Is(err, ErrTargetNotFound) {
		return 0, ErrNotProtected
	}
	if err != nil {
		return 0, err
	}
	if !target.Protected {
		return 0, ErrNotProtected
	}
	return target.ProtectionLevel, nil
}

// IsProtected reports whether a target is actively protected.
func (s *Service) IsProtected(ctx context.Context, addr common.Address) (bool, error) {
	_, err := s.ProtectionLevel(ctx, addr)
	if errors.Is(err, ErrNotProtected) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// List returns registered targets.
func (s *Service) List(ctx context.Context, activeOnly bool, limit int) ([]*ProtectedTarget, error) {
	return s.store.List(ctx, activeOnly, limit)
}

// TouchAudit updates a target's last audit time.
func (s *Service) TouchAudit(ctx context.Context, addr common.Address) error {
	target, err := s.store.Get(ctx, addr)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	target.LastAuditTime = now
	target.UpdatedAt = now
	return s.store.Upsert(ctx, target)
}
