package freeze

import (
	"context"
	"log/slog"
	"time"

	"github.com/cordonlabs/cordon/internal/ordering"
)

// Timer periodically sweeps unresolved frozen calls, logs the ones that have
// passed their expiry unit and keeps the freeze gauges current. Expiry is
// never written back: an expired freeze stays frozen forever by design, the
// sweep only makes it observable.
type Timer struct {
	ledger   *Ledger
	clock    ordering.Clock
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
}

// NewTimer creates a new freeze-expiry sweep timer.
func NewTimer(ledger *Ledger, clock ordering.Clock, logger *slog.Logger) *Timer {
	return &Timer{
		ledger:   ledger,
		clock:    clock,
		interval: 30 * time.Second,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Start begins the sweep loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) sweep(ctx context.Context) {
	active, err := t.ledger.ListActiveFrozen(ctx, 1000)
	if err != nil {
		t.logger.Warn("freeze sweep failed", "error", err)
		return
	}

	now := t.clock.Unit()
	expired := 0
	for _, fc := range active {
		if now > fc.FreezeExpiry {
			expired++
			t.logger.Warn("frozen call expired without resolution",
				"threatId", fc.ThreatID.Hex(),
				"initiator", fc.Initiator.Hex(),
				"frozenAtUnit", fc.FrozenAtUnit,
				"freezeExpiry", fc.FreezeExpiry,
				"unit", now,
			)
		}
	}

	fzActiveFrozen.Set(float64(len(active)))
	fzExpired.Set(float64(expired))
}
