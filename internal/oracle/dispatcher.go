package oracle

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

const dispatcherChanSize = 1024

// Notifier delivers an analysis request to the analyst channel (audit log,
// message bus, webhook). Delivery is best-effort; the persisted request is
// the source of truth and analysts can always poll ListPending.
type Notifier interface {
	NotifyAnalysisRequested(ctx context.Context, a *Analysis) error
}

// Dispatcher asynchronously fans analysis requests out to notifiers.
// Non-blocking by construction: the gateway's submit path must never wait
// on the oracle side.
type Dispatcher struct {
	notifiers []Notifier
	logger    *slog.Logger
	ch        chan *Analysis
	stop      chan struct{}
	running   atomic.Bool
	dropped   atomic.Int64
}

// NewDispatcher creates a dispatcher for the given notifiers.
func NewDispatcher(logger *slog.Logger, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		notifiers: notifiers,
		logger:    logger,
		ch:        make(chan *Analysis, dispatcherChanSize),
		stop:      make(chan struct{}),
	}
}

// Send enqueues a request notification. Non-blocking: drops and counts if
// the channel is full.
func (d *Dispatcher) Send(a *Analysis) {
	select {
	case d.ch <- a:
	default:
		d.dropped.Add(1)
		orDispatchDropped.Inc()
	}
}

// Dropped returns the number of notifications dropped due to a full channel.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Start begins draining the channel. Call in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.running.Store(true)
	defer d.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case <-d.stop:
			d.drain()
			return
		case a := <-d.ch:
			d.deliver(ctx, a)
		}
	}
}

// Stop signals the dispatcher to stop after draining queued notifications.
func (d *Dispatcher) Stop() {
	select {
	case d.stop <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) deliver(ctx context.Context, a *Analysis) {
	deliveryCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, n := range d.notifiers {
		if err := n.NotifyAnalysisRequested(deliveryCtx, a); err != nil {
			d.logger.Warn("analysis notification failed",
				"threatId", a.ThreatID.Hex(),
				"error", err,
			)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case a := <-d.ch:
			d.deliver(context.Background(), a)
		default:
			return
		}
	}
}
