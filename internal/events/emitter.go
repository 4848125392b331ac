package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cordonlabs/cordon/internal/idgen"
)

var (
	evEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cordon",
		Subsystem: "events",
		Name:      "emit_total",
		Help:      "Total audit events emitted by type.",
	}, []string{"event_type"})

	evEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cordon",
		Subsystem: "events",
		Name:      "emit_errors_total",
		Help:      "Total audit event sink failures by type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(evEmitTotal, evEmitErrors)
}

// Emitter fans audit events out to the configured sinks. All methods are
// fire-and-forget: errors are counted and logged but never returned, and a
// slow sink never blocks the caller.
type Emitter struct {
	sinks  []Sink
	logger *slog.Logger
}

// NewEmitter creates an emitter over the given sinks. A nil or empty emitter
// is safe to call; events are simply discarded.
func NewEmitter(logger *slog.Logger, sinks ...Sink) *Emitter {
	return &Emitter{sinks: sinks, logger: logger}
}

func (e *Emitter) emit(eventType EventType, data map[string]any) {
	if e == nil || len(e.sinks) == 0 {
		return
	}
	evEmitTotal.WithLabelValues(string(eventType)).Inc()

	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, sink := range e.sinks {
			if err := sink.Write(ctx, event); err != nil {
				evEmitErrors.WithLabelValues(string(eventType)).Inc()
				e.logger.Warn("audit event sink failed", "event", eventType, "error", err)
			}
		}
	}()
}

// EmitThreatDetected emits a threat.detected event.
func (e *Emitter) EmitThreatDetected(threatID common.Hash, target, caller common.Address, level, vulnType, reason string) {
	e.emit(EventThreatDetected, map[string]any{
		"threatId": threatID.Hex(),
		"target":   target.Hex(),
		"caller":   caller.Hex(),
		"level":    level,
		"vulnType": vulnType,
		"reason":   reason,
	})
}

// EmitCallFrozen emits a call.frozen event.
func (e *Emitter) EmitCallFrozen(threatID common.Hash, target, caller common.Address, freezeExpiry uint64, level string) {
	e.emit(EventCallFrozen, map[string]any{
		"threatId":     threatID.Hex(),
		"target":       target.Hex(),
		"caller":       caller.Hex(),
		"freezeExpiry": freezeExpiry,
		"level":        level,
	})
}

// EmitMitigationApplied emits a mitigation.applied event.
func (e *Emitter) EmitMitigationApplied(threatID common.Hash, target common.Address, success bool, action string, result []byte) {
	data := map[string]any{
		"threatId": threatID.Hex(),
		"target":   target.Hex(),
		"success":  success,
		"action":   action,
	}
	if len(result) > 0 {
		data["result"] = common.Bytes2Hex(result)
	}
	e.emit(EventMitigationApplied, data)
}

// EmitTargetRegistered emits a target.registered event.
func (e *Emitter) EmitTargetRegistered(target common.Address, level int) {
	e.emit(EventTargetRegistered, map[string]any{
		"target": target.Hex(),
		"level":  level,
	})
}

// EmitTargetDeregistered emits a target.deregistered event.
func (e *Emitter) EmitTargetDeregistered(target common.Address) {
	e.emit(EventTargetDeregistered, map[string]any{
		"target": target.Hex(),
	})
}

// EmitAnalysisRequested emits an analysis.requested event.
func (e *Emitter) EmitAnalysisRequested(threatID common.Hash, target common.Address) {
	e.emit(EventAnalysisRequested, map[string]any{
		"threatId": threatID.Hex(),
		"target":   target.Hex(),
	})
}

// EmitAnalysisCompleted emits an analysis.completed event carrying the
// analyst's verdict.
func (e *Emitter) EmitAnalysisCompleted(threatID common.Hash, target common.Address, action string, isCritical bool) {
	e.emit(EventAnalysisCompleted, map[string]any{
		"threatId":   threatID.Hex(),
		"target":     target.Hex(),
		"action":     action,
		"isCritical": isCritical,
	})
}

// EmitPolicyRejected emits a policy.rejected event. Policy rejections are
// audited before they are surfaced to the caller.
func (e *Emitter) EmitPolicyRejected(target, caller common.Address, reason string) {
	e.emit(EventPolicyRejected, map[string]any{
		"target": target.Hex(),
		"caller": caller.Hex(),
		"reason": reason,
	})
}
