package detector

import (
	"fmt"
	"math/big"
)

// Heuristic is one entry in the fixed-priority classification list.
// Evaluate returns nil when the heuristic does not match; a non-nil result
// short-circuits the remaining list.
type Heuristic interface {
	Name() string
	Evaluate(view *policyView, g *CallGraph, a *Attempt) *Classification
}

// DefaultHeuristics returns the standard list in priority order.
func DefaultHeuristics() []Heuristic {
	return []Heuristic{
		reentrancyShape{},
		flashLoanShape{},
		burstActivity{},
		strayValue{},
		adminSurface{},
		accessSurface{},
		highFrequency{},
		elevatedPriorityFee{},
		withdrawalPattern{},
	}
}

// reentrancyShape flags contract callers invoking value-moving operations,
// and any call arriving at excessive depth.
type reentrancyShape struct{}

func (reentrancyShape) Name() string { return "reentrancy_shape" }

func (reentrancyShape) Evaluate(view *policyView, _ *CallGraph, a *Attempt) *Classification {
	if a.CallerIsContract {
		if sel, ok := a.Selector(); ok {
			if sig, hit := view.sensitive.lookup(sel); hit {
				return &Classification{
					Level:  LevelHigh,
					Type:   TypeReentrancy,
					Reason: fmt.Sprintf("contract caller invoking sensitive function %s", sig),
				}
			}
		}
	}
	if view.MaxCallDepth > 0 && a.CallDepth > view.MaxCallDepth {
		return &Classification{
			Level:  LevelHigh,
			Type:   TypeReentrancy,
			Reason: fmt.Sprintf("call depth %d exceeds limit %d", a.CallDepth, view.MaxCallDepth),
		}
	}
	return nil
}

// flashLoanShape flags under-funded intermediary contracts and large-value
// calls arriving with an abnormally low remaining execution budget.
type flashLoanShape struct{}

func (flashLoanShape) Name() string { return "flash_loan_shape" }

func (flashLoanShape) Evaluate(view *policyView, _ *CallGraph, a *Attempt) *Classification {
	if a.CallerIsContract && a.Caller != a.Origin &&
		a.CallerBalance != nil && view.MinBalance != nil &&
		a.CallerBalance.Cmp(view.MinBalance) < 0 {
		return &Classification{
			Level:  LevelHigh,
			Type:   TypeFlashLoan,
			Reason: "under-funded intermediary contract caller",
		}
	}
	if a.Value != nil && view.LargeValue != nil &&
		a.Value.Cmp(view.LargeValue) > 0 && a.GasRemaining < view.LowGasFloor {
		return &Classification{
			Level:  LevelHigh,
			Type:   TypeFlashLoan,
			Reason: "large value transfer with abnormally low execution budget",
		}
	}
	return nil
}

// burstActivity counts calls per caller per ordering unit. The increment
// happens on every attempt that reaches this point in the list, matched or
// not; highFrequency reads the same counter further down.
type burstActivity struct{}

func (burstActivity) Name() string { return "burst_activity" }

func (burstActivity) Evaluate(view *policyView, g *CallGraph, a *Attempt) *Classification {
	count := g.BumpCall(a.Caller, a.Unit)
	if view.SuspiciousCalls > 0 && count > view.SuspiciousCalls {
		return &Classification{
			Level:  LevelMedium,
			Type:   TypeStateManipulation,
			Reason: fmt.Sprintf("%d calls from same caller within one ordering unit", count),
		}
	}
	return nil
}

// strayValue flags attached value sent to functions not designated payable.
type strayValue struct{}

func (strayValue) Name() string { return "stray_value" }

func (strayValue) Evaluate(view *policyView, _ *CallGraph, a *Attempt) *Classification {
	if a.Value == nil || a.Value.Sign() <= 0 {
		return nil
	}
	sel, ok := a.Selector()
	if !ok {
		// Plain value transfer, no function call.
		return nil
	}
	if _, payable := view.payable.lookup(sel); payable {
		return nil
	}
	return &Classification{
		Level:  LevelMedium,
		Type:   TypeUnexpectedValue,
		Reason: "attached value on a non-payable function",
	}
}

// adminSurface flags calls into the administrative/upgrade selector set.
type adminSurface struct{}

func (adminSurface) Name() string { return "admin_surface" }

func (adminSurface) Evaluate(view *policyView, _ *CallGraph, a *Attempt) *Classification {
	sel, ok := a.Selector()
	if !ok {
		return nil
	}
	if sig, hit := view.admin.lookup(sel); hit {
		return &Classification{
			Level:  LevelLow,
			Type:   TypeUnsafeCall,
			Reason: fmt.Sprintf("administrative function %s", sig),
		}
	}
	return nil
}

// accessSurface flags calls into the ownership/mint/burn selector set.
type accessSurface struct{}

func (accessSurface) Name() string { return "access_surface" }

func (accessSurface) Evaluate(view *policyView, _ *CallGraph, a *Attempt) *Classification {
	sel, ok := a.Selector()
	if !ok {
		return nil
	}
	if sig, hit := view.access.lookup(sel); hit {
		return &Classification{
			Level:  LevelHigh,
			Type:   TypeAccessControl,
			Reason: fmt.Sprintf("access-control function %s", sig),
		}
	}
	return nil
}

// highFrequency re-reads the burstActivity counter with a lower threshold.
// It matches only in the band between the two thresholds; beyond the higher
// one burstActivity has already returned.
type highFrequency struct{}

func (highFrequency) Name() string { return "high_frequency" }

func (highFrequency) Evaluate(view *policyView, g *CallGraph, a *Attempt) *Classification {
	if view.HighFrequencyCalls <= 0 {
		return nil
	}
	if count := g.CallCount(a.Caller, a.Unit); count > view.HighFrequencyCalls {
		return &Classification{
			Level:  LevelLow,
			Type:   TypeUnknown,
			Reason: fmt.Sprintf("%d calls from same caller within one ordering unit", count),
		}
	}
	return nil
}

// elevatedPriorityFee flags priority-fee signals above the configured
// threshold, a weak front-running indicator.
type elevatedPriorityFee struct{}

func (elevatedPriorityFee) Name() string { return "elevated_priority_fee" }

func (elevatedPriorityFee) Evaluate(view *policyView, _ *CallGraph, a *Attempt) *Classification {
	if a.PriorityFee == nil || view.PriorityFee == nil {
		return nil
	}
	if a.PriorityFee.Cmp(view.PriorityFee) > 0 {
		return &Classification{
			Level:  LevelLow,
			Type:   TypeUnknown,
			Reason: "elevated priority fee",
		}
	}
	return nil
}

// withdrawalPattern is the ledger-specific analysis: deposits feed the
// target's running average, withdrawals are checked against a multiple of
// that average, an absolute ceiling, and a rapid-repetition window.
type withdrawalPattern struct{}

func (withdrawalPattern) Name() string { return "withdrawal_pattern" }

func (withdrawalPattern) Evaluate(view *policyView, g *CallGraph, a *Attempt) *Classification {
	sel, ok := a.Selector()
	if !ok {
		return nil
	}

	if _, isDeposit := view.deposit.lookup(sel); isDeposit {
		g.RecordDeposit(a.Target, a.Value)
		return nil
	}

	if _, isWithdraw := view.withdraw.lookup(sel); !isWithdraw {
		return nil
	}

	amount := a.Amount()

	if view.MaxWithdrawal != nil && view.MaxWithdrawal.Sign() > 0 &&
		amount.Cmp(view.MaxWithdrawal) > 0 {
		return &Classification{
			Level:  LevelHigh,
			Type:   TypeLargeWithdrawal,
			Reason: "withdrawal exceeds absolute ceiling",
		}
	}

	if avg := g.AverageDeposit(a.Target); avg != nil && avg.Sign() > 0 && view.WithdrawMultiplier > 0 {
		limit := new(big.Int).Mul(avg, big.NewInt(view.WithdrawMultiplier))
		if amount.Cmp(limit) > 0 {
			return &Classification{
				Level:  LevelHigh,
				Type:   TypeLargeWithdrawal,
				Reason: fmt.Sprintf("withdrawal exceeds %dx running average deposit", view.WithdrawMultiplier),
			}
		}
	}

	recent := g.RecordWithdrawal(a.Caller, a.Unit, view.PatternWindow)
	if view.RapidWithdrawals > 0 && recent > view.RapidWithdrawals {
		level := LevelMedium
		if recent > 2*view.RapidWithdrawals {
			level = LevelHigh
		}
		return &Classification{
			Level:  level,
			Type:   TypeRapidWithdrawal,
			Reason: fmt.Sprintf("%d withdrawals within the pattern window", recent),
		}
	}

	return nil
}
