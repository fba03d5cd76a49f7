// Package exit decides when open positions should close. Strategies are
// enumerated variants folded in descending priority; the first match wins
// and a position produces at most one exit per cycle.
package exit

import (
	"sort"
	"time"

	"hightrade/internal/config"
	"hightrade/internal/domain"
)

// Decision is a proposed exit. The ledger applies it; the evaluator never
// mutates state.
type Decision struct {
	PositionID string
	Symbol     string
	Reason     string
	Priority   int
	Price      float64
	PnLPct     float64
}

type strategy struct {
	name     string
	priority int
	reason   string
	triggers func(e *Evaluator, p *domain.Position, defcon int, now time.Time) bool
}

// Evaluator is pure over (position, defcon, now); thresholds are fixed at
// construction.
type Evaluator struct {
	cfg        config.ExitConfig
	strategies []strategy
}

// NewEvaluator builds the strategy table, highest priority first.
func NewEvaluator(cfg config.ExitConfig) *Evaluator {
	e := &Evaluator{cfg: cfg}
	e.strategies = []strategy{
		{
			name:     "stop_loss",
			priority: 5,
			reason:   domain.ExitReasonStopLoss,
			triggers: func(e *Evaluator, p *domain.Position, _ int, _ time.Time) bool {
				return p.PnLPct() <= e.cfg.StopLoss
			},
		},
		{
			name:     "profit_target",
			priority: 4,
			reason:   domain.ExitReasonProfitTarget,
			triggers: func(e *Evaluator, p *domain.Position, _ int, _ time.Time) bool {
				return p.PnLPct() >= e.cfg.ProfitTarget
			},
		},
		{
			name:     "trailing_stop",
			priority: 3,
			reason:   domain.ExitReasonTrailingStop,
			triggers: func(e *Evaluator, p *domain.Position, _ int, _ time.Time) bool {
				if p.PeakPrice <= 0 || p.PnLPct() <= 0 {
					return false
				}
				return (p.CurrentPrice-p.PeakPrice)/p.PeakPrice <= -e.cfg.TrailingStop
			},
		},
		{
			name:     "defcon_revert",
			priority: 2,
			reason:   domain.ExitReasonDefconRevert,
			triggers: func(_ *Evaluator, p *domain.Position, defcon int, _ time.Time) bool {
				return p.EntryDefcon <= domain.DefconSevere && defcon >= domain.DefconElevated
			},
		},
		{
			name:     "time_limit",
			priority: 1,
			reason:   domain.ExitReasonTimeLimit,
			triggers: func(e *Evaluator, p *domain.Position, _ int, now time.Time) bool {
				maxHold := time.Duration(e.cfg.MaxHoldHours * float64(time.Hour))
				held := p.HoldTime(now)
				if held >= maxHold {
					return true
				}
				early := time.Duration(0.8 * float64(maxHold))
				return held >= early && p.PnLPct() < 0
			},
		},
	}
	sort.Slice(e.strategies, func(i, j int) bool {
		return e.strategies[i].priority > e.strategies[j].priority
	})
	return e
}

// minHold is the grace period after entry during which no strategy fires.
func (e *Evaluator) minHold() time.Duration {
	return time.Duration(e.cfg.MinHoldMinutes * float64(time.Minute))
}

// Evaluate returns the highest-priority exit for the position, if any.
// Positions inside the min-hold window never exit.
func (e *Evaluator) Evaluate(p *domain.Position, defcon int, now time.Time) (Decision, bool) {
	if p == nil || p.Status != domain.StatusOpen {
		return Decision{}, false
	}
	if p.HoldTime(now) < e.minHold() {
		return Decision{}, false
	}

	for _, s := range e.strategies {
		if s.triggers(e, p, defcon, now) {
			return Decision{
				PositionID: p.ID,
				Symbol:     p.Symbol,
				Reason:     s.reason,
				Priority:   s.priority,
				Price:      p.CurrentPrice,
				PnLPct:     p.PnLPct(),
			}, true
		}
	}
	return Decision{}, false
}

// EvaluateAll folds the evaluator over the open set, returning at most one
// decision per position.
func (e *Evaluator) EvaluateAll(positions []*domain.Position, defcon int, now time.Time) []Decision {
	var out []Decision
	for _, p := range positions {
		if d, ok := e.Evaluate(p, defcon, now); ok {
			out = append(out, d)
		}
	}
	return out
}
