package domain

import "time"

// PositionStatus is the lifecycle state of a paper position.
type PositionStatus string

const (
	StatusOpen        PositionStatus = "open"
	StatusPendingExit PositionStatus = "pending_exit"
	StatusClosed      PositionStatus = "closed"
)

// Exit reason codes, matching the strategy that produced the decision.
const (
	ExitReasonStopLoss     = "stop_loss"
	ExitReasonProfitTarget = "profit_target"
	ExitReasonTrailingStop = "trailing_stop"
	ExitReasonDefconRevert = "defcon_revert"
	ExitReasonTimeLimit    = "time_limit"
)

// Position is a paper-trade position owned by the ledger.
//
// Invariants: Qty > 0; PeakPrice >= max(EntryPrice, every observed
// CurrentPrice while open) and is monotone non-decreasing while open;
// a closed position is frozen.
type Position struct {
	ID           string
	Symbol       string
	Qty          float64
	EntryPrice   float64
	EntryTime    time.Time
	EntryDefcon  int
	PeakPrice    float64
	CurrentPrice float64
	Status       PositionStatus

	// Set on close, nil while open.
	ExitPrice  *float64
	ExitTime   *time.Time
	ExitReason *string
}

// PnLPct returns the unrealized return against the current mark,
// e.g. 0.05 for +5%.
func (p *Position) PnLPct() float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return (p.CurrentPrice - p.EntryPrice) / p.EntryPrice
}

// HoldTime returns how long the position has been held as of now.
func (p *Position) HoldTime(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}
