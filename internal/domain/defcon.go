package domain

import "time"

// Defcon levels. 5 is peacetime, 1 is maximum crisis. Not a continuum:
// transitions are discrete and immediate.
const (
	DefconCrisis    = 1
	DefconSevere    = 2
	DefconElevated  = 3
	DefconGuarded   = 4
	DefconPeacetime = 5
)

// Reason codes name the sub-signal with the largest contribution at the
// moment of a level change.
const (
	ReasonNewsScore     = "news_score"
	ReasonVIX           = "vix_component"
	ReasonYield         = "yield_component"
	ReasonSP500Drawdown = "sp500_drawdown"
	ReasonBreakingBias  = "breaking_bias"
	ReasonSentiment     = "sentiment"
)

// DefconState is one row of the append-only defcon history. A row is
// persisted only when the level changes; the latest row is current state.
type DefconState struct {
	Level       int     // 1..5
	SignalScore float64 // [0,100]
	EnteredAt   time.Time
	ReasonCode  string
}
