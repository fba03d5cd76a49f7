package domain

import "time"

// MarketSnapshot captures the macro picture and per-symbol marks for one
// cycle. Stale snapshots carry synthetic prices and must not seed new
// positions; exits are still evaluated against them.
type MarketSnapshot struct {
	Timestamp      time.Time
	VIX            float64
	BondYield10Y   float64
	SP500ChangePct float64
	Prices         map[string]float64 // symbol -> price
	Stale          bool
}

// Price returns the snapshot price for symbol, and whether one is present.
func (s *MarketSnapshot) Price(symbol string) (float64, bool) {
	p, ok := s.Prices[symbol]
	return p, ok
}
