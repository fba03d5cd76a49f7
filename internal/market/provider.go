// Package market produces the per-cycle market snapshot: watchlist quotes
// plus the macro trio (VIX, 10y yield, S&P 500 day change).
package market

import "context"

// Macro is the macro indicator set consumed by signal scoring.
type Macro struct {
	VIX         float64
	Yield10Y    float64
	SP500ChgPct float64
}

// Provider is an upstream quotes/macro feed.
type Provider interface {
	Quote(ctx context.Context, symbol string) (float64, error)
	Macro(ctx context.Context) (Macro, error)
}
