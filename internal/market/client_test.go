package market

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	prices   map[string]float64
	macro    Macro
	quoteErr error
	macroErr error
}

func (p *stubProvider) Quote(ctx context.Context, symbol string) (float64, error) {
	if p.quoteErr != nil {
		return 0, p.quoteErr
	}
	return p.prices[symbol], nil
}

func (p *stubProvider) Macro(ctx context.Context) (Macro, error) {
	if p.macroErr != nil {
		return Macro{}, p.macroErr
	}
	return p.macro, nil
}

type nopPacer struct{}

func (nopPacer) Acquire(ctx context.Context, source string) error { return nil }
func (nopPacer) RecordSuccess(source string)                      {}
func (nopPacer) RecordFailure(source string)                      {}

func newTestClient(p Provider) *Client {
	return NewClient(ClientOptions{Provider: p, Pacer: nopPacer{}, LimiterKey: "quotes"})
}

func TestSnapshot_HealthyUpstream(t *testing.T) {
	provider := &stubProvider{
		prices: map[string]float64{"SPY": 512.4, "GLD": 231.9},
		macro:  Macro{VIX: 18.2, Yield10Y: 4.1, SP500ChgPct: -0.4},
	}
	c := newTestClient(provider)

	snap := c.Snapshot(context.Background(), []string{"SPY", "GLD"})

	assert.False(t, snap.Stale)
	assert.Equal(t, 512.4, snap.Prices["SPY"])
	assert.Equal(t, 18.2, snap.VIX)
	assert.Equal(t, 4.1, snap.BondYield10Y)
	assert.Equal(t, -0.4, snap.SP500ChangePct)
}

func TestSnapshot_QuoteFailureSyntheticFallback(t *testing.T) {
	provider := &stubProvider{
		prices: map[string]float64{"SPY": 500},
		macro:  Macro{VIX: 20},
	}
	c := newTestClient(provider)

	// Seed last-known.
	first := c.Snapshot(context.Background(), []string{"SPY"})
	require.False(t, first.Stale)

	provider.quoteErr = errors.New("upstream 503")
	snap := c.Snapshot(context.Background(), []string{"SPY"})

	assert.True(t, snap.Stale)
	price, ok := snap.Price("SPY")
	require.True(t, ok)
	assert.GreaterOrEqual(t, price, 500*0.98)
	assert.LessOrEqual(t, price, 500*1.02)
}

func TestSnapshot_NoLastKnownOmitsPrice(t *testing.T) {
	provider := &stubProvider{quoteErr: errors.New("down"), macroErr: errors.New("down")}
	c := newTestClient(provider)

	snap := c.Snapshot(context.Background(), []string{"SPY"})

	assert.True(t, snap.Stale)
	_, ok := snap.Price("SPY")
	assert.False(t, ok)
}

func TestSnapshot_MacroFailureReusesLastKnown(t *testing.T) {
	provider := &stubProvider{
		prices: map[string]float64{"SPY": 500},
		macro:  Macro{VIX: 33.3, Yield10Y: 4.4, SP500ChgPct: -2.1},
	}
	c := newTestClient(provider)

	first := c.Snapshot(context.Background(), []string{"SPY"})
	require.False(t, first.Stale)

	provider.macroErr = errors.New("timeout")
	snap := c.Snapshot(context.Background(), []string{"SPY"})

	assert.True(t, snap.Stale)
	assert.Equal(t, 33.3, snap.VIX)
	assert.Equal(t, 4.4, snap.BondYield10Y)
}

func TestSnapshot_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	provider := &stubProvider{quoteErr: errors.New("down"), macroErr: errors.New("down")}
	c := newTestClient(provider)

	for i := 0; i < 3; i++ {
		c.Snapshot(context.Background(), []string{"SPY"})
	}

	// Breaker is now open; calls fail fast without reaching the provider.
	provider.quoteErr = nil
	provider.macroErr = nil
	snap := c.Snapshot(context.Background(), []string{"SPY"})
	assert.True(t, snap.Stale)
}
