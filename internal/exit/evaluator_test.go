package exit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hightrade/internal/config"
	"hightrade/internal/domain"
)

var entryTime = time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)

func openPosition(entry, current, peak float64, entryDefcon int) *domain.Position {
	return &domain.Position{
		ID:           "p1",
		Symbol:       "SPY",
		Qty:          10,
		EntryPrice:   entry,
		EntryTime:    entryTime,
		EntryDefcon:  entryDefcon,
		PeakPrice:    peak,
		CurrentPrice: current,
		Status:       domain.StatusOpen,
	}
}

func newEvaluator() *Evaluator {
	return NewEvaluator(config.Default().Exit)
}

// afterMinHold is an evaluation time safely past the 60-minute grace.
var afterMinHold = entryTime.Add(2 * time.Hour)

func TestStopLossOutranksProfitTargetAndTrailing(t *testing.T) {
	// Entry $100, peak ran to $103, mark now $95: stop loss (-5%) and
	// trailing (-7.8% off peak) both satisfied; stop loss wins.
	e := newEvaluator()
	p := openPosition(100, 95, 103, 3)

	d, ok := e.Evaluate(p, 3, afterMinHold)
	require.True(t, ok)
	assert.Equal(t, domain.ExitReasonStopLoss, d.Reason)
	assert.Equal(t, 5, d.Priority)
	assert.InDelta(t, -0.05, d.PnLPct, 1e-9)
}

func TestTrailingStopProtectsGain(t *testing.T) {
	// Marks 102, 108, 110, 107.7: peak 110, -2.09% off peak, profitable.
	e := newEvaluator()
	p := openPosition(100, 107.7, 110, 2)

	d, ok := e.Evaluate(p, 2, afterMinHold)
	require.True(t, ok)
	assert.Equal(t, domain.ExitReasonTrailingStop, d.Reason)
	assert.InDelta(t, 0.077, d.PnLPct, 1e-9)
}

func TestDefconRevertExit(t *testing.T) {
	// Entered at DEFCON 2, world relaxed to 3, up 1%: reversion beats
	// time-limit; trailing and profit-target not satisfied.
	e := newEvaluator()
	p := openPosition(100, 101, 101, 2)

	d, ok := e.Evaluate(p, 3, afterMinHold)
	require.True(t, ok)
	assert.Equal(t, domain.ExitReasonDefconRevert, d.Reason)
}

func TestProfitTarget(t *testing.T) {
	e := newEvaluator()
	p := openPosition(100, 105.5, 105.5, 3)

	d, ok := e.Evaluate(p, 3, afterMinHold)
	require.True(t, ok)
	assert.Equal(t, domain.ExitReasonProfitTarget, d.Reason)
}

func TestTimeLimit_MaxHold(t *testing.T) {
	e := newEvaluator()
	p := openPosition(100, 100.5, 100.5, 3)

	d, ok := e.Evaluate(p, 3, entryTime.Add(72*time.Hour))
	require.True(t, ok)
	assert.Equal(t, domain.ExitReasonTimeLimit, d.Reason)
}

func TestTimeLimit_EarlyWhenLosing(t *testing.T) {
	e := newEvaluator()
	losing := openPosition(100, 99, 100, 3)
	flat := openPosition(100, 100, 100, 3)

	at := entryTime.Add(time.Duration(0.8 * 72 * float64(time.Hour)))

	d, ok := e.Evaluate(losing, 3, at)
	require.True(t, ok)
	assert.Equal(t, domain.ExitReasonTimeLimit, d.Reason)

	_, ok = e.Evaluate(flat, 3, at)
	assert.False(t, ok, "a flat position rides until max hold")
}

func TestMinHoldGatesEveryStrategy(t *testing.T) {
	e := newEvaluator()
	within := entryTime.Add(30 * time.Minute)

	cases := map[string]*domain.Position{
		"stop loss":     openPosition(100, 90, 100, 3),
		"profit target": openPosition(100, 110, 110, 3),
		"trailing":      openPosition(100, 105, 110, 3),
		"defcon revert": openPosition(100, 101, 101, 1),
	}

	for name, p := range cases {
		_, ok := e.Evaluate(p, 5, within)
		assert.False(t, ok, "%s must not fire inside min hold", name)
	}
}

func TestNoExitWhenNothingTriggers(t *testing.T) {
	e := newEvaluator()
	p := openPosition(100, 101, 101, 3)

	_, ok := e.Evaluate(p, 3, afterMinHold)
	assert.False(t, ok)
}

func TestClosedPositionIgnored(t *testing.T) {
	e := newEvaluator()
	p := openPosition(100, 90, 100, 3)
	p.Status = domain.StatusClosed

	_, ok := e.Evaluate(p, 3, afterMinHold)
	assert.False(t, ok)
}

func TestTrailingStopRequiresProfit(t *testing.T) {
	// Below entry but above stop loss: trailing must not fire on a loser.
	e := newEvaluator()
	p := openPosition(100, 98, 103, 3)

	_, ok := e.Evaluate(p, 3, afterMinHold)
	assert.False(t, ok)
}

func TestEvaluateAll_OneDecisionPerPosition(t *testing.T) {
	e := newEvaluator()
	a := openPosition(100, 94, 100, 3)
	a.ID = "a"
	b := openPosition(100, 106, 106, 3)
	b.ID = "b"
	c := openPosition(100, 101, 101, 3)
	c.ID = "c"

	decisions := e.EvaluateAll([]*domain.Position{a, b, c}, 3, afterMinHold)
	require.Len(t, decisions, 2)
	assert.Equal(t, "a", decisions[0].PositionID)
	assert.Equal(t, domain.ExitReasonStopLoss, decisions[0].Reason)
	assert.Equal(t, "b", decisions[1].PositionID)
	assert.Equal(t, domain.ExitReasonProfitTarget, decisions[1].Reason)
}
