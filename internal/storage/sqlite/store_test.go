package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hightrade.db")
	s, err := NewStore(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

var entryTime = time.Date(2026, 5, 3, 9, 30, 0, 0, time.UTC)

func samplePosition(id string) *domain.Position {
	return &domain.Position{
		ID:           id,
		Symbol:       "GLD",
		Qty:          10,
		EntryPrice:   231.5,
		EntryTime:    entryTime,
		EntryDefcon:  2,
		PeakPrice:    234.1,
		CurrentPrice: 233.0,
		Status:       domain.StatusOpen,
	}
}

func TestPositionRoundTripAcrossRestart(t *testing.T) {
	ctx := context.Background()
	s, path := newTestStore(t)

	require.NoError(t, s.Positions().Insert(ctx, samplePosition("p1")))
	require.NoError(t, s.Close())

	reopened, err := NewStore(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	open, err := reopened.Positions().ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, 234.1, open[0].PeakPrice)
	assert.Equal(t, 2, open[0].EntryDefcon)
	assert.Equal(t, entryTime, open[0].EntryTime)
}

func TestPositionInsertDuplicate(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Positions().Insert(ctx, samplePosition("p1")))
	assert.ErrorIs(t, s.Positions().Insert(ctx, samplePosition("p1")), storage.ErrDuplicateKey)
}

func TestPositionCloseLifecycle(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	p := samplePosition("p1")
	require.NoError(t, s.Positions().Insert(ctx, p))

	exitPrice := 241.2
	exitTime := entryTime.Add(5 * time.Hour)
	reason := domain.ExitReasonProfitTarget
	p.Status = domain.StatusClosed
	p.ExitPrice = &exitPrice
	p.ExitTime = &exitTime
	p.ExitReason = &reason
	require.NoError(t, s.Positions().Update(ctx, p))

	open, err := s.Positions().ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	closed, err := s.Positions().ListClosed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].ExitReason)
	assert.Equal(t, domain.ExitReasonProfitTarget, *closed[0].ExitReason)
	assert.Equal(t, exitTime, *closed[0].ExitTime)
}

func TestPositionUpdateMissing(t *testing.T) {
	s, _ := newTestStore(t)
	assert.ErrorIs(t, s.Positions().Update(context.Background(), samplePosition("ghost")), storage.ErrNotFound)
}

func TestNewsSignalRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.NewsSignals().Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	sig := &domain.NewsSignal{
		CycleID:       3,
		Timestamp:     entryTime,
		ArticleCount:  12,
		Score:         47.5,
		CrisisType:    domain.CrisisType("liquidity_credit"),
		Sentiment:     domain.SentimentDist{Bearish: 0.5, Bullish: 0.25, Neutral: 0.25},
		TopArticles:   []string{"a1", "a2"},
		BreakingCount: 1,
	}
	require.NoError(t, s.NewsSignals().Insert(ctx, sig))
	assert.ErrorIs(t, s.NewsSignals().Insert(ctx, sig), storage.ErrDuplicateKey)

	got, err := s.NewsSignals().Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, sig.Score, got.Score)
	assert.Equal(t, sig.TopArticles, got.TopArticles)
	assert.Equal(t, sig.Sentiment, got.Sentiment)
}

func TestDefconAppendAndHistory(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	require.NoError(t, s.Defcon().Append(ctx, &domain.DefconState{
		Level: 5, SignalScore: 12, EnteredAt: entryTime, ReasonCode: domain.ReasonNewsScore,
	}))
	require.NoError(t, s.Defcon().Append(ctx, &domain.DefconState{
		Level: 3, SignalScore: 56, EnteredAt: entryTime.Add(time.Hour), ReasonCode: domain.ReasonVIX,
	}))

	latest, err := s.Defcon().Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Level)
	assert.Equal(t, domain.ReasonVIX, latest.ReasonCode)

	hist, err := s.Defcon().History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 3, hist[0].Level)
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	snap := &domain.MarketSnapshot{
		Timestamp:      entryTime,
		VIX:            28.4,
		BondYield10Y:   4.2,
		SP500ChangePct: -1.8,
		Prices:         map[string]float64{"SPY": 498.2, "GLD": 233.1},
		Stale:          true,
	}
	require.NoError(t, s.Snapshots().Insert(ctx, 9, snap))

	got, err := s.Snapshots().Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.Prices, got.Prices)
	assert.True(t, got.Stale)
}

func TestDecisionActiveEntryAndExpiry(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	d := &domain.PendingDecision{
		ID:        "d1",
		Kind:      domain.DecisionEntry,
		Subject:   `{"symbols":["GLD"],"qty":10,"defcon":2}`,
		CreatedAt: entryTime,
		ExpiresAt: entryTime.Add(time.Hour),
		Status:    domain.DecisionAwaiting,
	}
	require.NoError(t, s.Decisions().Insert(ctx, d))

	got, err := s.Decisions().ActiveEntry(ctx, entryTime.Add(10*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)

	n, err := s.Decisions().ExpireOlder(ctx, entryTime.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Decisions().ActiveEntry(ctx, entryTime.Add(10*time.Minute))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
