package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

func TestPositionStore_Lifecycle(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPositionStore(pool)
	entry := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

	p := &domain.Position{
		ID:           "p1",
		Symbol:       "TLT",
		Qty:          20,
		EntryPrice:   92.5,
		EntryTime:    entry,
		EntryDefcon:  2,
		PeakPrice:    93.4,
		CurrentPrice: 93.0,
		Status:       domain.StatusOpen,
	}
	require.NoError(t, store.Insert(ctx, p))
	assert.ErrorIs(t, store.Insert(ctx, p), storage.ErrDuplicateKey)

	got, err := store.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 93.4, got.PeakPrice)
	assert.Equal(t, 2, got.EntryDefcon)

	p.Status = domain.StatusClosed
	p.ExitPrice = ptr(97.1)
	p.ExitTime = ptr(entry.Add(6 * time.Hour))
	p.ExitReason = ptr(domain.ExitReasonProfitTarget)
	require.NoError(t, store.Update(ctx, p))

	open, err := store.ListOpen(ctx)
	require.NoError(t, err)
	assert.Empty(t, open)

	closed, err := store.ListClosed(ctx, 10)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].ExitReason)
	assert.Equal(t, domain.ExitReasonProfitTarget, *closed[0].ExitReason)
}

func TestNewsSignalStore_InsertAndLatest(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewNewsSignalStore(pool)

	_, err := store.Latest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	sig := &domain.NewsSignal{
		CycleID:       1,
		Timestamp:     time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC),
		ArticleCount:  4,
		Score:         62.5,
		CrisisType:    domain.CrisisType("geopolitical"),
		Sentiment:     domain.SentimentDist{Bearish: 0.75, Neutral: 0.25},
		TopArticles:   []string{"a1", "a2"},
		BreakingCount: 2,
	}
	require.NoError(t, store.Insert(ctx, sig))
	assert.ErrorIs(t, store.Insert(ctx, sig), storage.ErrDuplicateKey)

	got, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, sig.Score, got.Score)
	assert.Equal(t, sig.TopArticles, got.TopArticles)
}

func TestDefconStore_AppendAndHistory(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewDefconStore(pool)
	base := time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx, &domain.DefconState{
		Level: 4, SignalScore: 35, EnteredAt: base, ReasonCode: domain.ReasonNewsScore,
	}))
	require.NoError(t, store.Append(ctx, &domain.DefconState{
		Level: 2, SignalScore: 74, EnteredAt: base.Add(time.Hour), ReasonCode: domain.ReasonBreakingBias,
	}))

	latest, err := store.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Level)

	hist, err := store.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, 2, hist[0].Level)
}
