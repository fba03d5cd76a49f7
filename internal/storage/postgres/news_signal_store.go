package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// NewsSignalStore is the postgres implementation of storage.NewsSignalStore.
type NewsSignalStore struct {
	pool *Pool
}

// NewNewsSignalStore creates a news signal store over pool.
func NewNewsSignalStore(pool *Pool) *NewsSignalStore {
	return &NewsSignalStore{pool: pool}
}

var _ storage.NewsSignalStore = (*NewsSignalStore)(nil)

// Insert adds the cycle's signal. Returns ErrDuplicateKey on a repeated
// cycle id.
func (s *NewsSignalStore) Insert(ctx context.Context, sig *domain.NewsSignal) error {
	if sig == nil {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO news_signals (cycle_id, ts, article_count, score, crisis_type,
			bearish, bullish, neutral, top_articles, breaking_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sig.CycleID, sig.Timestamp, sig.ArticleCount, sig.Score,
		string(sig.CrisisType), sig.Sentiment.Bearish, sig.Sentiment.Bullish,
		sig.Sentiment.Neutral, sig.TopArticles, sig.BreakingCount)
	if isDuplicateKeyError(err) {
		return storage.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert news signal: %w", err)
	}
	return nil
}

// Latest retrieves the most recent signal. Returns ErrNotFound when empty.
func (s *NewsSignalStore) Latest(ctx context.Context) (*domain.NewsSignal, error) {
	var sig domain.NewsSignal
	var crisis string
	err := s.pool.QueryRow(ctx, `
		SELECT cycle_id, ts, article_count, score, crisis_type,
			bearish, bullish, neutral, top_articles, breaking_count
		FROM news_signals ORDER BY ts DESC, cycle_id DESC LIMIT 1`).
		Scan(&sig.CycleID, &sig.Timestamp, &sig.ArticleCount, &sig.Score,
			&crisis, &sig.Sentiment.Bearish, &sig.Sentiment.Bullish,
			&sig.Sentiment.Neutral, &sig.TopArticles, &sig.BreakingCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest news signal: %w", err)
	}
	sig.CrisisType = domain.CrisisType(crisis)
	return &sig, nil
}
