package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"hightrade/internal/domain"
	"hightrade/internal/storage"
)

// NewsSignalStore is the sqlite implementation of storage.NewsSignalStore.
type NewsSignalStore struct {
	db *DB
}

// NewNewsSignalStore creates a news signal store over db.
func NewNewsSignalStore(db *DB) *NewsSignalStore {
	return &NewsSignalStore{db: db}
}

var _ storage.NewsSignalStore = (*NewsSignalStore)(nil)

type newsSignalRow struct {
	CycleID       int64   `db:"cycle_id"`
	TS            string  `db:"ts"`
	ArticleCount  int     `db:"article_count"`
	Score         float64 `db:"score"`
	CrisisType    string  `db:"crisis_type"`
	Bearish       float64 `db:"bearish"`
	Bullish       float64 `db:"bullish"`
	Neutral       float64 `db:"neutral"`
	TopArticles   string  `db:"top_articles"`
	BreakingCount int     `db:"breaking_count"`
}

// Insert adds the cycle's signal. Returns ErrDuplicateKey on a repeated
// cycle id.
func (s *NewsSignalStore) Insert(ctx context.Context, sig *domain.NewsSignal) error {
	if sig == nil {
		return storage.ErrInvalidInput
	}
	top, err := json.Marshal(sig.TopArticles)
	if err != nil {
		return fmt.Errorf("marshal top articles: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO news_signals (cycle_id, ts, article_count, score, crisis_type,
			bearish, bullish, neutral, top_articles, breaking_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.CycleID, formatTime(sig.Timestamp), sig.ArticleCount, sig.Score,
		string(sig.CrisisType), sig.Sentiment.Bearish, sig.Sentiment.Bullish,
		sig.Sentiment.Neutral, string(top), sig.BreakingCount)
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
	var row newsSignalRow
	err := s.db.GetContext(ctx, &row, `
		SELECT cycle_id, ts, article_count, score, crisis_type,
			bearish, bullish, neutral, top_articles, breaking_count
		FROM news_signals ORDER BY ts DESC, cycle_id DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest news signal: %w", err)
	}

	ts, err := parseTime(row.TS)
	if err != nil {
		return nil, err
	}
	var top []string
	if err := json.Unmarshal([]byte(row.TopArticles), &top); err != nil {
		return nil, fmt.Errorf("unmarshal top articles: %w", err)
	}
	return &domain.NewsSignal{
		CycleID:      row.CycleID,
		Timestamp:    ts,
		ArticleCount: row.ArticleCount,
		Score:        row.Score,
		CrisisType:   domain.CrisisType(row.CrisisType),
		Sentiment: domain.SentimentDist{
			Bearish: row.Bearish,
			Bullish: row.Bullish,
			Neutral: row.Neutral,
		},
		TopArticles:   top,
		BreakingCount: row.BreakingCount,
	}, nil
}
