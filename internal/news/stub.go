package news

import (
	"context"

	"hightrade/internal/domain"
)

// StubSource serves a fixed batch of articles. Used in tests and for
// offline runs.
type StubSource struct {
	SourceName string
	LimiterKey string
	Articles   []domain.Article
	Err        error

	FetchCount int
}

var _ Source = (*StubSource)(nil)

func (s *StubSource) Name() string { return s.SourceName }

func (s *StubSource) RateLimiterKey() string {
	if s.LimiterKey == "" {
		return s.SourceName
	}
	return s.LimiterKey
}

func (s *StubSource) Fetch(ctx context.Context) ([]domain.Article, error) {
	s.FetchCount++
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]domain.Article, len(s.Articles))
	copy(out, s.Articles)
	return out, nil
}
