package news

import (
	"context"
	"errors"

	"hightrade/internal/domain"
)

// ErrRateLimited marks an upstream 429-style response. The aggregator
// records it against the rate limiter and retries within the cycle.
var ErrRateLimited = errors.New("source rate limited")

// Source provides raw articles from one external feed.
type Source interface {
	// Name is the source identifier used in Article.Source and for
	// rate-limiter bookkeeping.
	Name() string
	// RateLimiterKey selects the pacing budget this source draws from.
	RateLimiterKey() string
	// Fetch returns the source's current articles. Articles may arrive
	// unclassified and with duplicates; the aggregator normalizes them.
	Fetch(ctx context.Context) ([]domain.Article, error)
}
