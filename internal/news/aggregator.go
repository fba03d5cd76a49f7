// Package news fetches, classifies, deduplicates and scores news articles
// from the configured external sources, producing one NewsSignal per cycle.
package news

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"hightrade/internal/domain"
	"hightrade/internal/news/dedup"
)

// Pacer is the rate-limiter surface the aggregator needs.
type Pacer interface {
	Acquire(ctx context.Context, source string) error
	RecordSuccess(source string)
	RecordFailure(source string)
}

// SignalReader loads the most recent persisted NewsSignal, the novelty
// baseline.
type SignalReader interface {
	LatestNewsSignal(ctx context.Context) (*domain.NewsSignal, error)
}

// Options wires an Aggregator.
type Options struct {
	Sources    []Source
	Pacer      Pacer
	Dedup      *dedup.Deduplicator
	Classifier *Classifier
	Signals    SignalReader
	CacheTTL   time.Duration
	MaxRetries int
}

type cachedBatch struct {
	cycleID   int64
	sourceSet string
	fetchedAt time.Time
	articles  []domain.Article
}

// Aggregator owns the article cache. Safe for use from the single
// orchestrator task plus concurrent readers of produced values.
type Aggregator struct {
	sources    []Source
	pacer      Pacer
	dedup      *dedup.Deduplicator
	classifier *Classifier
	signals    SignalReader
	cacheTTL   time.Duration
	maxRetries int
	now        func() time.Time

	mu    sync.Mutex
	cache *cachedBatch
}

// NewAggregator builds an Aggregator. CacheTTL defaults to 15 minutes and
// MaxRetries to 3.
func NewAggregator(opts Options) *Aggregator {
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	retries := opts.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	return &Aggregator{
		sources:    opts.Sources,
		pacer:      opts.Pacer,
		dedup:      opts.Dedup,
		classifier: opts.Classifier,
		signals:    opts.Signals,
		cacheTTL:   ttl,
		maxRetries: retries,
		now:        time.Now,
	}
}

func (a *Aggregator) sourceSetHash() string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	sort.Strings(names)
	sum := sha256.Sum256([]byte(strings.Join(names, ",")))
	return hex.EncodeToString(sum[:8])
}

// Collect returns this cycle's deduplicated, classified article batch.
// A batch cached for the same (cycle, source set) within the TTL is
// returned without refetching.
func (a *Aggregator) Collect(ctx context.Context) []domain.Article {
	return a.CollectForCycle(ctx, 0)
}

// CollectForCycle is Collect keyed by an explicit cycle id.
func (a *Aggregator) CollectForCycle(ctx context.Context, cycleID int64) []domain.Article {
	setHash := a.sourceSetHash()
	now := a.now()

	a.mu.Lock()
	if c := a.cache; c != nil && c.cycleID == cycleID && c.sourceSet == setHash && now.Sub(c.fetchedAt) < a.cacheTTL {
		out := make([]domain.Article, len(c.articles))
		copy(out, c.articles)
		a.mu.Unlock()
		return out
	}
	a.mu.Unlock()

	merged := a.fetchAll(ctx)
	for i := range merged {
		a.classifier.Classify(&merged[i])
	}
	batch := a.dedup.Dedupe(merged)

	a.mu.Lock()
	a.cache = &cachedBatch{
		cycleID:   cycleID,
		sourceSet: setHash,
		fetchedAt: now,
		articles:  batch,
	}
	a.mu.Unlock()

	out := make([]domain.Article, len(batch))
	copy(out, batch)
	return out
}

// fetchAll runs all sources as parallel sub-tasks and joins before
// returning. A failed source contributes nothing; siblings are unaffected.
func (a *Aggregator) fetchAll(ctx context.Context) []domain.Article {
	results := make([][]domain.Article, len(a.sources))
	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			results[i] = a.fetchOne(ctx, src)
		}(i, src)
	}
	wg.Wait()

	var merged []domain.Article
	for _, r := range results {
		merged = append(merged, r...)
	}
	return merged
}

// fetchOne fetches a single source. Rate-limited responses are retried
// up to maxRetries times after the initial attempt, then the source is
// skipped for the cycle.
func (a *Aggregator) fetchOne(ctx context.Context, src Source) []domain.Article {
	key := src.RateLimiterKey()
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if err := a.pacer.Acquire(ctx, key); err != nil {
			return nil
		}
		articles, err := src.Fetch(ctx)
		if err == nil {
			a.pacer.RecordSuccess(key)
			return articles
		}
		if errors.Is(err, ErrRateLimited) {
			a.pacer.RecordFailure(key)
			log.Warn().Str("source", src.Name()).Int("attempt", attempt+1).Msg("source rate limited")
			continue
		}
		// Transient or malformed: skip this source for the cycle.
		log.Warn().Err(err).Str("source", src.Name()).Msg("source fetch failed")
		return nil
	}
	log.Warn().Str("source", src.Name()).Msg("source skipped after rate-limit retries")
	return nil
}

// urgencyWeight drives score contribution; breaking news dominates.
func urgencyWeight(u domain.Urgency) float64 {
	switch u {
	case domain.UrgencyBreaking:
		return 10
	case domain.UrgencyHigh:
		return 5
	default:
		return 1
	}
}

// urgencyRank orders top-article selection.
func urgencyRank(u domain.Urgency) float64 {
	switch u {
	case domain.UrgencyBreaking:
		return 3
	case domain.UrgencyHigh:
		return 2
	default:
		return 1
	}
}

// BuildSignal scores the batch into a NewsSignal for the cycle.
//
// Each article contributes relevance x urgency weight x recency decay,
// with bearish articles boosted 1.2x; the sum is scaled to [0,100].
func (a *Aggregator) BuildSignal(cycleID int64, now time.Time, articles []domain.Article) domain.NewsSignal {
	var score float64
	breaking := 0
	for _, art := range articles {
		ageHours := now.Sub(art.PublishedAt).Hours()
		recency := 1 - ageHours/24
		if recency < 0 {
			recency = 0
		}
		mult := 1.0
		if a.classifier.Sentiment(art) == "bearish" {
			mult = 1.2
		}
		score += art.Relevance * urgencyWeight(art.Urgency) * recency * mult
		if art.Urgency == domain.UrgencyBreaking {
			breaking++
		}
	}
	score /= 10
	if score > 100 {
		score = 100
	}

	return domain.NewsSignal{
		CycleID:       cycleID,
		Timestamp:     now,
		ArticleCount:  len(articles),
		Score:         score,
		CrisisType:    a.classifier.CrisisType(articles),
		Sentiment:     a.classifier.SentimentDist(articles),
		TopArticles:   topArticleIDs(articles, 5),
		BreakingCount: breaking,
	}
}

// topArticleIDs ranks by relevance x urgency, breaking ties by id.
func topArticleIDs(articles []domain.Article, limit int) []string {
	ranked := make([]domain.Article, len(articles))
	copy(ranked, articles)
	sort.Slice(ranked, func(i, j int) bool {
		si := ranked[i].Relevance * urgencyRank(ranked[i].Urgency)
		sj := ranked[j].Relevance * urgencyRank(ranked[j].Urgency)
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	ids := make([]string, len(ranked))
	for i, a := range ranked {
		ids[i] = a.ID
	}
	return ids
}

// Novelty compares the batch against the last persisted NewsSignal.
// Returns the count of article ids not in the previous top set and whether
// downstream news notifications should fire. Breaking articles force
// novelty; a store read failure fails safe (notify rather than drop).
func (a *Aggregator) Novelty(ctx context.Context, articles []domain.Article) (newCount int, novel bool) {
	breaking := false
	for _, art := range articles {
		if art.Urgency == domain.UrgencyBreaking {
			breaking = true
			break
		}
	}

	prev, err := a.signals.LatestNewsSignal(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("novelty baseline read failed, assuming novel")
		return len(articles), true
	}

	known := make(map[string]struct{})
	if prev != nil {
		for _, id := range prev.TopArticles {
			known[id] = struct{}{}
		}
	}
	for _, art := range articles {
		if _, ok := known[art.ID]; !ok {
			newCount++
		}
	}
	return newCount, newCount > 0 || breaking
}

// Headline is a compact article view for alert payloads.
type Headline struct {
	Source  string `json:"source"`
	Title   string `json:"title"`
	Urgency string `json:"urgency"`
}

// Headlines returns alert-ready views of the batch's top articles, titles
// truncated to 80 characters.
func (a *Aggregator) Headlines(articles []domain.Article, limit int) []Headline {
	byID := make(map[string]domain.Article, len(articles))
	for _, art := range articles {
		byID[art.ID] = art
	}
	var out []Headline
	for _, id := range topArticleIDs(articles, limit) {
		art := byID[id]
		out = append(out, Headline{
			Source:  art.Source,
			Title:   sanitizeTitle(art.Title, 80),
			Urgency: string(art.Urgency),
		})
	}
	return out
}
