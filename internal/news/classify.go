package news

import (
	"strings"
	"unicode"

	"hightrade/internal/config"
	"hightrade/internal/domain"
)

// Classifier assigns urgency, relevance, per-article sentiment and crisis
// type from configurable keyword lexicons.
type Classifier struct {
	breaking  []string
	high      []string
	relevance []string
	bearish   []string
	bullish   []string
	crisis    map[domain.CrisisType][]string
}

// NewClassifier builds a Classifier from the lexicon configuration.
func NewClassifier(cfg config.NewsConfig) *Classifier {
	crisis := make(map[domain.CrisisType][]string, len(cfg.CrisisKeywords))
	for name, words := range cfg.CrisisKeywords {
		crisis[domain.CrisisType(name)] = lowerAll(words)
	}
	return &Classifier{
		breaking:  lowerAll(cfg.UrgencyKeywords["breaking"]),
		high:      lowerAll(cfg.UrgencyKeywords["high"]),
		relevance: lowerAll(cfg.RelevanceLexicon),
		bearish:   lowerAll(cfg.BearishKeywords),
		bullish:   lowerAll(cfg.BullishKeywords),
		crisis:    crisis,
	}
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// Classify fills Urgency and Relevance on the article in place.
func (c *Classifier) Classify(a *domain.Article) {
	text := strings.ToLower(a.Title + " " + a.RawText)

	a.Urgency = domain.UrgencyRoutine
	if containsAny(text, c.breaking) {
		a.Urgency = domain.UrgencyBreaking
	} else if containsAny(text, c.high) {
		a.Urgency = domain.UrgencyHigh
	}

	a.Relevance = c.relevanceScore(text)
}

// relevanceScore is the fraction of the lexicon present in the text,
// boosted so a handful of matches already counts as relevant.
func (c *Classifier) relevanceScore(text string) float64 {
	if len(c.relevance) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range c.relevance {
		if strings.Contains(text, kw) {
			hits++
		}
	}
	// Three distinct lexicon hits saturate.
	score := float64(hits) / 3
	if score > 1 {
		score = 1
	}
	return score
}

// Sentiment labels one article as bearish, bullish or neutral by keyword
// hit counts.
func (c *Classifier) Sentiment(a domain.Article) string {
	text := strings.ToLower(a.Title + " " + a.RawText)
	bear := countHits(text, c.bearish)
	bull := countHits(text, c.bullish)
	switch {
	case bear > bull:
		return "bearish"
	case bull > bear:
		return "bullish"
	default:
		return "neutral"
	}
}

// CrisisType returns the dominant crisis family across the batch, or
// CrisisNone when no family scores a hit.
func (c *Classifier) CrisisType(articles []domain.Article) domain.CrisisType {
	scores := make(map[domain.CrisisType]int)
	for _, a := range articles {
		text := strings.ToLower(a.Title + " " + a.RawText)
		for family, words := range c.crisis {
			scores[family] += countHits(text, words)
		}
	}

	best := domain.CrisisNone
	bestScore := 0
	for family, score := range scores {
		if score > bestScore || (score == bestScore && score > 0 && family < best) {
			best = family
			bestScore = score
		}
	}
	if bestScore == 0 {
		return domain.CrisisNone
	}
	return best
}

// SentimentDist aggregates per-article sentiment into a distribution
// summing to 1 (all-neutral for an empty batch).
func (c *Classifier) SentimentDist(articles []domain.Article) domain.SentimentDist {
	if len(articles) == 0 {
		return domain.SentimentDist{Neutral: 1}
	}
	var dist domain.SentimentDist
	for _, a := range articles {
		switch c.Sentiment(a) {
		case "bearish":
			dist.Bearish++
		case "bullish":
			dist.Bullish++
		default:
			dist.Neutral++
		}
	}
	n := float64(len(articles))
	dist.Bearish /= n
	dist.Bullish /= n
	dist.Neutral /= n
	return dist
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func countHits(text string, keywords []string) int {
	hits := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(text, kw) {
			hits++
		}
	}
	return hits
}

// sanitizeTitle strips control characters and truncates for alert payloads.
func sanitizeTitle(title string, max int) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, title)
	clean = strings.TrimSpace(clean)
	if runes := []rune(clean); len(runes) > max {
		clean = string(runes[:max])
	}
	return clean
}
