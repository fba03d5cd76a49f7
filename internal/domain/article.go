package domain

import "time"

// Urgency classifies how time-critical an article is.
type Urgency string

const (
	UrgencyRoutine  Urgency = "routine"
	UrgencyHigh     Urgency = "high"
	UrgencyBreaking Urgency = "breaking"
)

// Article is a single ingested news item. Immutable after ingest.
// Identity is ID, a stable hash of the normalized URL.
type Article struct {
	ID          string // sha256 of normalized URL
	Source      string // source key from config (e.g. "alpha_vantage_news")
	Title       string
	URL         string
	PublishedAt time.Time
	FetchedAt   time.Time
	RawText     string
	Relevance   float64 // [0,1], keyword overlap with the relevance lexicon
	Urgency     Urgency
}
