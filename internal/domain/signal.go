package domain

import "time"

// CrisisType is the categorical label attached to a news signal, derived
// from keyword-family dominance across retained articles.
type CrisisType string

const (
	CrisisNone             CrisisType = "none"
	CrisisMarketCorrection CrisisType = "market_correction"
	CrisisInflationRate    CrisisType = "inflation_rate"
	CrisisLiquidityCredit  CrisisType = "liquidity_credit"
	CrisisTechCrash        CrisisType = "tech_crash"
	CrisisGeopolitical     CrisisType = "geopolitical"
	CrisisSystemic         CrisisType = "systemic"
)

// SentimentDist is the sentiment distribution over a batch of articles.
// The three shares sum to 1.0 (an empty batch normalizes to all-neutral).
type SentimentDist struct {
	Bearish float64
	Bullish float64
	Neutral float64
}

// Label returns the dominant sentiment name.
func (d SentimentDist) Label() string {
	switch {
	case d.Bearish >= d.Bullish && d.Bearish >= d.Neutral:
		return "bearish"
	case d.Bullish >= d.Neutral:
		return "bullish"
	default:
		return "neutral"
	}
}

// NewsSignal is the per-cycle aggregate produced by the news pipeline.
// Written once per cycle; never mutated. The most recent row is the
// novelty baseline for the next cycle.
type NewsSignal struct {
	CycleID       int64
	Timestamp     time.Time
	ArticleCount  int
	Score         float64 // [0,100]
	CrisisType    CrisisType
	Sentiment     SentimentDist
	TopArticles   []string // ordered, at most 5 article IDs
	BreakingCount int
}
