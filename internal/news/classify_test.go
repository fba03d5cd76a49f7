package news

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hightrade/internal/config"
	"hightrade/internal/domain"
)

func TestClassify_UrgencyTiers(t *testing.T) {
	c := NewClassifier(config.Default().News)

	tests := []struct {
		name  string
		title string
		want  domain.Urgency
	}{
		{"breaking keyword", "Trading halt after market crash", domain.UrgencyBreaking},
		{"high keyword", "Stocks plunge on recession worries", domain.UrgencyHigh},
		{"routine", "Company announces new product line", domain.UrgencyRoutine},
		{"breaking outranks high", "Emergency selloff plunge", domain.UrgencyBreaking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := domain.Article{Title: tt.title}
			c.Classify(&a)
			assert.Equal(t, tt.want, a.Urgency)
		})
	}
}

func TestClassify_RelevanceSaturates(t *testing.T) {
	c := NewClassifier(config.Default().News)

	a := domain.Article{Title: "markets stocks bonds fed rates inflation recession"}
	c.Classify(&a)
	assert.Equal(t, 1.0, a.Relevance)

	b := domain.Article{Title: "local bakery wins pie contest"}
	c.Classify(&b)
	assert.Zero(t, b.Relevance)
}

func TestSentimentDist_SumsToOne(t *testing.T) {
	c := NewClassifier(config.Default().News)

	batch := []domain.Article{
		{Title: "market crash fears deepen"},     // bearish
		{Title: "stocks rally to record high"},   // bullish
		{Title: "fed meets on wednesday"},        // neutral
		{Title: "selloff plunge losses mount"},   // bearish
	}

	dist := c.SentimentDist(batch)
	assert.InDelta(t, 1.0, dist.Bearish+dist.Bullish+dist.Neutral, 1e-9)
	assert.Equal(t, 0.5, dist.Bearish)
	assert.Equal(t, "bearish", dist.Label())
}

func TestCrisisType_DominantFamily(t *testing.T) {
	c := NewClassifier(config.Default().News)

	batch := []domain.Article{
		{Title: "inflation surges as cpi beats forecasts", RawText: "rate hike odds jump, hawkish fed"},
		{Title: "cpi print forces repricing", RawText: "inflation expectations climb"},
		{Title: "tech stocks wobble", RawText: "nasdaq slips"},
	}

	assert.Equal(t, domain.CrisisType("inflation_rate"), c.CrisisType(batch))
	assert.Equal(t, domain.CrisisNone, c.CrisisType(nil))
}
