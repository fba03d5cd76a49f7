// Package signal composes the cycle's sub-signals into the composite
// crisis score and maps it onto the DEFCON scale.
package signal

import (
	"hightrade/internal/config"
	"hightrade/internal/domain"
)

// Scorer weights the normalized sub-signals. Pure over its inputs.
type Scorer struct {
	weights config.WeightsConfig
}

// NewScorer builds a Scorer from the configured weights.
func NewScorer(weights config.WeightsConfig) *Scorer {
	return &Scorer{weights: weights}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Components are the normalized sub-signals, each in [0,100].
type Components struct {
	NewsScore     float64
	VIX           float64
	Yield         float64
	SP500Drawdown float64
	BreakingBias  float64
	Sentiment     float64
}

// Normalize derives the sub-signal components from the cycle inputs.
func Normalize(news domain.NewsSignal, snap domain.MarketSnapshot) Components {
	breaking := float64(news.BreakingCount) * 20
	if breaking > 100 {
		breaking = 100
	}
	return Components{
		NewsScore:     clamp01(news.Score/100) * 100,
		VIX:           clamp01((snap.VIX-15)/(40-15)) * 100,
		Yield:         clamp01(abs(snap.BondYield10Y-3.5)/2.0) * 100,
		SP500Drawdown: clamp01(-snap.SP500ChangePct/3.0) * 100,
		BreakingBias:  breaking,
		Sentiment:     clamp01(news.Sentiment.Bearish) * 100,
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Score returns the composite in [0,100] and the reason code of the
// sub-signal contributing the most.
func (s *Scorer) Score(news domain.NewsSignal, snap domain.MarketSnapshot) (float64, string) {
	c := Normalize(news, snap)
	w := s.weights

	parts := []struct {
		reason string
		weight float64
		value  float64
	}{
		{domain.ReasonNewsScore, w.NewsScore, c.NewsScore},
		{domain.ReasonVIX, w.VIXComponent, c.VIX},
		{domain.ReasonYield, w.YieldComponent, c.Yield},
		{domain.ReasonSP500Drawdown, w.SP500Drawdown, c.SP500Drawdown},
		{domain.ReasonBreakingBias, w.BreakingBias, c.BreakingBias},
		{domain.ReasonSentiment, w.Sentiment, c.Sentiment},
	}

	var total, totalWeight float64
	reason := domain.ReasonNewsScore
	best := -1.0
	for _, p := range parts {
		if p.weight <= 0 {
			continue
		}
		contribution := p.weight * p.value
		total += contribution
		totalWeight += p.weight
		if contribution > best {
			best = contribution
			reason = p.reason
		}
	}
	if totalWeight == 0 {
		return 0, reason
	}

	score := total / totalWeight
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, reason
}

// MapDefcon maps the composite score onto the 5..1 scale. Total and
// monotone: higher score never yields a higher (calmer) level.
func MapDefcon(score float64) int {
	switch {
	case score >= 85:
		return domain.DefconCrisis
	case score >= 70:
		return domain.DefconSevere
	case score >= 50:
		return domain.DefconElevated
	case score >= 30:
		return domain.DefconGuarded
	default:
		return domain.DefconPeacetime
	}
}
