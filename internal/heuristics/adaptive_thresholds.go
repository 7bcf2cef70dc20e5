package heuristics

import (
	"math"

	"github.com/rankforge/pbn-detector/pkg/models"
)

// Thresholds are the risk cutoffs applied by the assembler.
type Thresholds struct {
	HighRisk   float64 `json:"high_risk"`
	MediumRisk float64 `json:"medium_risk"`
}

// Classify maps a probability onto a risk level.
func (t Thresholds) Classify(prob float64) string {
	switch {
	case prob >= t.HighRisk:
		return "high"
	case prob >= t.MediumRisk:
		return "medium"
	}
	return "low"
}

// AdaptiveThresholds chooses cutoffs from batch size and optional per-domain
// context instead of a fixed global: large batches tighten the cutoffs,
// small ones loosen them. It reads configuration once and computes locally.
type AdaptiveThresholds struct {
	baseHigh   float64
	baseMedium float64
}

// NewAdaptiveThresholds builds the adjuster from the configured base cutoffs.
func NewAdaptiveThresholds(highRisk, mediumRisk float64) *AdaptiveThresholds {
	return &AdaptiveThresholds{baseHigh: highRisk, baseMedium: mediumRisk}
}

// Base returns the unadjusted cutoffs.
func (a *AdaptiveThresholds) Base() Thresholds {
	return Thresholds{HighRisk: a.baseHigh, MediumRisk: a.baseMedium}
}

// Adjust derives the cutoffs for one batch. ctx may be nil.
func (a *AdaptiveThresholds) Adjust(totalBacklinks int, ctx *models.DomainContext) Thresholds {
	high := a.baseHigh
	medium := a.baseMedium

	switch {
	case totalBacklinks > 10000:
		high = math.Min(high+0.05, 0.95)
		medium = math.Min(medium+0.05, 0.85)
	case totalBacklinks > 5000:
		high = math.Min(high+0.03, 0.90)
		medium = math.Min(medium+0.03, 0.80)
	case totalBacklinks < 100:
		high = math.Max(high-0.05, 0.60)
		medium = math.Max(medium-0.05, 0.40)
	}

	if ctx != nil {
		switch {
		case ctx.DomainAuthority > 80:
			high = math.Min(high+0.03, 0.95)
			medium = math.Min(medium+0.03, 0.85)
		case ctx.DomainAuthority > 0 && ctx.DomainAuthority < 30:
			high = math.Max(high-0.03, 0.60)
			medium = math.Max(medium-0.03, 0.40)
		}

		switch {
		case ctx.HistoricalPBNRate > 0.3:
			high = math.Min(high+0.05, 0.95)
			medium = math.Min(medium+0.05, 0.85)
		case ctx.HistoricalPBNRate > 0 && ctx.HistoricalPBNRate < 0.1:
			high = math.Max(high-0.03, 0.60)
			medium = math.Max(medium-0.03, 0.40)
		}
	}

	return Thresholds{HighRisk: high, MediumRisk: medium}
}
