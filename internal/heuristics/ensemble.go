package heuristics

import (
	"math"

	"github.com/rankforge/pbn-detector/pkg/models"
)

// Ensemble weights. Missing contributors drop out and the remainder is
// renormalized, so the learned arm being absent never skews the blend.
const (
	ensembleWeightLightweight = 0.4
	ensembleWeightLearned     = 0.3
	ensembleWeightRules       = 0.3
)

// EnsembleClassifier blends the lightweight scorecard, the learned model
// (when loaded) and the rule-sum probability into one score, with a
// confidence derived from contributor dispersion.
type EnsembleClassifier struct {
	classifier *ClassifierService
}

// NewEnsembleClassifier builds the blender around the shared classifier.
func NewEnsembleClassifier(classifier *ClassifierService) *EnsembleClassifier {
	return &EnsembleClassifier{classifier: classifier}
}

// Predict returns the blended probability and a confidence in [0,1].
// With no contributors at all it falls back to (base, 0.5).
func (e *EnsembleClassifier) Predict(
	v FeatureVector,
	b *models.BacklinkSignal,
	rules *RuleScores,
	base float64,
) (prob float64, confidence float64) {
	var probs, weights []float64

	probs = append(probs, e.classifier.PredictLightweight(v, b))
	weights = append(weights, ensembleWeightLightweight)

	if learned, ok := e.classifier.PredictLearned(v); ok {
		probs = append(probs, learned)
		weights = append(weights, ensembleWeightLearned)
	}

	if rules != nil && rules.Len() > 0 {
		ruleProb := rules.Sum()
		if ruleProb > 1.0 {
			ruleProb = 1.0
		}
		probs = append(probs, ruleProb)
		weights = append(weights, ensembleWeightRules)
	}

	if len(probs) == 0 {
		return base, 0.5
	}

	totalWeight := 0.0
	for _, w := range weights {
		totalWeight += w
	}

	blended := 0.0
	for i, p := range probs {
		blended += p * (weights[i] / totalWeight)
	}

	if len(probs) > 1 {
		confidence = 1.0 - math.Min(stddev(probs), 0.5)
	} else {
		confidence = 0.7
	}

	return clamp(blended, 0, 1), clamp(confidence, 0, 1)
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}
