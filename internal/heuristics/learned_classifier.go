package heuristics

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"github.com/rankforge/pbn-detector/pkg/models"
)

// Model version tags reported in DetectionMeta.
const (
	ModelVersionLearned     = "lr-1.0"
	ModelVersionLightweight = "lightweight-v1.0"
)

// linearModel is the serialized artifact: a pre-fit binary logistic
// regression over the 11-float vector, exported to JSON by the training
// pipeline. The model is pure: identical input yields identical output.
type linearModel struct {
	Version      string    `json:"version"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// ClassifierService scores the feature vector with the learned model when
// one was loaded at startup, and falls back to the lightweight scorecard
// otherwise. Both variants share the same signature.
type ClassifierService struct {
	lightweight *LightweightClassifier
	model       *linearModel
}

// NewClassifierService loads the optional artifact. A missing path or an
// unreadable artifact is not an error: the service degrades to the
// lightweight variant and reports that in the model version.
func NewClassifierService(modelPath string) (*ClassifierService, error) {
	svc := &ClassifierService{lightweight: NewLightweightClassifier()}
	if modelPath == "" {
		return svc, nil
	}

	data, err := os.ReadFile(modelPath)
	if err != nil {
		return svc, fmt.Errorf("classifier model not loaded from %s: %w", modelPath, err)
	}

	var m linearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return svc, fmt.Errorf("classifier model artifact malformed: %w", err)
	}
	if len(m.Coefficients) != FeatureCount {
		return svc, fmt.Errorf("classifier model expects %d coefficients, got %d",
			FeatureCount, len(m.Coefficients))
	}

	svc.model = &m
	return svc, nil
}

// UsesLearnedModel reports whether the learned variant is active.
func (s *ClassifierService) UsesLearnedModel() bool {
	return s.model != nil
}

// ModelVersion returns the tag for DetectionMeta.
func (s *ClassifierService) ModelVersion() string {
	if s.model != nil {
		return ModelVersionLearned
	}
	return ModelVersionLightweight
}

// Predict returns the base probability in [0,1] for one backlink.
func (s *ClassifierService) Predict(v FeatureVector, b *models.BacklinkSignal) float64 {
	if s.model != nil {
		return s.predictLearned(v)
	}
	return s.lightweight.Predict(v, b)
}

// PredictLightweight always scores with the scorecard, regardless of the
// loaded model. The ensemble uses it as a separate contributor.
func (s *ClassifierService) PredictLightweight(v FeatureVector, b *models.BacklinkSignal) float64 {
	return s.lightweight.Predict(v, b)
}

// PredictLearned scores with the learned model only; ok is false when no
// model is loaded.
func (s *ClassifierService) PredictLearned(v FeatureVector) (prob float64, ok bool) {
	if s.model == nil {
		return 0, false
	}
	return s.predictLearned(v), true
}

func (s *ClassifierService) predictLearned(v FeatureVector) float64 {
	z := s.model.Intercept
	for i, w := range s.model.Coefficients {
		z += w * v[i]
	}
	return 1.0 / (1.0 + math.Exp(-z))
}
