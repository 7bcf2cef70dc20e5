package heuristics

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rankforge/pbn-detector/pkg/models"
)

func TestLightweightClassifier_BoundedOutput(t *testing.T) {
	c := NewLightweightClassifier()

	// Every signal maxed out must still clamp to [0,1].
	var v FeatureVector
	v[FeatDomainRank] = 5
	v[FeatDomainAge] = 30
	v[FeatIPReuse] = 1.0
	v[FeatRegistrarReuse] = 1.0
	v[FeatLinkVelocity] = 1.0
	v[FeatMoneyAnchor] = 1.0
	v[FeatAnchorLength] = 20
	v[FeatDofollow] = 1
	v[FeatDomainNameSuspicion] = 1.0
	v[FeatHostingPattern] = 1.0
	v[FeatSpamScoreNorm] = 0.95

	p := c.Predict(v, &models.BacklinkSignal{SafeBrowsingStatus: "flagged"})
	if p < 0 || p > 1 {
		t.Fatalf("probability out of range: %v", p)
	}
	if p != 1.0 {
		t.Errorf("fully adversarial vector should saturate at 1.0, got %v", p)
	}
}

func TestLightweightClassifier_CleanProfileScoresLow(t *testing.T) {
	c := NewLightweightClassifier()

	var v FeatureVector
	v[FeatDomainRank] = 5000
	v[FeatDomainAge] = 4000
	v[FeatAnchorLength] = 30
	v[FeatSpamScoreNorm] = 0.05

	p := c.Predict(v, &models.BacklinkSignal{SafeBrowsingStatus: "clean"})
	if p > 0.3 {
		t.Errorf("clean aged profile should score low, got %v", p)
	}
}

func TestLightweightClassifier_SpamScoreMonotonic(t *testing.T) {
	c := NewLightweightClassifier()
	b := &models.BacklinkSignal{}

	var low, high FeatureVector
	low[FeatSpamScoreNorm] = 0.1
	high[FeatSpamScoreNorm] = 0.9

	if c.Predict(low, b) >= c.Predict(high, b) {
		t.Errorf("higher spam score must not lower the probability")
	}
}

func TestClassifierService_DegradesWithoutModel(t *testing.T) {
	svc, err := NewClassifierService("")
	if err != nil {
		t.Fatalf("empty path must not error: %v", err)
	}
	if svc.UsesLearnedModel() {
		t.Errorf("no artifact loaded, learned model must be inactive")
	}
	if svc.ModelVersion() != ModelVersionLightweight {
		t.Errorf("model version = %q, want %q", svc.ModelVersion(), ModelVersionLightweight)
	}
	if _, ok := svc.PredictLearned(FeatureVector{}); ok {
		t.Errorf("PredictLearned must report ok=false without a model")
	}
}

func TestClassifierService_MissingArtifactDegrades(t *testing.T) {
	svc, err := NewClassifierService(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Errorf("missing artifact should surface an error for logging")
	}
	if svc == nil || svc.UsesLearnedModel() {
		t.Fatalf("service must still work in lightweight mode")
	}
}

func TestClassifierService_LoadsLinearModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	artifact := `{"version":"lr-1.0","coefficients":[0,0,0,0,0,0,0,0,0,0,0],"intercept":0}`
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		t.Fatal(err)
	}

	svc, err := NewClassifierService(path)
	if err != nil {
		t.Fatalf("valid artifact failed to load: %v", err)
	}
	if !svc.UsesLearnedModel() {
		t.Fatalf("learned model should be active")
	}
	if svc.ModelVersion() != ModelVersionLearned {
		t.Errorf("model version = %q, want %q", svc.ModelVersion(), ModelVersionLearned)
	}

	// Zero weights and intercept put the sigmoid exactly at 0.5.
	prob, ok := svc.PredictLearned(FeatureVector{})
	if !ok || math.Abs(prob-0.5) > 1e-9 {
		t.Errorf("sigmoid(0) = %v (ok=%t), want 0.5", prob, ok)
	}
}

func TestClassifierService_RejectsWrongCoefficientCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	artifact := `{"version":"lr-1.0","coefficients":[1,2,3],"intercept":0}`
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		t.Fatal(err)
	}

	svc, err := NewClassifierService(path)
	if err == nil {
		t.Errorf("dimension mismatch should surface an error")
	}
	if svc.UsesLearnedModel() {
		t.Errorf("mismatched artifact must not activate the learned model")
	}
}

func TestEnsemble_SingleContributorPassesThrough(t *testing.T) {
	svc, _ := NewClassifierService("")
	ensemble := NewEnsembleClassifier(svc)

	var v FeatureVector
	v[FeatDomainRank] = 5000
	b := &models.BacklinkSignal{}

	prob, confidence := ensemble.Predict(v, b, newRuleScores(), 0.1)
	want := svc.PredictLightweight(v, b)
	if math.Abs(prob-want) > 1e-9 {
		t.Errorf("single-arm blend = %v, want lightweight %v", prob, want)
	}
	if confidence != 0.7 {
		t.Errorf("single-contributor confidence = %v, want 0.7", confidence)
	}
}

func TestEnsemble_RenormalizesWithoutLearnedArm(t *testing.T) {
	svc, _ := NewClassifierService("")
	ensemble := NewEnsembleClassifier(svc)

	var v FeatureVector
	b := &models.BacklinkSignal{}
	rules := newRuleScores()
	rules.add(RuleSpamScore, 0.3)
	rules.add(RuleSharedIPNetwork, 0.3)

	lightweight := svc.PredictLightweight(v, b)
	ruleProb := 0.6

	prob, confidence := ensemble.Predict(v, b, rules, 0.5)
	want := lightweight*(0.4/0.7) + ruleProb*(0.3/0.7)
	if math.Abs(prob-want) > 1e-9 {
		t.Errorf("blend = %v, want %v", prob, want)
	}
	if confidence <= 0 || confidence > 1 {
		t.Errorf("confidence out of range: %v", confidence)
	}
}

func TestEnsemble_RuleSumCapsAtOne(t *testing.T) {
	svc, _ := NewClassifierService("")
	ensemble := NewEnsembleClassifier(svc)

	var v FeatureVector
	b := &models.BacklinkSignal{}
	rules := newRuleScores()
	rules.add(RuleSpamScore, 0.9)
	rules.add(RuleSharedIPNetwork, 0.9)

	prob, _ := ensemble.Predict(v, b, rules, 0.5)

	lightweight := svc.PredictLightweight(v, b)
	want := lightweight*(0.4/0.7) + 1.0*(0.3/0.7)
	if math.Abs(prob-want) > 1e-9 {
		t.Errorf("blend with capped rule sum = %v, want %v", prob, want)
	}
}
