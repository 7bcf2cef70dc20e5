package heuristics

import (
	"math"
	"testing"
	"time"

	"github.com/rankforge/pbn-detector/pkg/models"
)

func TestSharedIPRule_Tiers(t *testing.T) {
	engine := NewRuleEngine()
	now := time.Now().UTC()

	tests := []struct {
		name     string
		total    int
		sameIP   int
		expected float64
	}{
		{"Dominant Cluster", 10, 10, 0.3},
		{"Medium Cluster", 20, 5, 0.2},
		{"Small Cluster", 30, 3, 0.1},
		{"Below Minimum", 30, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peers := make([]models.BacklinkSignal, tt.total)
			for i := range peers {
				peers[i].SourceURL = "url"
				if i < tt.sameIP {
					peers[i].IP = "10.0.0.1"
				}
			}
			agg := BuildNetworkAggregate(peers, now)

			scores := engine.Evaluate(&models.BacklinkSignal{IP: "10.0.0.1"}, agg)
			got, _ := scores.Get(RuleSharedIPNetwork)
			if math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("shared_ip_network = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAnchorQualityRule_Tiers(t *testing.T) {
	engine := NewRuleEngine()
	agg := BuildNetworkAggregate(nil, time.Now().UTC())

	tests := []struct {
		anchor   string
		expected float64
	}{
		{"best online casino bonus", 0.3},
		{"buy backlinks", 0.2},
		{"click here now", 0.15},
		{"our research methodology", 0},
		{"", 0},
	}

	for _, tt := range tests {
		scores := engine.Evaluate(&models.BacklinkSignal{Anchor: tt.anchor}, agg)
		got, _ := scores.Get(RuleAnchorQuality)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("anchor %q: anchor_quality = %v, want %v", tt.anchor, got, tt.expected)
		}
	}
}

func TestVelocitySpikeRule_WidestQualifyingWindow(t *testing.T) {
	engine := NewRuleEngine()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	// 6 of 10 peers first seen within 7 days: every window holds ≥50%,
	// and the 7-day window's base score wins.
	peers := make([]models.BacklinkSignal, 10)
	for i := range peers {
		peers[i].SourceURL = "url"
		if i < 6 {
			peers[i].FirstSeen = daysAgo(now, 3)
		} else {
			peers[i].FirstSeen = daysAgo(now, 400)
		}
	}
	agg := BuildNetworkAggregate(peers, now)

	scores := engine.Evaluate(&peers[0], agg)
	got, _ := scores.Get(RuleVelocitySpike)
	if math.Abs(got-0.2) > 1e-9 {
		t.Errorf("velocity_spike = %v, want 0.2", got)
	}
}

func TestDomainQualityRule_CapsAtQuarter(t *testing.T) {
	engine := NewRuleEngine()
	agg := BuildNetworkAggregate(nil, time.Now().UTC())

	// All three cues fire (0.15 + 0.1 + 0.1 = 0.35) but the rule caps at 0.25.
	b := &models.BacklinkSignal{
		DomainRank:    10,
		DomainAgeDays: 30,
		DomainFrom:    "abc12345.net",
	}
	scores := engine.Evaluate(b, agg)
	got, _ := scores.Get(RuleDomainQuality)
	if math.Abs(got-0.25) > 1e-9 {
		t.Errorf("domain_quality = %v, want 0.25", got)
	}
}

func TestDomainQualityRule_ZeroMeansUnknown(t *testing.T) {
	engine := NewRuleEngine()
	agg := BuildNetworkAggregate(nil, time.Now().UTC())

	// Zero rank and age are "unknown", never "suspiciously low".
	scores := engine.Evaluate(&models.BacklinkSignal{DomainFrom: "established-site.example"}, agg)
	if scores.Has(RuleDomainQuality) {
		t.Errorf("domain_quality must not fire on unknown rank/age")
	}
}

func TestSpamScoreRule_MembershipBands(t *testing.T) {
	engine := NewRuleEngine()
	agg := BuildNetworkAggregate(nil, time.Now().UTC())

	tests := []struct {
		score    int
		expected float64
	}{
		{90, 0.3},
		{80, 0.3},
		{76, 0.3}, // membership 0.9 exactly
		{70, 0.2},
		{60, 0.2},
		{45, 0.1},
		{39, 0},
	}

	for _, tt := range tests {
		scores := engine.Evaluate(&models.BacklinkSignal{BacklinkSpamScore: intp(tt.score)}, agg)
		got, _ := scores.Get(RuleSpamScore)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("spam score %d: rule = %v, want %v", tt.score, got, tt.expected)
		}
	}
}

func TestSpamScoreRule_AbsentScoreNeverFires(t *testing.T) {
	engine := NewRuleEngine()
	agg := BuildNetworkAggregate(nil, time.Now().UTC())

	scores := engine.Evaluate(&models.BacklinkSignal{}, agg)
	if scores.Has(RuleSpamScore) {
		t.Errorf("absent spam score must not fire the rule")
	}
}

func TestChaining_SpamNetworkAmplifiesBothRules(t *testing.T) {
	engine := NewRuleEngine()
	now := time.Now().UTC()

	peers := make([]models.BacklinkSignal, 10)
	for i := range peers {
		peers[i].SourceURL = "url"
		peers[i].IP = "10.0.0.1"
	}
	agg := BuildNetworkAggregate(peers, now)

	b := &models.BacklinkSignal{IP: "10.0.0.1", BacklinkSpamScore: intp(85)}
	scores := engine.Evaluate(b, agg)

	spam, _ := scores.Get(RuleSpamScore)
	sharedIP, _ := scores.Get(RuleSharedIPNetwork)
	if math.Abs(spam-0.3*1.2) > 1e-9 {
		t.Errorf("chained spam rule = %v, want %v", spam, 0.3*1.2)
	}
	if math.Abs(sharedIP-0.3*1.2) > 1e-9 {
		t.Errorf("chained shared_ip rule = %v, want %v", sharedIP, 0.3*1.2)
	}
}

func TestChaining_DomainQualityMultipliersCompound(t *testing.T) {
	engine := NewRuleEngine()
	now := time.Now().UTC()

	// Registrar cluster (1.3x) and IP cluster (1.2x) both amplify
	// domain_quality, and the second multiplier applies to the first's result.
	peers := make([]models.BacklinkSignal, 10)
	for i := range peers {
		peers[i].SourceURL = "url"
		peers[i].IP = "10.0.0.1"
		peers[i].WhoisRegistrar = "BulkRegistrar"
	}
	agg := BuildNetworkAggregate(peers, now)

	b := &models.BacklinkSignal{
		IP:             "10.0.0.1",
		WhoisRegistrar: "BulkRegistrar",
		DomainRank:     10,
		DomainAgeDays:  30,
	}
	scores := engine.Evaluate(b, agg)

	domain, _ := scores.Get(RuleDomainQuality)
	expected := 0.25 * 1.3 * 1.2
	if math.Abs(domain-expected) > 1e-9 {
		t.Errorf("chained domain_quality = %v, want %v", domain, expected)
	}
}

func TestRuleScores_NamesPreserveEvaluationOrder(t *testing.T) {
	engine := NewRuleEngine()
	now := time.Now().UTC()

	peers := make([]models.BacklinkSignal, 10)
	for i := range peers {
		peers[i].SourceURL = "url"
		peers[i].IP = "10.0.0.1"
	}
	agg := BuildNetworkAggregate(peers, now)

	b := &models.BacklinkSignal{
		IP:                "10.0.0.1",
		Anchor:            "cheap casino chips",
		DomainRank:        10,
		DomainAgeDays:     30,
		BacklinkSpamScore: intp(85),
	}
	scores := engine.Evaluate(b, agg)

	expected := []string{
		RuleSharedIPNetwork,
		RuleAnchorQuality,
		RuleDomainQuality,
		RuleCompositeRisk,
		RuleSpamScore,
	}
	names := scores.Names()
	if len(names) != len(expected) {
		t.Fatalf("Expected %d rules, got %d: %v", len(expected), len(names), names)
	}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("rule[%d] = %q, want %q", i, names[i], want)
		}
	}
}

func TestRuleScores_SumMatchesMap(t *testing.T) {
	scores := newRuleScores()
	scores.add(RuleAnchorQuality, 0.2)
	scores.add(RuleSpamScore, 0.3)

	if math.Abs(scores.Sum()-0.5) > 1e-9 {
		t.Errorf("Sum = %v, want 0.5", scores.Sum())
	}
	m := scores.Map()
	if len(m) != 2 || m[RuleAnchorQuality] != 0.2 {
		t.Errorf("Map copy mismatch: %v", m)
	}
}
