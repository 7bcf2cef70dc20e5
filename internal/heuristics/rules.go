package heuristics

import (
	"regexp"
	"strings"

	"github.com/rankforge/pbn-detector/pkg/models"
)

// Rule names form a closed set; reasons lists only ever contain these plus
// the assembler's "safe_browsing_flagged", "content_similarity_high" and
// "baseline_score".
const (
	RuleSharedIPNetwork        = "shared_ip_network"
	RuleSharedRegistrarNetwork = "shared_registrar_network"
	RuleAnchorQuality          = "anchor_quality"
	RuleVelocitySpike          = "velocity_spike"
	RuleDomainQuality          = "domain_quality"
	RuleCompositeRisk          = "composite_risk"
	RuleSpamScore              = "dataforseo_spam_score"
)

// RuleScores is an insertion-ordered {rule → score} map. Evaluation order is
// contractual: the assembler echoes rule names into reasons in the order the
// rules fired.
type RuleScores struct {
	names  []string
	scores map[string]float64
}

func newRuleScores() *RuleScores {
	return &RuleScores{scores: make(map[string]float64)}
}

func (r *RuleScores) add(name string, score float64) {
	if _, ok := r.scores[name]; !ok {
		r.names = append(r.names, name)
	}
	r.scores[name] = score
}

// Get returns the score for a rule and whether it fired.
func (r *RuleScores) Get(name string) (float64, bool) {
	s, ok := r.scores[name]
	return s, ok
}

// Has reports whether the rule fired.
func (r *RuleScores) Has(name string) bool {
	_, ok := r.scores[name]
	return ok
}

// Names returns rule names in evaluation order.
func (r *RuleScores) Names() []string {
	return r.names
}

// Len returns the number of fired rules.
func (r *RuleScores) Len() int {
	return len(r.names)
}

// Sum adds up all fired rule scores.
func (r *RuleScores) Sum() float64 {
	total := 0.0
	for _, s := range r.scores {
		total += s
	}
	return total
}

// Map returns a plain map copy for the diagnostic signals bag.
func (r *RuleScores) Map() map[string]float64 {
	out := make(map[string]float64, len(r.scores))
	for k, v := range r.scores {
		out[k] = v
	}
	return out
}

var (
	ruleHighRiskAnchorTerms = []string{"casino", "poker", "adult", "viagra", "cialis", "loan", "debt"}
	ruleMoneyAnchorTerms    = []string{"buy", "cheap", "discount", "free"}
	ruleAnchorPatternTerms  = []string{"!!!", "$$$", "click here"}
	ruleCompositeTerms      = []string{"buy", "cheap", "casino"}

	digitRunPattern = regexp.MustCompile(`\d{4,}`)
)

// RuleEngine evaluates the independent heuristic rules against a backlink and
// the precomputed aggregate, then applies the chaining multipliers. It is a
// stateless singleton.
type RuleEngine struct{}

// NewRuleEngine builds the engine.
func NewRuleEngine() *RuleEngine {
	return &RuleEngine{}
}

// Evaluate returns the ordered {rule → score ∈ [0,1]} map of triggered rules.
func (e *RuleEngine) Evaluate(b *models.BacklinkSignal, agg *NetworkAggregate) *RuleScores {
	scores := newRuleScores()

	if s := e.sharedIPScore(b, agg); s > 0 {
		scores.add(RuleSharedIPNetwork, s)
	}
	if s := e.sharedRegistrarScore(b, agg); s > 0 {
		scores.add(RuleSharedRegistrarNetwork, s)
	}
	if s := e.anchorQualityScore(b); s > 0 {
		scores.add(RuleAnchorQuality, s)
	}
	if s := e.velocitySpikeScore(agg); s > 0 {
		scores.add(RuleVelocitySpike, s)
	}
	if s := e.domainQualityScore(b); s > 0 {
		scores.add(RuleDomainQuality, s)
	}
	if s := e.compositeRiskScore(b, agg); s > 0 {
		scores.add(RuleCompositeRisk, s)
	}
	if s := e.spamScoreRule(b); s > 0 {
		scores.add(RuleSpamScore, s)
	}

	e.applyChaining(scores)
	return scores
}

// applyChaining re-weights named rules when specific co-occurrences indicate
// a composite pattern. Applied once, after initial evaluation.
func (e *RuleEngine) applyChaining(scores *RuleScores) {
	spam, hasSpam := scores.Get(RuleSpamScore)
	sharedIP, hasSharedIP := scores.Get(RuleSharedIPNetwork)
	domain, hasDomain := scores.Get(RuleDomainQuality)

	// spam_network: spam score + IP clustering boost each other
	if hasSpam && hasSharedIP {
		scores.scores[RuleSpamScore] = spam * 1.2
		scores.scores[RuleSharedIPNetwork] = sharedIP * 1.2
	}
	// new_domain_cluster: registrar clustering amplifies domain quality
	if scores.Has(RuleSharedRegistrarNetwork) && hasDomain {
		domain *= 1.3
		scores.scores[RuleDomainQuality] = domain
	}
	// high_risk_network: IP clustering amplifies domain quality
	if hasSharedIP && hasDomain {
		scores.scores[RuleDomainQuality] = domain * 1.2
	}
}

func (e *RuleEngine) sharedIPScore(b *models.BacklinkSignal, agg *NetworkAggregate) float64 {
	count, share := agg.IPShare(b.IP)
	switch {
	case count >= 10 && share >= 0.4:
		return 0.3
	case count >= 5 && share >= 0.2:
		return 0.2
	case count >= 3:
		return 0.1
	}
	return 0
}

func (e *RuleEngine) sharedRegistrarScore(b *models.BacklinkSignal, agg *NetworkAggregate) float64 {
	count, share := agg.RegistrarShare(b.WhoisRegistrar)
	switch {
	case count >= 10 && share >= 0.4:
		return 0.25
	case count >= 5 && share >= 0.2:
		return 0.15
	case count >= 3:
		return 0.1
	}
	return 0
}

func (e *RuleEngine) anchorQualityScore(b *models.BacklinkSignal) float64 {
	if b.Anchor == "" {
		return 0
	}
	lower := strings.ToLower(b.Anchor)
	for _, term := range ruleHighRiskAnchorTerms {
		if strings.Contains(lower, term) {
			return 0.3
		}
	}
	for _, term := range ruleMoneyAnchorTerms {
		if strings.Contains(lower, term) {
			return 0.2
		}
	}
	for _, term := range ruleAnchorPatternTerms {
		if strings.Contains(lower, term) {
			return 0.15
		}
	}
	return 0
}

// velocitySpikeScore is a batch-level signal: the widest window holding at
// least half of the batch decides the score.
func (e *RuleEngine) velocitySpikeScore(agg *NetworkAggregate) float64 {
	if agg.TotalPeers == 0 {
		return 0
	}
	windows := []struct {
		days int
		base float64
	}{{7, 0.2}, {30, 0.15}, {90, 0.1}}

	max := 0.0
	for _, w := range windows {
		if agg.WindowShare(w.days) >= 0.5 && w.base > max {
			max = w.base
		}
	}
	return max
}

func (e *RuleEngine) domainQualityScore(b *models.BacklinkSignal) float64 {
	score := 0.0
	if b.DomainRank > 0 && b.DomainRank < 50 {
		score += 0.15
	}
	if b.DomainAgeDays > 0 && b.DomainAgeDays < 180 {
		score += 0.1
	}
	if d := strings.ToLower(b.DomainFrom); d != "" {
		if digitRunPattern.MatchString(d) || len(d) < 6 {
			score += 0.1
		}
	}
	if score > 0.25 {
		score = 0.25
	}
	return score
}

func (e *RuleEngine) compositeRiskScore(b *models.BacklinkSignal, agg *NetworkAggregate) float64 {
	factors := 0

	if b.DomainRank > 0 && b.DomainRank < 200 && b.DomainAgeDays > 0 && b.DomainAgeDays < 365 {
		factors++
	}
	if count, _ := agg.IPShare(b.IP); count >= 3 {
		factors++
	}
	if b.Anchor != "" {
		lower := strings.ToLower(b.Anchor)
		for _, term := range ruleCompositeTerms {
			if strings.Contains(lower, term) {
				factors++
				break
			}
		}
	}

	switch {
	case factors >= 3:
		return 0.2
	case factors >= 2:
		return 0.12
	case factors >= 1:
		return 0.05
	}
	return 0
}

// spamScoreRule grades the upstream spam score through a fuzzy membership
// curve so scores near a band edge transition smoothly.
func (e *RuleEngine) spamScoreRule(b *models.BacklinkSignal) float64 {
	score, ok := b.SpamScore()
	if !ok {
		return 0
	}

	membership := highSpamMembership(score)
	switch {
	case membership >= 0.9:
		return 0.3
	case membership >= 0.5:
		return 0.2
	case membership > 0:
		return 0.1
	}
	return 0
}

// highSpamMembership: 1 at ≥80, linear 0.5→1 on [60,80), linear 0→0.5 on
// [40,60), 0 below 40.
func highSpamMembership(score int) float64 {
	switch {
	case score >= 80:
		return 1.0
	case score >= 60:
		return 0.5 + (float64(score-60)/20.0)*0.5
	case score >= 40:
		return (float64(score-40) / 20.0) * 0.5
	}
	return 0
}
