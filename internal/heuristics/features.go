package heuristics

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/rankforge/pbn-detector/pkg/models"
)

// Feature vector layout. Order is load-bearing: the learned model's
// coefficients and the lightweight scorecard both index into it.
const (
	FeatAnchorLength = iota
	FeatMoneyAnchor
	FeatDomainRank
	FeatDofollow
	FeatDomainAge
	FeatIPReuse
	FeatRegistrarReuse
	FeatLinkVelocity
	FeatDomainNameSuspicion
	FeatHostingPattern
	FeatSpamScoreNorm

	FeatureCount = 11
)

// FeatureVector is the fixed 11-dimensional numeric view of one backlink
// against the batch aggregate.
type FeatureVector [FeatureCount]float64

var (
	highRiskAnchorTerms = []string{
		"casino", "poker", "adult", "viagra", "cialis",
		"loan", "debt", "forex", "crypto", "bitcoin",
	}
	mediumRiskAnchorTerms = []string{
		"buy", "cheap", "discount", "free", "click here", "visit now", "order now",
	}
	anchorPatternTerms = []string{"!!!", "$$$", "www.", "http"}

	randomDomainPattern = regexp.MustCompile(`[a-z]{3,}\d{3,}`)
)

// FeatureExtractor turns a backlink plus the shared NetworkAggregate into
// the fixed feature vector. It is a stateless singleton; every method is a
// pure function of its input.
type FeatureExtractor struct {
	patterns PatternScoreCache // optional, advisory; nil-safe
}

// PatternScoreCache memoizes domain-pattern scores. Implementations must be
// value-only: a hit returns exactly what a fresh computation would.
type PatternScoreCache interface {
	GetPatternScore(domain string) (float64, bool)
	SetPatternScore(domain string, score float64)
}

// NewFeatureExtractor builds the extractor. cache may be nil.
func NewFeatureExtractor(cache PatternScoreCache) *FeatureExtractor {
	return &FeatureExtractor{patterns: cache}
}

// BuildVector emits the 11-float feature vector for one backlink.
func (e *FeatureExtractor) BuildVector(b *models.BacklinkSignal, agg *NetworkAggregate) FeatureVector {
	var v FeatureVector

	v[FeatAnchorLength] = float64(len(b.Anchor))
	v[FeatMoneyAnchor] = MoneyAnchorScore(b.Anchor)
	v[FeatDomainRank] = b.DomainRank
	if b.Dofollow {
		v[FeatDofollow] = 1
	}
	v[FeatDomainAge] = float64(b.DomainAgeDays)

	_, ipReuse := agg.IPShare(b.IP)
	_, registrarReuse := agg.RegistrarShare(b.WhoisRegistrar)
	v[FeatIPReuse] = ipReuse
	v[FeatRegistrarReuse] = registrarReuse
	v[FeatLinkVelocity] = e.linkVelocity(b, agg)
	v[FeatDomainNameSuspicion] = e.domainNamePatternScore(b.DomainFrom)
	// Hosting pattern currently proxies IP reuse; reserved for a distinct
	// hosting-provider signal once the enrichment carries one.
	v[FeatHostingPattern] = ipReuse
	v[FeatSpamScoreNorm] = normalizeSpamScore(b)

	return v
}

// MoneyAnchorScore grades commercial/manipulative anchor text. First matching
// clause wins.
func MoneyAnchorScore(anchor string) float64 {
	if anchor == "" {
		return 0
	}
	lower := strings.ToLower(anchor)
	for _, term := range highRiskAnchorTerms {
		if strings.Contains(lower, term) {
			return 1.0
		}
	}
	for _, term := range mediumRiskAnchorTerms {
		if strings.Contains(lower, term) {
			return 0.6
		}
	}
	for _, term := range anchorPatternTerms {
		if strings.Contains(lower, term) {
			return 0.4
		}
	}
	if len(anchor) > 5 && isAllUpper(anchor) {
		return 0.3
	}
	return 0
}

// linkVelocity blends the cumulative window shares. A backlink with no
// first_seen has no velocity signal.
func (e *FeatureExtractor) linkVelocity(b *models.BacklinkSignal, agg *NetworkAggregate) float64 {
	if b.FirstSeen == nil || agg.TotalPeers == 0 {
		return 0
	}
	return 0.5*agg.WindowShare(7) + 0.3*agg.WindowShare(30) + 0.2*agg.WindowShare(90)
}

// domainNamePatternScore sums suspicion cues in the source domain name,
// capped at 1.0: random letter+digit runs, digit-heavy names, unusual
// lengths, and hyphen chains common in PBN inventories.
func (e *FeatureExtractor) domainNamePatternScore(domain string) float64 {
	if domain == "" {
		return 0
	}
	if e.patterns != nil {
		if score, ok := e.patterns.GetPatternScore(domain); ok {
			return score
		}
	}

	lower := strings.ToLower(domain)
	score := 0.0

	if randomDomainPattern.MatchString(lower) {
		score += 0.4
	}

	digits := 0
	for _, r := range lower {
		if unicode.IsDigit(r) {
			digits++
		}
	}
	if float64(digits)/float64(len(lower)) > 0.3 {
		score += 0.3
	}

	if len(lower) < 6 || len(lower) > 30 {
		score += 0.2
	}
	if strings.Count(lower, "-") > 2 {
		score += 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	if e.patterns != nil {
		e.patterns.SetPatternScore(domain, score)
	}
	return score
}

// normalizeSpamScore maps 0-100 into [0,1]; an absent score is neutral.
func normalizeSpamScore(b *models.BacklinkSignal) float64 {
	score, ok := b.SpamScore()
	if !ok {
		return 0.5
	}
	return clamp(float64(score)/100.0, 0, 1)
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
