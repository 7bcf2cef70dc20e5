package heuristics

import (
	"github.com/rankforge/pbn-detector/pkg/models"
)

// LightweightClassifier is the deterministic weighted scorecard used when no
// serialized model is available, and always as the first ensemble arm. Each
// feature maps through a piecewise band table into a sub-score; sub-scores
// combine through fixed weights plus additive and composite boosts.
type LightweightClassifier struct{}

// NewLightweightClassifier builds the scorecard.
func NewLightweightClassifier() *LightweightClassifier {
	return &LightweightClassifier{}
}

const (
	weightDomainRank     = 0.14
	weightDomainAge      = 0.14
	weightIPReuse        = 0.18
	weightRegistrarReuse = 0.14
	weightLinkVelocity   = 0.13
	weightAnchorQuality  = 0.12
	weightDofollow       = 0.05
	weightSafeBrowsing   = 0.08
)

// Predict returns the scorecard probability in [0,1].
func (c *LightweightClassifier) Predict(v FeatureVector, b *models.BacklinkSignal) float64 {
	rank := v[FeatDomainRank]
	age := v[FeatDomainAge]
	ipReuse := v[FeatIPReuse]
	registrarReuse := v[FeatRegistrarReuse]
	velocity := v[FeatLinkVelocity]
	moneyAnchor := v[FeatMoneyAnchor]
	anchorLength := v[FeatAnchorLength]
	suspicion := v[FeatDomainNameSuspicion]
	hosting := v[FeatHostingPattern]
	spamNorm := v[FeatSpamScoreNorm]

	p := domainRankScore(rank)*weightDomainRank +
		domainAgeScore(age)*weightDomainAge +
		reuseScore(ipReuse, 0.9, 0.6, 0.3)*weightIPReuse +
		reuseScore(registrarReuse, 0.8, 0.5, 0.3)*weightRegistrarReuse +
		velocityScore(velocity)*weightLinkVelocity +
		anchorQualitySubScore(moneyAnchor, anchorLength)*weightAnchorQuality +
		dofollowScore(v[FeatDofollow])*weightDofollow +
		safeBrowsingScore(b.SafeBrowsingStatus)*weightSafeBrowsing

	p += suspicion * 0.08
	p += hosting * 0.07
	p += spamNorm * 0.20

	anyReuse := func(threshold float64) bool {
		return ipReuse > threshold || registrarReuse > threshold
	}

	// Composite network signatures apply multiplicatively.
	if rank < 500 && anyReuse(0.3) { // high_risk_network
		p *= 1.20
	}
	if age < 365 && anyReuse(0.2) && velocity > 0.4 { // new_domain_cluster
		p *= 1.15
	}
	spamNetwork := (moneyAnchor > 0.5 && anyReuse(0.2) && suspicion > 0.5) ||
		(spamNorm > 0.6 && anyReuse(0.2)) ||
		spamNorm > 0.8
	if spamNetwork {
		p *= 1.25
	}

	// Final additive tweaks for the strongest single indicators.
	switch {
	case spamNorm > 0.7:
		p += 0.15
	case spamNorm > 0.5:
		p += 0.10
	}
	switch {
	case rank < 10:
		p += 0.10
	case rank < 50:
		p += 0.05
	}

	return clamp(p, 0, 1)
}

// domainRankScore: an unknown (≤0) rank is neutral; low ranks in the source
// convention are the most authoritative and the most abused.
func domainRankScore(rank float64) float64 {
	switch {
	case rank <= 0:
		return 0.5
	case rank < 100:
		return 0.9
	case rank < 500:
		return 0.6
	case rank < 1000:
		return 0.3
	}
	return 0.1
}

func domainAgeScore(days float64) float64 {
	switch {
	case days <= 0:
		return 0.5
	case days < 365:
		return 0.9
	case days < 1095:
		return 0.6
	case days < 3650:
		return 0.3
	}
	return 0.1
}

func reuseScore(ratio, high, mid, low float64) float64 {
	switch {
	case ratio >= 0.3:
		return high
	case ratio >= 0.2:
		return mid
	case ratio >= 0.1:
		return low
	}
	return 0.1
}

func velocityScore(velocity float64) float64 {
	switch {
	case velocity >= 0.5:
		return 0.8
	case velocity >= 0.3:
		return 0.5
	case velocity >= 0.1:
		return 0.3
	}
	return 0.1
}

func anchorQualitySubScore(moneyAnchor, anchorLength float64) float64 {
	switch {
	case moneyAnchor > 0:
		return 0.9
	case anchorLength < 5:
		return 0.6
	case anchorLength > 100:
		return 0.4
	}
	return 0.2
}

func dofollowScore(dofollow float64) float64 {
	if dofollow > 0 {
		return 0.6
	}
	return 0.3
}

func safeBrowsingScore(status string) float64 {
	switch status {
	case "flagged":
		return 0.95
	case "clean":
		return 0.1
	}
	return 0.5
}
