package heuristics

import (
	"math"
	"time"

	"github.com/rankforge/pbn-detector/pkg/models"
)

// EnhancedFeatureExtractor computes the advisory temporal, graph and
// statistical features. Its contract is additive only: each feature above
// its threshold bumps the base probability, and any failure degrades to an
// absent feature instead of surfacing.
type EnhancedFeatureExtractor struct{}

// NewEnhancedFeatureExtractor builds the extractor.
func NewEnhancedFeatureExtractor() *EnhancedFeatureExtractor {
	return &EnhancedFeatureExtractor{}
}

// ExtractAll returns the full enhanced feature map for one backlink.
func (e *EnhancedFeatureExtractor) ExtractAll(
	b *models.BacklinkSignal,
	peers []models.BacklinkSignal,
	now time.Time,
) map[string]float64 {
	features := make(map[string]float64)
	e.extractTemporal(b, peers, now, features)
	e.extractGraph(b, peers, features)
	e.extractStatistical(b, peers, features)
	return features
}

// ApplyBoosts bumps the base probability for each enhanced signal above its
// threshold, capped at 0.99. network_density and age_z_score are echoed in
// the map but carry no boost.
func ApplyBoosts(prob float64, features map[string]float64) float64 {
	if len(features) == 0 {
		return prob
	}

	if features["link_stability"] > 0.6 {
		prob += 0.10
	}
	if features["temporal_clustering"] > 0.5 {
		prob += 0.15
	}
	if features["clustering_coefficient"] > 0.5 {
		prob += 0.10
	}
	if features["rank_z_score"] > 0.7 {
		prob += 0.10
	}
	if features["spam_z_score"] > 0.7 {
		prob += 0.10
	}

	return math.Min(prob, 0.99)
}

// extractTemporal grades link lifespan and burst acquisition. Short-lived
// links and links created alongside many peers are PBN indicators.
func (e *EnhancedFeatureExtractor) extractTemporal(
	b *models.BacklinkSignal,
	peers []models.BacklinkSignal,
	now time.Time,
	features map[string]float64,
) {
	if b.FirstSeen != nil && b.LastSeen != nil {
		lifespanDays := daysSince(*b.LastSeen, *b.FirstSeen)
		switch {
		case lifespanDays > 365:
			features["link_stability"] = 0.1
		case lifespanDays < 30:
			features["link_stability"] = 0.8
		case lifespanDays < 90:
			features["link_stability"] = 0.6
		default:
			features["link_stability"] = 0.3
		}
	} else {
		features["link_stability"] = 0.5
	}

	if b.FirstSeen == nil {
		features["temporal_clustering"] = 0
		return
	}
	ownDays := daysSince(now, *b.FirstSeen)

	samePeriod := 0
	for i := range peers {
		p := &peers[i]
		if p.FirstSeen == nil {
			continue
		}
		peerDays := daysSince(now, *p.FirstSeen)
		if abs(ownDays-peerDays) <= 7 {
			samePeriod++
		}
	}

	ratio := float64(samePeriod) / float64(max(len(peers), 1))
	features["temporal_clustering"] = math.Min(ratio*2, 1.0)
}

// extractGraph measures how interconnected the shared-IP neighborhood is.
// Domains co-hosted on the backlink's IP are its neighbors; neighbor pairs
// that share any IP count as edges.
func (e *EnhancedFeatureExtractor) extractGraph(
	b *models.BacklinkSignal,
	peers []models.BacklinkSignal,
	features map[string]float64,
) {
	ipDomains := make(map[string]map[string]bool)
	domainIPs := make(map[string]map[string]bool)
	for i := range peers {
		p := &peers[i]
		if p.IP == "" {
			continue
		}
		domain := p.DomainFrom
		if domain == "" {
			domain = p.SourceURL
		}
		if ipDomains[p.IP] == nil {
			ipDomains[p.IP] = make(map[string]bool)
		}
		ipDomains[p.IP][domain] = true
		if domainIPs[domain] == nil {
			domainIPs[domain] = make(map[string]bool)
		}
		domainIPs[domain][p.IP] = true
	}

	features["clustering_coefficient"] = 0
	if b.IP != "" {
		if neighbors := ipDomains[b.IP]; len(neighbors) > 1 {
			names := make([]string, 0, len(neighbors))
			for d := range neighbors {
				names = append(names, d)
			}
			edges := 0
			for _, d1 := range names {
				for _, d2 := range names {
					if d1 != d2 && shareAnyIP(domainIPs[d1], domainIPs[d2]) {
						edges++
					}
				}
			}
			n := len(names)
			maxEdges := n * (n - 1)
			coeff := float64(2*edges) / float64(maxEdges)
			features["clustering_coefficient"] = math.Min(coeff, 1.0)
		}
	}

	totalIPs := len(ipDomains)
	totalDomains := len(domainIPs)
	if totalIPs > 0 && totalDomains > 0 {
		density := float64(totalIPs) / float64(totalIPs*totalDomains)
		features["network_density"] = math.Min(density*10, 1.0)
	} else {
		features["network_density"] = 0
	}
}

// extractStatistical flags outliers: how far the backlink sits from the
// batch distribution of rank, age and spam score, normalized by 3σ.
func (e *EnhancedFeatureExtractor) extractStatistical(
	b *models.BacklinkSignal,
	peers []models.BacklinkSignal,
	features map[string]float64,
) {
	var ranks, ages, spams []float64
	for i := range peers {
		p := &peers[i]
		if p.DomainRank > 0 {
			ranks = append(ranks, p.DomainRank)
		}
		if p.DomainAgeDays > 0 {
			ages = append(ages, float64(p.DomainAgeDays))
		}
		if score, ok := p.SpamScore(); ok {
			spams = append(spams, float64(score))
		}
	}

	features["rank_z_score"] = 0
	if b.DomainRank > 0 {
		features["rank_z_score"] = normalizedZScore(b.DomainRank, ranks)
	}
	features["age_z_score"] = 0
	if b.DomainAgeDays > 0 {
		features["age_z_score"] = normalizedZScore(float64(b.DomainAgeDays), ages)
	}
	features["spam_z_score"] = 0
	if score, ok := b.SpamScore(); ok {
		features["spam_z_score"] = normalizedZScore(float64(score), spams)
	}
}

func normalizedZScore(value float64, population []float64) float64 {
	if len(population) == 0 {
		return 0
	}
	std := stddev(population)
	if std == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range population {
		mean += v
	}
	mean /= float64(len(population))
	z := math.Abs((value - mean) / std)
	return math.Min(z/3.0, 1.0)
}

func shareAnyIP(a, b map[string]bool) bool {
	for ip := range a {
		if b[ip] {
			return true
		}
	}
	return false
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
