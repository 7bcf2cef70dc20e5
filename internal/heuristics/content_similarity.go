package heuristics

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"math/bits"
	"strings"
)

const (
	minhashPermutations = 128
	shingleSize         = 4

	// LSH banding over the 128-slot signature: 16 bands of 8 rows puts the
	// candidate-pair probability curve's steep section around ~0.7, a good
	// fit for the default 0.8 threshold.
	lshBands   = 16
	lshRows    = 8
	mersenne61 = (1 << 61) - 1
)

// allPairsLimit: below this batch size brute-force all-pairs Jaccard is
// cheaper than building the LSH index.
const allPairsLimit = 11

// minhashSignature is the 128-permutation sketch of one snippet's 4-gram
// shingle set. An empty flag marks snippets too short to shingle; two empty
// sketches are considered identical, an empty and a non-empty one disjoint.
type minhashSignature struct {
	slots [minhashPermutations]uint64
	empty bool
}

// permutation coefficients, derived once from a fixed seed so signatures are
// bit-identical across processes and runs.
var permA, permB = buildPermutations()

func buildPermutations() (a, b [minhashPermutations]uint64) {
	state := uint64(0x9e3779b97f4a7c15)
	next := func() uint64 {
		// splitmix64
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		return z ^ (z >> 31)
	}
	for i := 0; i < minhashPermutations; i++ {
		a[i] = next()%(mersenne61-1) + 1
		b[i] = next() % mersenne61
	}
	return a, b
}

// SimilarityCache memoizes the batch duplication ratio. Value-only: a hit
// must return exactly what a fresh computation would.
type SimilarityCache interface {
	GetRatio(key string) (float64, bool)
	SetRatio(key string, ratio float64)
}

// ContentSimilarityService computes the network-wide content duplication
// ratio over surrounding-text snippets. Deterministic; any internal failure
// degrades to 0.0 at the call site.
type ContentSimilarityService struct {
	threshold float64
	cache     SimilarityCache // optional, nil-safe
}

// NewContentSimilarityService builds the service. cache may be nil.
func NewContentSimilarityService(threshold float64, cache SimilarityCache) *ContentSimilarityService {
	return &ContentSimilarityService{threshold: threshold, cache: cache}
}

// DetectDuplicates returns the duplication ratio in [0,1] for the batch:
// the fraction of compared snippet pairs whose estimated Jaccard similarity
// clears the threshold. Fewer than two snippets cannot duplicate anything.
func (s *ContentSimilarityService) DetectDuplicates(snippets []string) float64 {
	if len(snippets) < 2 {
		return 0
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = s.snippetsDigest(snippets)
		if ratio, ok := s.cache.GetRatio(cacheKey); ok {
			return ratio
		}
	}

	signatures := make([]minhashSignature, len(snippets))
	for i, text := range snippets {
		signatures[i] = buildSignature(text)
	}

	var ratio float64
	if len(snippets) < allPairsLimit {
		ratio = s.allPairsRatio(signatures)
	} else {
		ratio = s.lshRatio(signatures)
	}

	if s.cache != nil {
		s.cache.SetRatio(cacheKey, ratio)
	}
	return ratio
}

// Similarity estimates the Jaccard similarity of two texts.
func (s *ContentSimilarityService) Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return estimateJaccard(buildSignature(a), buildSignature(b))
}

func (s *ContentSimilarityService) allPairsRatio(signatures []minhashSignature) float64 {
	matches, comparisons := 0, 0
	for i := 0; i < len(signatures); i++ {
		for j := i + 1; j < len(signatures); j++ {
			comparisons++
			if estimateJaccard(signatures[i], signatures[j]) >= s.threshold {
				matches++
			}
		}
	}
	if comparisons == 0 {
		return 0
	}
	return float64(matches) / float64(comparisons)
}

// lshRatio buckets signatures by band digest and compares only candidate
// pairs that collide in at least one band.
func (s *ContentSimilarityService) lshRatio(signatures []minhashSignature) float64 {
	type pair struct{ i, j int }
	candidates := make(map[pair]bool)

	for band := 0; band < lshBands; band++ {
		buckets := make(map[string][]int)
		for idx := range signatures {
			key := bandKey(&signatures[idx], band)
			buckets[key] = append(buckets[key], idx)
		}
		for _, members := range buckets {
			for x := 0; x < len(members); x++ {
				for y := x + 1; y < len(members); y++ {
					candidates[pair{members[x], members[y]}] = true
				}
			}
		}
	}

	if len(candidates) == 0 {
		return 0
	}

	matches := 0
	for p := range candidates {
		if estimateJaccard(signatures[p.i], signatures[p.j]) >= s.threshold {
			matches++
		}
	}
	return float64(matches) / float64(len(candidates))
}

func (s *ContentSimilarityService) snippetsDigest(snippets []string) string {
	h := sha1.New()
	for _, text := range snippets {
		h.Write([]byte(text))
		h.Write([]byte{0})
	}
	fmt.Fprintf(h, "t=%.4f", s.threshold)
	return "minhash:" + hex.EncodeToString(h.Sum(nil))
}

// buildSignature sketches the 4-gram shingles of the whitespace tokens.
func buildSignature(text string) minhashSignature {
	var sig minhashSignature
	for i := range sig.slots {
		sig.slots[i] = mersenne61
	}

	tokens := strings.Fields(text)
	if len(tokens) < shingleSize {
		sig.empty = true
		return sig
	}

	for i := 0; i+shingleSize <= len(tokens); i++ {
		shingle := strings.Join(tokens[i:i+shingleSize], " ")
		h := fnv.New64a()
		h.Write([]byte(shingle))
		base := h.Sum64() % mersenne61

		for p := 0; p < minhashPermutations; p++ {
			v := mulmod61(permA[p], base) + permB[p]
			if v >= mersenne61 {
				v -= mersenne61
			}
			if v < sig.slots[p] {
				sig.slots[p] = v
			}
		}
	}
	return sig
}

// estimateJaccard is the fraction of matching signature slots.
func estimateJaccard(a, b minhashSignature) float64 {
	if a.empty || b.empty {
		if a.empty && b.empty {
			return 1.0
		}
		return 0
	}
	equal := 0
	for i := range a.slots {
		if a.slots[i] == b.slots[i] {
			equal++
		}
	}
	return float64(equal) / float64(minhashPermutations)
}

func bandKey(sig *minhashSignature, band int) string {
	if sig.empty {
		return "empty"
	}
	var sb strings.Builder
	start := band * lshRows
	for i := start; i < start+lshRows; i++ {
		fmt.Fprintf(&sb, "%x.", sig.slots[i])
	}
	return sb.String()
}

// mulmod61 multiplies modulo the Mersenne prime 2^61-1 without overflow by
// folding the 128-bit product back into 61 bits.
func mulmod61(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	res := (lo & mersenne61) + (lo >> 61) + (hi << 3)
	for res >= mersenne61 {
		res -= mersenne61
	}
	return res
}
