package heuristics

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/rankforge/pbn-detector/internal/config"
	"github.com/rankforge/pbn-detector/pkg/models"
)

// Assembler reason names added on top of the rule set.
const (
	ReasonSafeBrowsingFlagged   = "safe_browsing_flagged"
	ReasonContentSimilarityHigh = "content_similarity_high"
	ReasonBaselineScore         = "baseline_score"
)

// Assembler blend weights. The rule share grows for high-risk signals
// (spam score ≥ 60 or a top-20 domain rank); the base classifier absorbs
// whatever the rules and content similarity leave.
const (
	assemblerRuleWeight         = 0.30
	assemblerRuleWeightHighRisk = 0.40
	assemblerContentWeight      = 0.15
	safeBrowsingRuleBoost       = 0.3
)

// Detector is the single-shot scoring core: engines are assembled once at
// startup and used read-only for every request.
type Detector struct {
	settings   config.Settings
	features   *FeatureExtractor
	rules      *RuleEngine
	classifier *ClassifierService
	ensemble   *EnsembleClassifier
	enhanced   *EnhancedFeatureExtractor
	similarity *ContentSimilarityService
	thresholds *AdaptiveThresholds
}

// NewDetector wires the scoring engines. Both caches may be nil.
func NewDetector(
	settings config.Settings,
	classifier *ClassifierService,
	patternCache PatternScoreCache,
	similarityCache SimilarityCache,
) *Detector {
	return &Detector{
		settings:   settings,
		features:   NewFeatureExtractor(patternCache),
		rules:      NewRuleEngine(),
		classifier: classifier,
		ensemble:   NewEnsembleClassifier(classifier),
		enhanced:   NewEnhancedFeatureExtractor(),
		similarity: NewContentSimilarityService(settings.MinhashThreshold, similarityCache),
		thresholds: NewAdaptiveThresholds(settings.HighRiskThreshold, settings.MediumRiskThreshold),
	}
}

// ModelVersion reports the active classifier variant for DetectionMeta.
func (d *Detector) ModelVersion() string {
	return d.classifier.ModelVersion()
}

// UsesLearnedModel reports whether the learned model artifact loaded.
func (d *Detector) UsesLearnedModel() bool {
	return d.classifier.UsesLearnedModel()
}

// Result is one completed batch detection.
type Result struct {
	Items             []models.DetectionItem
	Summary           models.DetectionSummary
	ContentSimilarity float64
	Thresholds        Thresholds
}

// Detect scores the batch. Items come back in input order regardless of the
// fan-out regime. domainCtx is the optional per-domain aggregate for the
// adaptive thresholds; the only error Detect returns is caller cancellation,
// in which case partial results are discarded.
func (d *Detector) Detect(
	ctx context.Context,
	req *models.DetectionRequest,
	domainCtx *models.DomainContext,
) (*Result, error) {
	peers := req.Backlinks
	now := time.Now().UTC()

	agg := BuildNetworkAggregate(peers, now)

	contentSimilarity := d.networkContentSimilarity(req.TaskID, peers)

	thresholds := d.thresholds.Base()
	if d.settings.UseEnsemble || d.settings.UseEnhancedFeatures {
		thresholds = d.thresholds.Adjust(len(peers), domainCtx)
	}

	useParallel := d.settings.UseParallelProcessing && len(peers) > d.settings.ParallelThreshold

	var enhancedByIndex []map[string]float64
	if d.settings.UseEnhancedFeatures {
		enhancedByIndex = make([]map[string]float64, len(peers))
		extract := func(i int) {
			enhancedByIndex[i] = d.safeEnhanced(&peers[i], peers, now)
		}
		if useParallel {
			if err := d.runIndexed(ctx, len(peers), extract); err != nil {
				return nil, err
			}
		} else {
			for i := range peers {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				extract(i)
			}
		}
	}

	items := make([]models.DetectionItem, len(peers))
	score := func(i int) {
		var enhanced map[string]float64
		if enhancedByIndex != nil {
			enhanced = enhancedByIndex[i]
		}
		items[i] = d.scoreBacklink(&peers[i], agg, enhanced, contentSimilarity, thresholds)
	}

	if useParallel {
		if err := d.runIndexed(ctx, len(peers), score); err != nil {
			return nil, err
		}
	} else {
		for i := range peers {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			score(i)
		}
	}

	// Summary is reduced after join so no counter crosses worker boundaries.
	var summary models.DetectionSummary
	for i := range items {
		switch items[i].RiskLevel {
		case "high":
			summary.HighRiskCount++
		case "medium":
			summary.MediumRiskCount++
		default:
			summary.LowRiskCount++
		}
	}

	return &Result{
		Items:             items,
		Summary:           summary,
		ContentSimilarity: contentSimilarity,
		Thresholds:        thresholds,
	}, nil
}

// scoreBacklink runs the per-item pipeline: features → base probability →
// rules → ensemble → enhanced boosts → assembly. Each stage degrades to a
// neutral value on failure; an item is always emitted.
func (d *Detector) scoreBacklink(
	b *models.BacklinkSignal,
	agg *NetworkAggregate,
	enhanced map[string]float64,
	contentSimilarity float64,
	thresholds Thresholds,
) models.DetectionItem {
	features, probability := d.safeBaseScore(b, agg)

	rules := d.safeRules(b, agg)
	rulesBoost := rules.Sum()

	if d.settings.UseEnsemble {
		probability, _ = d.ensemble.Predict(features, b, rules, probability)
	}

	// Enhancements land after the blend so the advisory boosts survive it.
	if d.settings.UseEnhancedFeatures && len(enhanced) > 0 {
		probability = ApplyBoosts(probability, enhanced)
	}

	reasons := append([]string(nil), rules.Names()...)

	if b.SafeBrowsingStatus == "flagged" {
		rulesBoost += safeBrowsingRuleBoost
		reasons = append(reasons, ReasonSafeBrowsingFlagged)
	}

	ruleWeight := assemblerRuleWeight
	spamScore, hasSpam := b.SpamScore()
	isHighRiskSignal := (hasSpam && spamScore >= 60) ||
		(b.DomainRank > 0 && b.DomainRank < 20)
	if isHighRiskSignal {
		ruleWeight = assemblerRuleWeightHighRisk
	}
	baseWeight := 1.0 - ruleWeight - assemblerContentWeight

	normalizedRuleBoost := math.Min(rulesBoost, 1.0)

	boosted := probability*baseWeight +
		normalizedRuleBoost*ruleWeight +
		contentSimilarity*assemblerContentWeight

	if isHighRiskSignal && normalizedRuleBoost > 0 {
		if rules.Has(RuleSpamScore) && rules.Has(RuleDomainQuality) {
			boosted += 0.25
		} else if normalizedRuleBoost >= 0.3 {
			boosted += 0.15
		}
	}

	boosted = clamp(boosted, 0, 0.999)
	risk := thresholds.Classify(boosted)

	if contentSimilarity >= d.settings.MinhashThreshold {
		reasons = append(reasons, ReasonContentSimilarityHigh)
	}
	if len(reasons) == 0 {
		reasons = []string{ReasonBaselineScore}
	}

	return models.DetectionItem{
		SourceURL:      b.SourceURL,
		PBNProbability: math.Round(boosted*10000) / 10000,
		RiskLevel:      risk,
		Reasons:        reasons,
		Signals: map[string]any{
			"ip":                    b.IP,
			"whois_registrar":       b.WhoisRegistrar,
			"domain_age_days":       b.DomainAgeDays,
			"domain_rank":           b.DomainRank,
			"content_similarity":    contentSimilarity,
			"rules":                 rules.Map(),
			"safe_browsing_status":  b.SafeBrowsingStatus,
			"safe_browsing_threats": b.SafeBrowsingThreats,
			"backlink_spam_score":   b.BacklinkSpamScore,
		},
	}
}

// safeBaseScore isolates feature extraction and classification; on failure
// the item continues with a neutral 0.5 probability.
func (d *Detector) safeBaseScore(b *models.BacklinkSignal, agg *NetworkAggregate) (features FeatureVector, prob float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[detect] base scoring failed for %s: %v", b.SourceURL, r)
			prob = 0.5
		}
	}()
	features = d.features.BuildVector(b, agg)
	prob = d.classifier.Predict(features, b)
	return features, prob
}

// safeRules isolates rule evaluation; on failure the item carries no rules.
func (d *Detector) safeRules(b *models.BacklinkSignal, agg *NetworkAggregate) (rules *RuleScores) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[detect] rule evaluation failed for %s: %v", b.SourceURL, r)
			rules = newRuleScores()
		}
	}()
	return d.rules.Evaluate(b, agg)
}

// safeEnhanced isolates the advisory extractor; on failure the item simply
// receives no enhanced boosts.
func (d *Detector) safeEnhanced(b *models.BacklinkSignal, peers []models.BacklinkSignal, now time.Time) (features map[string]float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[detect] enhanced feature extraction failed for %s: %v", b.SourceURL, r)
			features = nil
		}
	}()
	return d.enhanced.ExtractAll(b, peers, now)
}

// networkContentSimilarity computes the batch duplication ratio; any failure
// degrades to 0.0 and is logged, never propagated.
func (d *Detector) networkContentSimilarity(taskID string, peers []models.BacklinkSignal) (ratio float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[detect] content similarity failed task=%s: %v", taskID, r)
			ratio = 0
		}
	}()
	snippets := make([]string, len(peers))
	for i := range peers {
		snippets[i] = peers[i].Snippet()
	}
	return d.similarity.DetectDuplicates(snippets)
}

// runIndexed fans the index range out over the bounded worker pool. Workers
// stop picking up work once the context is cancelled; the caller discards
// partial output on a non-nil return.
func (d *Detector) runIndexed(ctx context.Context, n int, fn func(i int)) error {
	workers := d.settings.ParallelWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				fn(i)
			}
		}()
	}

feed:
	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return ctx.Err()
}
