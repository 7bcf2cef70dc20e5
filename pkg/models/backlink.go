package models

import "time"

// BacklinkSignal is one observed backlink pointing at the target domain,
// already enriched upstream (WHOIS, IP, safe browsing). It is immutable for
// the lifetime of a detection request.
//
// Optional numeric fields follow the enrichment pipeline's convention:
// a zero domain_rank / domain_age_days means "unknown" and never satisfies
// rank/age rule guards. The spam score distinguishes absent (nil) from an
// explicit 0, because an unknown score is treated as neutral (0.5 normalized).
type BacklinkSignal struct {
	SourceURL           string           `json:"source_url"`
	DomainFrom          string           `json:"domain_from,omitempty"`
	Anchor              string           `json:"anchor,omitempty"`
	LinkType            string           `json:"link_type,omitempty"`
	DomainRank          float64          `json:"domain_rank,omitempty"` // lower = more authoritative
	IP                  string           `json:"ip,omitempty"`
	WhoisRegistrar      string           `json:"whois_registrar,omitempty"`
	DomainAgeDays       int              `json:"domain_age_days,omitempty"`
	FirstSeen           *time.Time       `json:"first_seen,omitempty"` // naive timestamps are read as UTC
	LastSeen            *time.Time       `json:"last_seen,omitempty"`
	Dofollow            bool             `json:"dofollow,omitempty"`
	LinksCount          int              `json:"links_count,omitempty"`
	Raw                 map[string]any   `json:"raw,omitempty"` // text_pre / text_post feed content similarity
	SafeBrowsingStatus  string           `json:"safe_browsing_status,omitempty"` // "clean", "flagged" or empty
	SafeBrowsingThreats []map[string]any `json:"safe_browsing_threats,omitempty"`
	BacklinkSpamScore   *int             `json:"backlink_spam_score,omitempty"` // 0-100
}

// Snippet returns the surrounding-text snippet used for content similarity.
func (b *BacklinkSignal) Snippet() string {
	pre, _ := b.Raw["text_pre"].(string)
	post, _ := b.Raw["text_post"].(string)
	return pre + " " + post
}

// SpamScore returns the spam score and whether it was present.
func (b *BacklinkSignal) SpamScore() (int, bool) {
	if b.BacklinkSpamScore == nil {
		return 0, false
	}
	return *b.BacklinkSpamScore, true
}

// DetectionRequest is the POST /detect envelope.
type DetectionRequest struct {
	Domain    string           `json:"domain" binding:"required"`
	TaskID    string           `json:"task_id" binding:"required"`
	Backlinks []BacklinkSignal `json:"backlinks"`
	Summary   map[string]any   `json:"summary"` // opaque upstream summary, not echoed
}

// DetectionItem is the per-backlink verdict.
type DetectionItem struct {
	SourceURL      string         `json:"source_url"`
	PBNProbability float64        `json:"pbn_probability"` // [0, 0.999]
	RiskLevel      string         `json:"risk_level"`      // "low", "medium", "high"
	Reasons        []string       `json:"reasons"`         // rule names in evaluation order
	Signals        map[string]any `json:"signals"`         // diagnostic echo, consumers ignore unknown keys
}

// DetectionSummary counts items per risk level; the three counters always
// sum to len(items).
type DetectionSummary struct {
	HighRiskCount   int `json:"high_risk_count"`
	MediumRiskCount int `json:"medium_risk_count"`
	LowRiskCount    int `json:"low_risk_count"`
}

// DetectionMeta carries request-level bookkeeping.
type DetectionMeta struct {
	LatencyMs    int    `json:"latency_ms"`
	ModelVersion string `json:"model_version"` // "lr-1.0" or "lightweight-v1.0"
}

// DetectionResponse is the POST /detect result envelope.
type DetectionResponse struct {
	Domain      string           `json:"domain"`
	TaskID      string           `json:"task_id"`
	GeneratedAt time.Time        `json:"generated_at"`
	Items       []DetectionItem  `json:"items"` // same length and order as request backlinks
	Summary     DetectionSummary `json:"summary"`
	Meta        DetectionMeta    `json:"meta"`
}

// DomainContext is the optional per-domain aggregate consulted by the
// adaptive-thresholds pass. It lives in Postgres when a DATABASE_URL is
// configured and is entirely advisory.
type DomainContext struct {
	Domain            string  `json:"domain"`
	DomainAuthority   float64 `json:"domain_authority"`
	HistoricalPBNRate float64 `json:"historical_pbn_rate"`
	TotalScored       int64   `json:"total_scored"`
	TotalHighRisk     int64   `json:"total_high_risk"`
}

// DetectionAlert is the websocket frame broadcast for high-risk items.
type DetectionAlert struct {
	RequestID      string  `json:"request_id"`
	TaskID         string  `json:"task_id"`
	Domain         string  `json:"domain"`
	SourceURL      string  `json:"source_url"`
	PBNProbability float64 `json:"pbn_probability"`
	RiskLevel      string  `json:"risk_level"`
}
