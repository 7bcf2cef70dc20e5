package heuristics

import (
	"time"

	"github.com/rankforge/pbn-detector/pkg/models"
)

// NetworkAggregate holds the batch-level statistics precomputed once per
// request so per-item scoring stays O(1). It is built in a single O(n) pass
// and passed read-only to every worker.
type NetworkAggregate struct {
	IPCounts        map[string]int
	RegistrarCounts map[string]int

	// Cumulative first-seen windows: Velocity7 ⊆ Velocity30 ⊆ Velocity90.
	Velocity7  int
	Velocity30 int
	Velocity90 int

	TotalPeers int
	Now        time.Time
}

// BuildNetworkAggregate runs the single aggregation pass over the batch.
// Empty IPs and registrars contribute nothing; a missing first_seen excludes
// the record from every velocity window. Naive timestamps are read as UTC
// upstream, so the day delta is computed directly against now.
func BuildNetworkAggregate(peers []models.BacklinkSignal, now time.Time) *NetworkAggregate {
	agg := &NetworkAggregate{
		IPCounts:        make(map[string]int),
		RegistrarCounts: make(map[string]int),
		TotalPeers:      len(peers),
		Now:             now,
	}

	for i := range peers {
		p := &peers[i]
		if p.IP != "" {
			agg.IPCounts[p.IP]++
		}
		if p.WhoisRegistrar != "" {
			agg.RegistrarCounts[p.WhoisRegistrar]++
		}
		if p.FirstSeen == nil {
			continue
		}
		days := daysSince(now, *p.FirstSeen)
		if days <= 7 {
			agg.Velocity7++
		}
		if days <= 30 {
			agg.Velocity30++
		}
		if days <= 90 {
			agg.Velocity90++
		}
	}

	return agg
}

// IPShare returns how many peers resolve to the given IP and that count as a
// fraction of the batch. Unknown IPs return (0, 0).
func (a *NetworkAggregate) IPShare(ip string) (count int, share float64) {
	if ip == "" || a.TotalPeers == 0 {
		return 0, 0
	}
	count = a.IPCounts[ip]
	return count, float64(count) / float64(a.TotalPeers)
}

// RegistrarShare mirrors IPShare for WHOIS registrars.
func (a *NetworkAggregate) RegistrarShare(registrar string) (count int, share float64) {
	if registrar == "" || a.TotalPeers == 0 {
		return 0, 0
	}
	count = a.RegistrarCounts[registrar]
	return count, float64(count) / float64(a.TotalPeers)
}

// WindowShare returns the fraction of peers first seen within the window.
func (a *NetworkAggregate) WindowShare(days int) float64 {
	if a.TotalPeers == 0 {
		return 0
	}
	var count int
	switch {
	case days <= 7:
		count = a.Velocity7
	case days <= 30:
		count = a.Velocity30
	default:
		count = a.Velocity90
	}
	return float64(count) / float64(a.TotalPeers)
}

// daysSince is the whole-day delta between now and ts, truncated toward zero
// the way a timestamp subtraction yields .days in the enrichment pipeline.
func daysSince(now time.Time, ts time.Time) int {
	return int(now.Sub(ts).Hours() / 24)
}
