package heuristics

import (
	"testing"
	"time"

	"github.com/rankforge/pbn-detector/pkg/models"
)

func intp(v int) *int { return &v }

func tp(t time.Time) *time.Time { return &t }

func daysAgo(now time.Time, days int) *time.Time {
	return tp(now.AddDate(0, 0, -days))
}

func TestBuildNetworkAggregate_VelocityWindowsAreCumulative(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	peers := []models.BacklinkSignal{
		{SourceURL: "a", FirstSeen: daysAgo(now, 2)},
		{SourceURL: "b", FirstSeen: daysAgo(now, 20)},
		{SourceURL: "c", FirstSeen: daysAgo(now, 60)},
		{SourceURL: "d", FirstSeen: daysAgo(now, 200)},
		{SourceURL: "e"}, // no first_seen, excluded from all windows
	}

	agg := BuildNetworkAggregate(peers, now)

	if agg.Velocity7 != 1 || agg.Velocity30 != 2 || agg.Velocity90 != 3 {
		t.Errorf("Expected windows 1/2/3, got %d/%d/%d",
			agg.Velocity7, agg.Velocity30, agg.Velocity90)
	}
	if agg.Velocity7 > agg.Velocity30 || agg.Velocity30 > agg.Velocity90 {
		t.Errorf("Windows must nest: 7d ⊆ 30d ⊆ 90d")
	}
	if agg.TotalPeers != 5 {
		t.Errorf("Expected 5 peers, got %d", agg.TotalPeers)
	}
}

func TestIPShare_CountsAndFractions(t *testing.T) {
	now := time.Now().UTC()
	peers := []models.BacklinkSignal{
		{SourceURL: "a", IP: "10.0.0.1"},
		{SourceURL: "b", IP: "10.0.0.1"},
		{SourceURL: "c", IP: "10.0.0.2"},
		{SourceURL: "d"}, // empty IP contributes nothing
	}

	agg := BuildNetworkAggregate(peers, now)

	count, share := agg.IPShare("10.0.0.1")
	if count != 2 || share != 0.5 {
		t.Errorf("Expected (2, 0.5) for 10.0.0.1, got (%d, %f)", count, share)
	}
	count, share = agg.IPShare("")
	if count != 0 || share != 0 {
		t.Errorf("Empty IP must return (0, 0), got (%d, %f)", count, share)
	}
	count, _ = agg.IPShare("10.9.9.9")
	if count != 0 {
		t.Errorf("Unknown IP must return zero count, got %d", count)
	}
}

func TestRegistrarShare(t *testing.T) {
	now := time.Now().UTC()
	peers := []models.BacklinkSignal{
		{SourceURL: "a", WhoisRegistrar: "NameCheap"},
		{SourceURL: "b", WhoisRegistrar: "NameCheap"},
		{SourceURL: "c", WhoisRegistrar: "GoDaddy"},
	}

	agg := BuildNetworkAggregate(peers, now)

	count, share := agg.RegistrarShare("NameCheap")
	if count != 2 || share < 0.66 || share > 0.67 {
		t.Errorf("Expected (2, ~0.667), got (%d, %f)", count, share)
	}
}

func TestWindowShare_EmptyBatch(t *testing.T) {
	agg := BuildNetworkAggregate(nil, time.Now().UTC())
	if agg.WindowShare(7) != 0 {
		t.Errorf("Empty batch must have zero window share")
	}
}

func TestDaysSince_TruncatesTowardZero(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ts := now.Add(-7*24*time.Hour + time.Hour) // 6 days 23 hours ago

	if got := daysSince(now, ts); got != 6 {
		t.Errorf("Expected 6 whole days, got %d", got)
	}
}
