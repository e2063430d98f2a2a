package stats

import (
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Percentiles
// ---------------------------------------------------------------------------

func TestComputePercentiles(t *testing.T) {
	var ds []time.Duration
	for i := 100; i >= 1; i-- {
		ds = append(ds, time.Duration(i)*time.Millisecond)
	}

	p := ComputePercentiles(ds)
	if p.N != 100 {
		t.Fatalf("N = %d, want 100", p.N)
	}
	if p.P50 != 51*time.Millisecond {
		t.Errorf("p50 = %v, want 51ms", p.P50)
	}
	if p.P95 != 95*time.Millisecond {
		t.Errorf("p95 = %v, want 95ms", p.P95)
	}
	if p.P99 != 99*time.Millisecond {
		t.Errorf("p99 = %v, want 99ms", p.P99)
	}
	if p.Max != 100*time.Millisecond {
		t.Errorf("max = %v, want 100ms", p.Max)
	}
	if p.Avg != 50500*time.Microsecond {
		t.Errorf("avg = %v, want 50.5ms", p.Avg)
	}
}

func TestComputePercentilesEmpty(t *testing.T) {
	if p := ComputePercentiles(nil); p != (Percentiles{}) {
		t.Fatalf("empty input = %+v, want zero", p)
	}
}

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.AddConnect(time.Millisecond)
	c.AddConnect(2 * time.Millisecond)
	c.AddError("match")
	c.AddError("chat")
	c.AddError("chat")

	if got := c.ConnectionCount(); got != 2 {
		t.Errorf("connections = %d, want 2", got)
	}
	if got := c.ErrorCount(); got != 3 {
		t.Errorf("errors = %d, want 3", got)
	}
}

// ---------------------------------------------------------------------------
// Exposition parsing
// ---------------------------------------------------------------------------

func TestParseMetricLine(t *testing.T) {
	tests := []struct {
		line  string
		name  string
		value float64
		ok    bool
	}{
		{"matchmaker_rooms 3", "matchmaker_rooms", 3, true},
		{`matchmaker_relayed_total{kind="offer"} 12`, "matchmaker_relayed_total", 12, true},
		{"matchmaker_pool_size 4 1700000000000", "matchmaker_pool_size", 4, true},
		{`broken{kind="x" 1`, "", 0, false},
		{"novalue", "", 0, false},
		{"matchmaker_rooms NaNx", "", 0, false},
	}

	for _, tt := range tests {
		name, value, ok := parseMetricLine(tt.line)
		if ok != tt.ok || name != tt.name || value != tt.value {
			t.Errorf("parseMetricLine(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tt.line, name, value, ok, tt.name, tt.value, tt.ok)
		}
	}
}

func TestParseExposition(t *testing.T) {
	body := strings.Join([]string{
		"# HELP matchmaker_connections_total Live connections.",
		"# TYPE matchmaker_connections_total gauge",
		"matchmaker_connections_total 42",
		"matchmaker_pool_size 5",
		"matchmaker_rooms 7",
		"matchmaker_matches_total 9",
		`matchmaker_relayed_total{kind="offer"} 10`,
		`matchmaker_relayed_total{kind="chat-message"} 30`,
		`matchmaker_dropped_total{reason="not_member"} 2`,
		`matchmaker_frame_latency_seconds_bucket{le="0.001"} 1`,
		"matchmaker_frame_latency_seconds_sum 0.5",
		"matchmaker_frame_latency_seconds_count 100",
		"matchmaker_match_wait_seconds_sum 3",
		"matchmaker_match_wait_seconds_count 9",
		"go_goroutines 12",
	}, "\n")

	snap, err := parseExposition(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parseExposition: %v", err)
	}

	if snap.connections != 42 || snap.poolSize != 5 || snap.rooms != 7 || snap.matches != 9 {
		t.Errorf("gauges = %+v", snap)
	}
	if snap.relayed != 40 {
		t.Errorf("relayed = %v, want labels summed to 40", snap.relayed)
	}
	if snap.dropped != 2 {
		t.Errorf("dropped = %v, want 2", snap.dropped)
	}
	if snap.frameSum != 0.5 || snap.frameCount != 100 {
		t.Errorf("frame latency = %v/%v, want 0.5/100", snap.frameSum, snap.frameCount)
	}
	if snap.waitSum != 3 || snap.waitCount != 9 {
		t.Errorf("match wait = %v/%v, want 3/9", snap.waitSum, snap.waitCount)
	}
}
