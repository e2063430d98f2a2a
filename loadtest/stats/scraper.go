package stats

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// metricSnapshot holds the tracked server metrics at one point in time.
type metricSnapshot struct {
	timestamp   time.Time
	connections float64
	poolSize    float64
	rooms       float64
	matches     float64
	relayed     float64 // summed over kind labels
	dropped     float64 // summed over reason labels
	// histogram _sum and _count for computing averages
	frameSum   float64
	frameCount float64
	waitSum    float64
	waitCount  float64
}

// Scraper periodically fetches the server's /metrics endpoint during a run.
type Scraper struct {
	metricsURL string
	interval   time.Duration

	mu        sync.Mutex
	snapshots []metricSnapshot

	cancel context.CancelFunc
	done   chan struct{}
	client *http.Client
}

// NewScraper creates a Scraper for metricsURL.
func NewScraper(metricsURL string, interval time.Duration) *Scraper {
	return &Scraper{
		metricsURL: metricsURL,
		interval:   interval,
		client:     &http.Client{Timeout: 5 * time.Second},
		done:       make(chan struct{}),
	}
}

// Start takes a snapshot immediately and then one per interval until ctx is
// cancelled or Stop is called.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.scrapeOnce()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				s.scrapeOnce()
				return
			case <-ticker.C:
				s.scrapeOnce()
			}
		}
	}()
}

// Stop stops the background scraper and waits for the final snapshot.
func (s *Scraper) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Scraper) scrapeOnce() {
	snap, err := s.fetch()
	if err != nil {
		// The server may not be up yet.
		return
	}

	s.mu.Lock()
	s.snapshots = append(s.snapshots, snap)
	s.mu.Unlock()
}

func (s *Scraper) fetch() (metricSnapshot, error) {
	resp, err := s.client.Get(s.metricsURL)
	if err != nil {
		return metricSnapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return metricSnapshot{}, fmt.Errorf("metrics: status %d", resp.StatusCode)
	}

	snap, err := parseExposition(resp.Body)
	snap.timestamp = time.Now()
	return snap, err
}

// parseExposition reads the Prometheus text format and keeps the matchmaker
// series the report needs.
func parseExposition(r io.Reader) (metricSnapshot, error) {
	var snap metricSnapshot

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		name, value, ok := parseMetricLine(line)
		if !ok {
			continue
		}

		switch name {
		case "matchmaker_connections_total":
			snap.connections = value
		case "matchmaker_pool_size":
			snap.poolSize = value
		case "matchmaker_rooms":
			snap.rooms = value
		case "matchmaker_matches_total":
			snap.matches = value
		case "matchmaker_relayed_total":
			snap.relayed += value
		case "matchmaker_dropped_total":
			snap.dropped += value
		case "matchmaker_frame_latency_seconds_sum":
			snap.frameSum = value
		case "matchmaker_frame_latency_seconds_count":
			snap.frameCount = value
		case "matchmaker_match_wait_seconds_sum":
			snap.waitSum = value
		case "matchmaker_match_wait_seconds_count":
			snap.waitCount = value
		}
	}

	return snap, scanner.Err()
}

// parseMetricLine splits "name{labels} value" or "name value" into the bare
// metric name and its value.
func parseMetricLine(line string) (name string, value float64, ok bool) {
	raw := line
	if idx := strings.IndexByte(raw, '{'); idx != -1 {
		name = raw[:idx]
		closing := strings.IndexByte(raw[idx:], '}')
		if closing == -1 {
			return "", 0, false
		}
		raw = name + raw[idx+closing+1:]
	}

	fields := strings.Fields(raw)
	if len(fields) < 2 {
		return "", 0, false
	}
	if name == "" {
		name = fields[0]
	}

	// A trailing timestamp is allowed after the value.
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return "", 0, false
	}
	return name, v, true
}

// Report prints initial, final, delta and peak values for each tracked series
// plus histogram averages over the run.
func (s *Scraper) Report() {
	s.mu.Lock()
	snaps := make([]metricSnapshot, len(s.snapshots))
	copy(snaps, s.snapshots)
	s.mu.Unlock()

	if len(snaps) == 0 {
		fmt.Println("\n--- Server Metrics (no data collected) ---")
		return
	}

	first := snaps[0]
	last := snaps[len(snaps)-1]

	fmt.Println("\n--- Server Metrics (Prometheus) ---")
	fmt.Printf("  Scrape count:  %d snapshots over %s\n",
		len(snaps), last.timestamp.Sub(first.timestamp).Round(time.Second))

	series := []struct {
		label   string
		extract func(metricSnapshot) float64
	}{
		{"Connections", func(m metricSnapshot) float64 { return m.connections }},
		{"Waiting", func(m metricSnapshot) float64 { return m.poolSize }},
		{"Rooms", func(m metricSnapshot) float64 { return m.rooms }},
		{"Matches", func(m metricSnapshot) float64 { return m.matches }},
		{"Relayed", func(m metricSnapshot) float64 { return m.relayed }},
		{"Dropped", func(m metricSnapshot) float64 { return m.dropped }},
	}

	fmt.Println()
	fmt.Printf("  %-16s %10s %10s %10s %10s\n", "Metric", "Initial", "Final", "Delta", "Peak")
	fmt.Printf("  %-16s %10s %10s %10s %10s\n", "------", "-------", "-----", "-----", "----")
	for _, m := range series {
		initial, final := m.extract(first), m.extract(last)
		fmt.Printf("  %-16s %10.0f %10.0f %10.0f %10.0f\n",
			m.label, initial, final, final-initial, peakValue(snaps, m.extract))
	}

	fmt.Println()
	printHistogramAvg("Frame Latency", first.frameSum, first.frameCount, last.frameSum, last.frameCount)
	printHistogramAvg("Match Wait", first.waitSum, first.waitCount, last.waitSum, last.waitCount)
}

func printHistogramAvg(label string, sumFirst, countFirst, sumLast, countLast float64) {
	deltaSum := sumLast - sumFirst
	deltaCount := countLast - countFirst
	if deltaCount > 0 {
		fmt.Printf("  %-16s avg: %.4fs  (%.0f observations)\n", label, deltaSum/deltaCount, deltaCount)
	} else {
		fmt.Printf("  %-16s avg: N/A  (no observations)\n", label)
	}
}

func peakValue(snaps []metricSnapshot, extract func(metricSnapshot) float64) float64 {
	peak := math.Inf(-1)
	for _, s := range snaps {
		if v := extract(s); v > peak {
			peak = v
		}
	}
	return peak
}
