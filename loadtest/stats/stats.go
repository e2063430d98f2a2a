// Package stats provides a goroutine-safe metrics collector that aggregates
// performance data from many load test clients and prints a summary report
// with percentile distributions.
package stats

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates metrics from multiple load test clients. All methods
// are safe for concurrent use.
type Collector struct {
	mu               sync.Mutex
	connectLatencies []time.Duration
	phases           []string // report order
	latencies        map[string][]time.Duration
	errors           map[string]int
	connections      int
	startTime        time.Time
	scraper          *Scraper
}

// NewCollector creates a new Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		latencies: make(map[string][]time.Duration),
		errors:    make(map[string]int),
	}
}

// SetScraper attaches a Prometheus scraper whose summary is appended to Report.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddConnect records a successful connection with the given connect latency.
func (c *Collector) AddConnect(d time.Duration) {
	c.mu.Lock()
	c.connectLatencies = append(c.connectLatencies, d)
	c.connections++
	c.mu.Unlock()
}

// AddLatency records one sample for a named phase such as "match" or "chat".
func (c *Collector) AddLatency(phase string, d time.Duration) {
	c.mu.Lock()
	if _, ok := c.latencies[phase]; !ok {
		c.phases = append(c.phases, phase)
	}
	c.latencies[phase] = append(c.latencies[phase], d)
	c.mu.Unlock()
}

// AddError counts a failure attributed to phase.
func (c *Collector) AddError(phase string) {
	c.mu.Lock()
	c.errors[phase]++
	c.mu.Unlock()
}

// ConnectionCount returns the number of recorded connections.
func (c *Collector) ConnectionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connections
}

// ErrorCount returns the total number of recorded errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.errors {
		total += n
	}
	return total
}

// Report prints the collected metrics to stdout.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)
	errTotal := 0
	for _, n := range c.errors {
		errTotal += n
	}

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:     %s\n", elapsed.Round(time.Second))
	fmt.Printf("Connections:  %d\n", c.connections)
	fmt.Printf("Errors:       %d\n", errTotal)

	if c.connections > 0 {
		errorRate := float64(errTotal) / float64(c.connections) * 100
		fmt.Printf("Error rate:   %.2f%%\n", errorRate)
	}
	if errTotal > 0 {
		names := make([]string, 0, len(c.errors))
		for name := range c.errors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %-12s %d\n", name, c.errors[name])
		}
	}

	if len(c.connectLatencies) > 0 {
		fmt.Println("\n--- Connect Latency ---")
		fmt.Println(" ", FormatPercentiles(c.connectLatencies))
	}

	for _, phase := range c.phases {
		fmt.Printf("\n--- %s Latency ---\n", phase)
		fmt.Println(" ", FormatPercentiles(c.latencies[phase]))
	}

	if c.scraper != nil {
		c.scraper.Report()
	}

	fmt.Println()
}

// Percentiles summarizes a latency distribution.
type Percentiles struct {
	Avg, P50, P95, P99, Max time.Duration
	N                       int
}

// ComputePercentiles sorts durations in place and summarizes them. It returns
// the zero value for an empty slice.
func ComputePercentiles(durations []time.Duration) Percentiles {
	n := len(durations)
	if n == 0 {
		return Percentiles{}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return Percentiles{
		Avg: sum / time.Duration(n),
		P50: durations[n/2],
		P95: durations[int(math.Ceil(float64(n)*0.95))-1],
		P99: durations[int(math.Ceil(float64(n)*0.99))-1],
		Max: durations[n-1],
		N:   n,
	}
}

// FormatPercentiles renders ComputePercentiles on one line.
func FormatPercentiles(durations []time.Duration) string {
	p := ComputePercentiles(durations)
	return fmt.Sprintf("avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)",
		p.Avg.Round(time.Microsecond),
		p.P50.Round(time.Microsecond),
		p.P95.Round(time.Microsecond),
		p.P99.Round(time.Microsecond),
		p.Max.Round(time.Microsecond),
		p.N,
	)
}
