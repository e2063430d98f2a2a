package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/whisper/matchmaker/loadtest/client"
	"github.com/whisper/matchmaker/loadtest/stats"
)

// runSaturate opens connections at a steady rate, waits for each one's
// session-created, then holds them all open and reports how many the server
// dropped.
func runSaturate(args []string) {
	fs := flag.NewFlagSet("saturate", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	metricsURL := fs.String("metrics", "", "Server /metrics URL to scrape (optional)")
	connections := fs.Int("connections", 1000, "Number of connections to open")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration")
	hold := fs.Duration("hold", 30*time.Second, "Hold duration after all connections are open")
	concurrency := fs.Int("concurrency", 50, "Maximum simultaneous connection attempts during ramp-up")
	_ = fs.Parse(args)

	fmt.Printf("Saturate test: %d connections to %s (ramp=%s, hold=%s, concurrency=%d)\n",
		*connections, *url, *rampUp, *hold, *concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := startScraper(ctx, *metricsURL)
	if scraper != nil {
		collector.SetScraper(scraper)
	}

	var mu sync.Mutex
	clients := make([]*client.Client, 0, *connections)

	// -----------------------------------------------------------------------
	// Ramp-up
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Ramp-up phase ---")

	interval := *rampUp / time.Duration(*connections)
	if interval <= 0 {
		interval = time.Millisecond
	}

	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup

	stopProgress := startProgress(func() string {
		return fmt.Sprintf("  [ramp] connections: %d/%d  errors: %d",
			collector.ConnectionCount(), *connections, collector.ErrorCount())
	})

	rampStart := time.Now()
	rampTicker := time.NewTicker(interval)
	interrupted := false

rampLoop:
	for launched := 0; launched < *connections; launched++ {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during ramp-up.")
			interrupted = true
			break rampLoop
		case <-rampTicker.C:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			c, err := client.New(connCtx, *url)
			if err != nil {
				collector.AddError("connect")
				return
			}
			if err := c.WaitForSession(connCtx); err != nil {
				collector.AddError("session")
				_ = c.Close()
				return
			}
			collector.AddConnect(c.GetMetrics().ConnectLatency)

			mu.Lock()
			clients = append(clients, c)
			mu.Unlock()
		}()
	}

	rampTicker.Stop()
	wg.Wait()
	stopProgress()

	fmt.Printf("\nRamp-up complete: %d/%d connections in %s (%d errors)\n",
		collector.ConnectionCount(), *connections,
		time.Since(rampStart).Round(time.Millisecond), collector.ErrorCount())

	// -----------------------------------------------------------------------
	// Hold
	// -----------------------------------------------------------------------
	dropped := 0
	if !interrupted {
		fmt.Println("\n--- Hold phase ---")

		mu.Lock()
		initial := len(clients)
		mu.Unlock()
		fmt.Printf("Holding %d connections for %s...\n", initial, *hold)

		holdTimer := time.NewTimer(*hold)
		statusTicker := time.NewTicker(5 * time.Second)

	holdLoop:
		for {
			select {
			case <-ctx.Done():
				fmt.Println("\nInterrupted during hold phase.")
				break holdLoop
			case <-holdTimer.C:
				fmt.Println("\nHold period complete.")
				break holdLoop
			case <-statusTicker.C:
				alive := countAlive(&mu, clients)
				dropped = initial - alive
				fmt.Printf("  [hold] alive: %d/%d  dropped: %d\n", alive, initial, dropped)
			}
		}

		holdTimer.Stop()
		statusTicker.Stop()
		dropped = initial - countAlive(&mu, clients)
	}

	// -----------------------------------------------------------------------
	// Cleanup
	// -----------------------------------------------------------------------
	fmt.Println("\n--- Cleanup ---")
	mu.Lock()
	fmt.Printf("Closing %d connections...\n", len(clients))
	for _, c := range clients {
		_ = c.Close()
	}
	mu.Unlock()

	if dropped > 0 {
		fmt.Printf("\nConnections dropped during hold: %d\n", dropped)
	}
	if scraper != nil {
		scraper.Stop()
	}
	collector.Report()
}

func countAlive(mu *sync.Mutex, clients []*client.Client) int {
	mu.Lock()
	defer mu.Unlock()
	alive := 0
	for _, c := range clients {
		if c.Alive() {
			alive++
		}
	}
	return alive
}

// startProgress prints line() every second until the returned func is called.
func startProgress(line func() string) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fmt.Println(line())
			case <-stop:
				return
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
	}
}

// startScraper returns nil when url is empty.
func startScraper(ctx context.Context, url string) *stats.Scraper {
	if url == "" {
		return nil
	}
	s := stats.NewScraper(url, 2*time.Second)
	s.Start(ctx)
	return s
}
