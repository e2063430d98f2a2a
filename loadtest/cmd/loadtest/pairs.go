package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/whisper/matchmaker/loadtest/client"
	"github.com/whisper/matchmaker/loadtest/stats"
)

// pairConfig holds the options shared by every pair in a run.
type pairConfig struct {
	url      string
	runID    string
	messages int
	timeout  time.Duration
}

// runPairs drives matched pairs of users through the whole session: both
// register with a private interest so they can only match each other, join
// the room, exchange an offer and answer, trade chat lines and leave.
func runPairs(args []string) {
	fs := flag.NewFlagSet("pairs", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	metricsURL := fs.String("metrics", "", "Server /metrics URL to scrape (optional)")
	pairs := fs.Int("pairs", 100, "Number of user pairs")
	concurrency := fs.Int("concurrency", 20, "Pairs in flight at once")
	messages := fs.Int("messages", 10, "Chat lines sent by each side")
	timeout := fs.Duration("timeout", 15*time.Second, "Per-step timeout")
	_ = fs.Parse(args)

	fmt.Printf("Pairs test: %d pairs against %s (concurrency=%d, messages=%d)\n",
		*pairs, *url, *concurrency, *messages)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	scraper := startScraper(ctx, *metricsURL)
	if scraper != nil {
		collector.SetScraper(scraper)
	}

	cfg := pairConfig{
		url:      *url,
		runID:    strconv.FormatInt(time.Now().UnixNano(), 36),
		messages: *messages,
		timeout:  *timeout,
	}

	var completed, failed int
	var mu sync.Mutex
	stopProgress := startProgress(func() string {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Sprintf("  [pairs] completed: %d/%d  failed: %d", completed, *pairs, failed)
	})

	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup

launch:
	for i := 0; i < *pairs; i++ {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted.")
			break launch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			err := runPair(ctx, cfg, i, collector)
			mu.Lock()
			if err != nil {
				failed++
			} else {
				completed++
			}
			mu.Unlock()
		}(i)
	}

	wg.Wait()
	stopProgress()

	fmt.Printf("\nPairs complete: %d ok, %d failed\n", completed, failed)
	if scraper != nil {
		scraper.Stop()
	}
	collector.Report()
}

// pairError tags a failure with the step it happened in.
type pairError struct {
	phase string
	err   error
}

func (e *pairError) Error() string { return e.phase + ": " + e.err.Error() }
func (e *pairError) Unwrap() error { return e.err }

func fail(phase string, err error) error {
	return &pairError{phase: phase, err: err}
}

func runPair(ctx context.Context, cfg pairConfig, i int, collector *stats.Collector) (err error) {
	defer func() {
		if err != nil {
			var pe *pairError
			phase := "pair"
			if errors.As(err, &pe) {
				phase = pe.phase
			}
			collector.AddError(phase)
		}
	}()

	a, err := connect(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer a.Close()
	b, err := connect(ctx, cfg, collector)
	if err != nil {
		return err
	}
	defer b.Close()

	interests := []string{fmt.Sprintf("loadtest-%s-%d", cfg.runID, i)}
	userA := fmt.Sprintf("lt-%s-%d-a", cfg.runID, i)
	userB := fmt.Sprintf("lt-%s-%d-b", cfg.runID, i)

	// --- Match ---
	if err := a.Register(userA, interests); err != nil {
		return fail("register", err)
	}
	start := time.Now()
	if err := b.Register(userB, interests); err != nil {
		return fail("register", err)
	}

	var foundA, foundB struct {
		MatchedUserID string `json:"matchedUserId"`
		RoomID        string `json:"roomId"`
	}
	if err := expect(ctx, cfg, b, client.TypeMatchFound, &foundB); err != nil {
		return fail("match", err)
	}
	if err := expect(ctx, cfg, a, client.TypeMatchFound, &foundA); err != nil {
		return fail("match", err)
	}
	collector.AddLatency("match", time.Since(start))

	if foundA.RoomID != foundB.RoomID || foundA.MatchedUserID != userB || foundB.MatchedUserID != userA {
		return fail("match", fmt.Errorf("mismatched pairing: a=%+v b=%+v", foundA, foundB))
	}
	roomID := foundA.RoomID

	// --- Join ---
	start = time.Now()
	if err := a.JoinRoom(roomID); err != nil {
		return fail("join", err)
	}
	if err := b.JoinRoom(roomID); err != nil {
		return fail("join", err)
	}

	var readyA, readyB struct {
		IsInitiator bool `json:"isInitiator"`
	}
	for _, step := range []struct {
		c     *client.Client
		ready any
	}{{a, &readyA}, {b, &readyB}} {
		if err := expect(ctx, cfg, step.c, client.TypeStartSignaling, nil); err != nil {
			return fail("join", err)
		}
		if err := expect(ctx, cfg, step.c, client.TypeReadyToConnect, step.ready); err != nil {
			return fail("join", err)
		}
	}
	collector.AddLatency("join", time.Since(start))

	offerer, answerer := a, b
	if readyB.IsInitiator {
		offerer, answerer = b, a
	}
	if readyA.IsInitiator == readyB.IsInitiator {
		return fail("join", errors.New("both sides got the same initiator role"))
	}

	// --- Signaling ---
	start = time.Now()
	if err := offerer.Signal(client.TypeOffer, roomID, map[string]string{"type": "offer", "sdp": "v=0"}); err != nil {
		return fail("signaling", err)
	}
	if err := expect(ctx, cfg, answerer, client.TypeOffer, nil); err != nil {
		return fail("signaling", err)
	}
	if err := answerer.Signal(client.TypeAnswer, roomID, map[string]string{"type": "answer", "sdp": "v=0"}); err != nil {
		return fail("signaling", err)
	}
	if err := expect(ctx, cfg, offerer, client.TypeAnswer, nil); err != nil {
		return fail("signaling", err)
	}
	collector.AddLatency("signaling", time.Since(start))

	// --- Chat ---
	for n := 0; n < cfg.messages; n++ {
		for _, dir := range [][2]*client.Client{{a, b}, {b, a}} {
			from, to := dir[0], dir[1]
			text := fmt.Sprintf("hello %d", n)

			start = time.Now()
			if err := from.Chat(roomID, "loadtest", text); err != nil {
				return fail("chat", err)
			}
			var got struct {
				Message string `json:"message"`
			}
			if err := expect(ctx, cfg, to, client.TypeChatMessage, &got); err != nil {
				return fail("chat", err)
			}
			if got.Message != text {
				return fail("chat", fmt.Errorf("got %q, want %q", got.Message, text))
			}
			collector.AddLatency("chat", time.Since(start))
		}
	}

	// --- Leave ---
	if err := a.LeaveRoom(roomID); err != nil {
		return fail("leave", err)
	}
	var left struct {
		PeerID string `json:"peerId"`
	}
	if err := expect(ctx, cfg, b, client.TypePeerLeft, &left); err != nil {
		return fail("leave", err)
	}
	if left.PeerID != a.ConnectionID() {
		return fail("leave", fmt.Errorf("peer-left names %q, want %q", left.PeerID, a.ConnectionID()))
	}
	return nil
}

func connect(ctx context.Context, cfg pairConfig, collector *stats.Collector) (*client.Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	c, err := client.New(connCtx, cfg.url)
	if err != nil {
		return nil, fail("connect", err)
	}
	if err := c.WaitForSession(connCtx); err != nil {
		_ = c.Close()
		return nil, fail("session", err)
	}
	collector.AddConnect(c.GetMetrics().ConnectLatency)
	return c, nil
}

func expect(ctx context.Context, cfg pairConfig, c *client.Client, msgType string, out any) error {
	stepCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()
	return c.Expect(stepCtx, msgType, out)
}
