package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newTestLimiter connects to a local Redis and skips the test when none is
// running on localhost:6379.
func newTestLimiter(t *testing.T) (*Limiter, *redis.Client) {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewLimiter(client), client
}

func TestAllow_WithinAndOverLimit(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 3, Window: time.Minute}
	id := "test_allow_" + time.Now().Format("150405.000000")
	t.Cleanup(func() { l.Reset(ctx, id, rule) })

	for i := 1; i <= 3; i++ {
		ok, err := l.Allow(ctx, id, rule)
		if err != nil {
			t.Fatalf("Allow() error: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	ok, err := l.Allow(ctx, id, rule)
	if err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	if ok {
		t.Fatal("fourth request should be limited")
	}
}

func TestAllow_SetsWindowTTL(t *testing.T) {
	l, client := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 5, Window: 30 * time.Second}
	id := "test_ttl_" + time.Now().Format("150405.000000")
	t.Cleanup(func() { l.Reset(ctx, id, rule) })

	if _, err := l.Allow(ctx, id, rule); err != nil {
		t.Fatalf("Allow() error: %v", err)
	}
	ttl, err := client.TTL(ctx, rule.Key+id).Result()
	if err != nil {
		t.Fatalf("TTL() error: %v", err)
	}
	if ttl <= 0 || ttl > rule.Window {
		t.Fatalf("expected ttl within window, got %v", ttl)
	}
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()
	rule := Rule{Key: "rl:test:", Limit: 1, Window: time.Minute}
	id := "test_reset_" + time.Now().Format("150405.000000")

	l.Allow(ctx, id, rule)
	if ok, _ := l.Allow(ctx, id, rule); ok {
		t.Fatal("second request should be limited")
	}
	if err := l.Reset(ctx, id, rule); err != nil {
		t.Fatalf("Reset() error: %v", err)
	}
	if ok, _ := l.Allow(ctx, id, rule); !ok {
		t.Fatal("request after reset should be allowed")
	}
}

func TestAllow_FailsOpenWhenRedisDown(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	l := NewLimiter(client)

	ok, err := l.Allow(context.Background(), "anyone", RuleChat)
	if err == nil {
		t.Fatal("expected an error from an unreachable redis")
	}
	if !ok {
		t.Fatal("limiter must fail open")
	}
}
