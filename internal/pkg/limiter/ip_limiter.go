/*
Package limiter throttles HTTP requests per client IP with token buckets.
*/
package limiter

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/whisper/matchmaker/internal/pkg/errs"
	"github.com/whisper/matchmaker/internal/pkg/logx"
	"github.com/whisper/matchmaker/internal/pkg/resp"
)

const cleanupInterval = 3 * time.Minute

// IPRateLimiter keeps one rate.Limiter per client IP.
type IPRateLimiter struct {
	mu     sync.RWMutex
	limits map[string]*rate.Limiter
	r      rate.Limit
	b      int
	stop   chan struct{}
	once   sync.Once
}

// NewIPRateLimiter allows r events per second with burst b for each IP.
// A background goroutine drops idle buckets until Close is called.
func NewIPRateLimiter(r rate.Limit, b int) *IPRateLimiter {
	l := &IPRateLimiter{
		limits: make(map[string]*rate.Limiter),
		r:      r,
		b:      b,
		stop:   make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// GetLimiter returns the bucket for ip, creating it on first use.
func (l *IPRateLimiter) GetLimiter(ip string) *rate.Limiter {
	l.mu.RLock()
	lim, ok := l.limits[ip]
	l.mu.RUnlock()
	if ok {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok = l.limits[ip]; !ok {
		lim = rate.NewLimiter(l.r, l.b)
		l.limits[ip] = lim
	}
	return lim
}

// Allow reports whether ip may make another request now.
func (l *IPRateLimiter) Allow(ip string) bool {
	return l.GetLimiter(ip).Allow()
}

// Len returns the number of tracked IPs.
func (l *IPRateLimiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.limits)
}

// Close stops the cleanup goroutine.
func (l *IPRateLimiter) Close() {
	l.once.Do(func() { close(l.stop) })
}

func (l *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case now := <-ticker.C:
			removed, remaining := l.cleanup(now)
			if removed > 0 {
				logx.Debug("ip limiter cleanup", "removed", removed, "remaining", remaining)
			}
		}
	}
}

// cleanup removes buckets that have refilled completely, meaning the IP has
// been idle long enough that a fresh bucket is equivalent.
func (l *IPRateLimiter) cleanup(now time.Time) (removed, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, lim := range l.limits {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(l.limits, ip)
			removed++
		}
	}
	return removed, len(l.limits)
}

// Middleware rejects requests over the limit with RATE_LIMITED.
// RealIP middleware should run first so RemoteAddr reflects the client.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if ip == "" {
			ip = "unknown_ip"
		}

		if !l.Allow(ip) {
			resp.RespondError(w, r, errs.NewError(errs.CodeRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}
