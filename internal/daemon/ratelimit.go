package daemon

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// staleBucketAge is how long an idle client's bucket is kept
const staleBucketAge = 5 * time.Minute

// RateLimiter is a per-key token bucket. Tokens refill continuously at rate
// per interval up to burst.
type RateLimiter struct {
	clock    clockwork.Clock
	rate     float64
	interval time.Duration
	burst    float64

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// NewRateLimiter creates a limiter allowing rate requests per interval with
// bursts of up to burst requests
func NewRateLimiter(clock clockwork.Clock, rate int, interval time.Duration, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		clock:     clock,
		rate:      float64(rate),
		interval:  interval,
		burst:     float64(burst),
		buckets:   make(map[string]*bucket),
		lastSweep: clock.Now(),
	}
}

// Allow consumes a token for key, reporting false when none is left
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	rl.sweepLocked(now)

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{tokens: rl.burst, lastCheck: now}
		rl.buckets[key] = b
	}

	b.tokens = rl.refilled(b, now)
	b.lastCheck = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Remaining returns the whole tokens left for key
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if b, ok := rl.buckets[key]; ok {
		return int(rl.refilled(b, rl.clock.Now()))
	}
	return int(rl.burst)
}

// refilled is b's token count at now, capped at burst
func (rl *RateLimiter) refilled(b *bucket, now time.Time) float64 {
	elapsed := now.Sub(b.lastCheck)
	return min(rl.burst, b.tokens+rl.rate*float64(elapsed)/float64(rl.interval))
}

// sweepLocked drops buckets idle for longer than staleBucketAge
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < staleBucketAge {
		return
	}
	cutoff := now.Add(-staleBucketAge)
	for key, b := range rl.buckets {
		if b.lastCheck.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

// rateLimitMiddleware rejects requests once the client's bucket is empty
func (s *Server) rateLimitMiddleware(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientIP(r)
			if !rl.Allow(key) {
				s.logger.Warn("rate limit exceeded",
					"ip", key,
					"path", r.URL.Path,
					"correlation_id", GetCorrelationID(r.Context()),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(rl.interval.Seconds())))
				w.Header().Set("X-RateLimit-Remaining", "0")
				s.jsonError(w, http.StatusTooManyRequests, "too many requests",
					fmt.Errorf("limit is %d per %s", int(rl.rate), rl.interval))
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(rl.Remaining(key)))
			next.ServeHTTP(w, r)
		})
	}
}

// limiterFor builds a per-minute limiter, or nil when rate is not positive
func (s *Server) limiterFor(rate, multiplier int) *RateLimiter {
	if rate <= 0 {
		return nil
	}
	if multiplier < 1 {
		multiplier = 1
	}
	return NewRateLimiter(s.clock, rate, time.Minute, rate*multiplier)
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address without its port
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
