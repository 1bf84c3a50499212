package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window.
	Max int
	// Window is the sliding window duration.
	Window time.Duration
	// KeyFunc extracts the limiter key from a request. Defaults to the
	// client IP.
	KeyFunc func(*http.Request) string
}

// window holds counts for two adjacent fixed windows per key; the effective
// rate is the weighted sum of both, which approximates a true sliding window
// without keeping per-request timestamps.
type window struct {
	prevCount float64
	prevStart time.Time
	currCount float64
	currStart time.Time
}

type limiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	windows map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiter{
		cfg:     cfg,
		windows: make(map[string]*window),
	}
}

// take consumes one request slot for key. It reports how many slots remain,
// when the window resets, and whether the request was admitted.
func (l *limiter) take(key string, now time.Time) (remaining int, resetAt time.Time, admitted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok {
		w = &window{currStart: now}
		l.windows[key] = w
	}

	// Rotate once the current fixed window has fully elapsed.
	if now.Sub(w.currStart) >= l.cfg.Window {
		w.prevCount = w.currCount
		w.prevStart = w.currStart
		w.currCount = 0
		w.currStart = now.Truncate(l.cfg.Window)
		if now.Sub(w.prevStart) >= 2*l.cfg.Window {
			w.prevCount = 0
		}
	}

	// Weight the previous window by how much of it still overlaps the
	// sliding window ending now.
	elapsed := now.Sub(w.currStart)
	overlap := 1.0 - elapsed.Seconds()/l.cfg.Window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	effective := w.prevCount*overlap + w.currCount
	resetAt = w.currStart.Add(l.cfg.Window)

	if effective >= float64(l.cfg.Max) {
		return 0, resetAt, false
	}

	w.currCount++
	effective++

	remaining = int(float64(l.cfg.Max) - effective)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// evictStale drops keys whose windows have fully expired.
func (l *limiter) evictStale(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, w := range l.windows {
		if now.Sub(w.currStart) >= 2*l.cfg.Window {
			delete(l.windows, key)
		}
	}
}

// RateLimit returns a middleware enforcing a per-key sliding window limit.
// Rejected requests get 429 with a JSON body; every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining, and X-RateLimit-Reset.
//
// This variant never evicts idle keys. Use RateLimitWithCleanup for
// long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limitMiddleware(newLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that evicts
// expired keys every two windows. The goroutine stops when ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)

	go func() {
		ticker := time.NewTicker(2 * l.cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evictStale(now)
			}
		}
	}()

	return limitMiddleware(l)
}

func limitMiddleware(l *limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, admitted := l.take(l.cfg.KeyFunc(r), time.Now())

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !admitted {
				retryAfter := time.Until(resetAt)
				if retryAfter < 0 {
					retryAfter = 0
				}
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				h.Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the caller address: X-Forwarded-For first, then
// X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
