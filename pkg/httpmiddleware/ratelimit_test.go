package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, handler http.Handler, addr string, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = addr
	for _, fn := range mutate {
		fn(req)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitUnderLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(t, handler, "192.168.1.1:12345")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimitOverLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		w := serve(t, handler, "10.0.0.1:9999")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := serve(t, handler, "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, float64(429), body["code"])
	assert.Equal(t, "rate limit exceeded", body["message"])
}

func TestRateLimitKeysAreIndependent(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serve(t, handler, "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, serve(t, handler, "10.0.0.2:1234").Code)

	// Same IP from a new source port is still the same key.
	assert.Equal(t, http.StatusTooManyRequests, serve(t, handler, "10.0.0.1:5678").Code)
}

func TestRateLimitCustomKeyFunc(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("X-API-Key")
		},
	})(okHandler())

	withKey := func(key string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("X-API-Key", key) }
	}

	assert.Equal(t, http.StatusOK, serve(t, handler, "1.1.1.1:1", withKey("key-a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(t, handler, "1.1.1.1:1", withKey("key-a")).Code)
	assert.Equal(t, http.StatusOK, serve(t, handler, "1.1.1.1:1", withKey("key-b")).Code)
}

func TestRateLimitXForwardedFor(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	forwarded := func(r *http.Request) {
		r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
	}

	assert.Equal(t, http.StatusOK, serve(t, handler, "192.168.1.1:4444", forwarded).Code)

	// Same first forwarded IP behind a different proxy address: same key.
	assert.Equal(t, http.StatusTooManyRequests, serve(t, handler, "192.168.1.2:5555", forwarded).Code)
}

func TestLimiterEvictStale(t *testing.T) {
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute})

	now := time.Now()
	l.take("old", now)
	l.take("fresh", now.Add(3*time.Minute))

	l.evictStale(now.Add(3 * time.Minute))

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.windows, "old")
	assert.Contains(t, l.windows, "fresh")
}
