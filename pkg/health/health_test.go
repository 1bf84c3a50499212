package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func passing() CheckFunc {
	return func(_ context.Context) error { return nil }
}

func failing(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

// driveFailures executes the probe enough times to cross the unhealthy
// threshold.
func driveFailures(p *probe) {
	for range failsToUnhealthy {
		p.execute(context.Background())
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder) probeResponse {
	t.Helper()
	var body probeResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestLiveEndpoint(t *testing.T) {
	t.Run("all passing", func(t *testing.T) {
		s := New()
		s.AddLivenessCheck("one", time.Second, passing())
		s.AddLivenessCheck("two", time.Second, passing())

		w := httptest.NewRecorder()
		s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		body := decode(t, w)
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "ok", body.Checks["one"])
		assert.Equal(t, "ok", body.Checks["two"])
	})

	t.Run("failing check past threshold", func(t *testing.T) {
		s := New()
		s.AddLivenessCheck("db", time.Second, failing("connection refused"))
		driveFailures(s.probes[0])

		w := httptest.NewRecorder()
		s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		body := decode(t, w)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "connection refused", body.Checks["db"])
	})

	t.Run("failures below threshold stay healthy", func(t *testing.T) {
		s := New()
		s.AddLivenessCheck("flaky", time.Second, failing("temporary"))
		for range failsToUnhealthy - 1 {
			s.probes[0].execute(context.Background())
		}

		w := httptest.NewRecorder()
		s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("no checks", func(t *testing.T) {
		s := New()

		w := httptest.NewRecorder()
		s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decode(t, w).Status)
	})
}

func TestReadyEndpoint(t *testing.T) {
	t.Run("ready and passing", func(t *testing.T) {
		s := New()
		s.AddReadinessCheck("cache", time.Second, passing())
		s.SetReady(true)

		w := httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ok", decode(t, w).Status)
	})

	t.Run("gate closed by default", func(t *testing.T) {
		s := New()
		s.AddReadinessCheck("cache", time.Second, passing())

		w := httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		body := decode(t, w)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Contains(t, body.Checks, "_gate")
	})

	t.Run("gate closes again on SetReady false", func(t *testing.T) {
		s := New()
		s.AddReadinessCheck("cache", time.Second, passing())
		s.SetReady(true)

		w := httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusOK, w.Code)

		s.SetReady(false)

		w = httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("one failing check among several", func(t *testing.T) {
		s := New()
		s.AddReadinessCheck("db", time.Second, passing())
		s.AddReadinessCheck("cache", time.Second, failing("cache down"))
		s.SetReady(true)
		driveFailures(s.probes[1])

		w := httptest.NewRecorder()
		s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		body := decode(t, w)
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "cache down", body.Checks["cache"])
		assert.Equal(t, "ok", body.Checks["db"])
	})
}

func TestIsReady(t *testing.T) {
	s := New()
	s.AddReadinessCheck("db", time.Second, passing())

	assert.False(t, s.IsReady(), "not ready before SetReady")

	s.SetReady(true)
	assert.True(t, s.IsReady())

	s.SetReady(false)
	assert.False(t, s.IsReady())
}

func TestProbeRecovery(t *testing.T) {
	down := true
	s := New()
	s.AddLivenessCheck("flaky", time.Second, func(_ context.Context) error {
		if down {
			return errors.New("down")
		}
		return nil
	})
	p := s.probes[0]

	driveFailures(p)
	unhealthy, _ := p.state()
	assert.True(t, unhealthy)

	down = false
	for range passesToHealthy {
		p.execute(context.Background())
	}
	unhealthy, msg := p.state()
	assert.False(t, unhealthy, "probe should recover after consecutive passes")
	assert.Equal(t, "ok", msg)
}

func TestStopIdempotent(t *testing.T) {
	s := New()
	s.AddLivenessCheck("goroutine", time.Second, passing())

	s.Start(context.Background(), 100*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	s.AddLivenessCheck("live", time.Second, failing("err"))
	s.AddReadinessCheck("ready", time.Second, passing())
	s.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start(ctx, 10*time.Millisecond)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				s.IsReady()

				w := httptest.NewRecorder()
				s.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

				w = httptest.NewRecorder()
				s.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
	s.Stop()
}

func TestGoroutineCountCheck(t *testing.T) {
	assert.NoError(t, GoroutineCountCheck(100000)(context.Background()))

	err := GoroutineCountCheck(0)(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds limit")
}

func TestGCMaxPauseCheck(t *testing.T) {
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(context.Background()))
}
