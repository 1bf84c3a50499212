// Package health implements Kubernetes-style /livez and /readyz probes.
//
// Registered checks execute periodically in the background; probe endpoints
// report the cached result instead of running checks inline, so a slow
// dependency cannot stall the kubelet. Checks flip state on consecutive
// results (three fails to go unhealthy, one pass to recover) to keep a single
// timeout from bouncing a pod out of the load balancer.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	kindLiveness = iota
	kindReadiness
)

// Consecutive-result thresholds before a probe changes state.
const (
	failsToUnhealthy = 3
	passesToHealthy  = 1
)

// probe is one registered check plus its sampled state. All state is guarded
// by mu; execute and the endpoint handlers may run concurrently.
type probe struct {
	name    string
	kind    int
	timeout time.Duration
	fn      CheckFunc

	mu      sync.Mutex
	fails   int
	passes  int
	failing bool
	lastErr error
}

// execute runs the check once and folds the result into the probe state.
func (p *probe) execute(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.fn(checkCtx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErr = err
	if err != nil {
		p.passes = 0
		p.fails++
		if p.fails >= failsToUnhealthy {
			p.failing = true
		}
		return
	}
	p.fails = 0
	p.passes++
	if p.passes >= passesToHealthy {
		p.failing = false
	}
}

// state reports whether the probe is failing and the last error message.
func (p *probe) state() (failing bool, msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.failing {
		return false, "ok"
	}
	if p.lastErr != nil {
		return true, p.lastErr.Error()
	}
	return true, "check is unhealthy"
}

// Service tracks liveness and readiness probes for one process.
type Service struct {
	ready atomic.Bool

	mu     sync.Mutex
	probes []*probe
	cancel context.CancelFunc
}

// New creates a Service in the not-ready state. Call SetReady(true) once
// initialization is complete.
func New() *Service {
	return &Service{}
}

// AddLivenessCheck registers a check for the /livez endpoint. Liveness
// failures signal the process itself is wedged (goroutine leaks, GC stalls)
// and should be restarted.
func (s *Service) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.add(&probe{name: name, kind: kindLiveness, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a check for the /readyz endpoint. Readiness
// failures signal a dependency (database, cache) is unavailable and traffic
// should be routed elsewhere until it recovers.
func (s *Service) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	s.add(&probe{name: name, kind: kindReadiness, timeout: timeout, fn: fn})
}

func (s *Service) add(p *probe) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.probes = append(s.probes, p)
}

// Start launches the background scheduler. Every interval each probe runs in
// its own goroutine so one slow check does not delay the others. Probes run
// once immediately so endpoints have data before the first tick.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.cancel = cancel
	probes := make([]*probe, len(s.probes))
	copy(probes, s.probes)
	s.mu.Unlock()

	runAll := func() {
		for _, p := range probes {
			go p.execute(ctx)
		}
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		runAll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runAll()
			}
		}
	}()
}

// Stop cancels the background scheduler. Safe to call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Set false during graceful
// shutdown so the load balancer drains the pod before the listener closes.
func (s *Service) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the manual gate is open and every readiness probe
// is passing.
func (s *Service) IsReady() bool {
	if !s.ready.Load() {
		return false
	}
	for _, p := range s.snapshot(kindReadiness) {
		if failing, _ := p.state(); failing {
			return false
		}
	}
	return true
}

func (s *Service) snapshot(kind int) []*probe {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*probe, 0, len(s.probes))
	for _, p := range s.probes {
		if p.kind == kind {
			out = append(out, p)
		}
	}
	return out
}

// probeResponse is the JSON body for both endpoints. Checks maps every probe
// name to "ok" or its failure message.
type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 while all liveness probes pass, 503
// otherwise.
func (s *Service) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, s.snapshot(kindLiveness), true)
}

// ReadyEndpoint serves /readyz: 200 while the manual gate is open and all
// readiness probes pass, 503 otherwise.
func (s *Service) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, s.snapshot(kindReadiness), s.ready.Load())
}

func (s *Service) respond(w http.ResponseWriter, probes []*probe, gateOpen bool) {
	resp := probeResponse{Status: "ok", Checks: make(map[string]string, len(probes))}
	code := http.StatusOK

	for _, p := range probes {
		failing, msg := p.state()
		resp.Checks[p.name] = msg
		if failing {
			resp.Status = "unhealthy"
			code = http.StatusServiceUnavailable
		}
	}
	if !gateOpen {
		resp.Status = "unhealthy"
		resp.Checks["_gate"] = "service is not ready"
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
