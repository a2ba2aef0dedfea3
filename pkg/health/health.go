// Package health implements liveness and readiness probes for HTTP
// services.
//
// Probes are polled on a shared background ticker. A probe only flips to
// failing after several consecutive errors, and flips back after a
// consecutive success, so one slow poll does not bounce the service out of
// rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Check reports on one dependency. A nil return means healthy.
type Check func(ctx context.Context) error

const (
	// failAfter is how many consecutive errors a probe tolerates before
	// it reports failing.
	failAfter = 3
	// recoverAfter is how many consecutive successes move a failing
	// probe back to passing.
	recoverAfter = 1
)

// probe wraps a Check with flap suppression.
type probe struct {
	name    string
	timeout time.Duration
	fn      Check

	mu         sync.Mutex
	failing    bool
	lastErr    error
	failStreak int
	okStreak   int
}

// poll runs the check once and advances the streak counters.
func (p *probe) poll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.fn(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastErr = err
	if err != nil {
		p.okStreak = 0
		p.failStreak++
		if p.failStreak >= failAfter {
			p.failing = true
		}
		return
	}
	p.failStreak = 0
	p.okStreak++
	if p.okStreak >= recoverAfter {
		p.failing = false
	}
}

// status reports whether the probe is failing and the error it last saw.
func (p *probe) status() (failing bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failing, p.lastErr
}

// Health is a registry of liveness and readiness probes with HTTP
// endpoints for each group.
type Health struct {
	ready atomic.Bool

	mu        sync.Mutex
	liveness  []*probe
	readiness []*probe
	stop      context.CancelFunc
}

// New returns an empty registry. The service reports not ready until
// SetReady(true) is called after startup completes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe on the liveness group. Liveness
// probes watch the process itself: goroutine leaks, GC stalls.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, &probe{name: name, timeout: timeout, fn: fn})
}

// AddReadinessCheck registers a probe on the readiness group. Readiness
// probes watch external dependencies the service cannot serve without.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn Check) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, &probe{name: name, timeout: timeout, fn: fn})
}

// Start polls every registered probe once immediately and then on each
// tick of interval until ctx is cancelled or Stop is called. Register all
// probes before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.stop = cancel
	probes := make([]*probe, 0, len(h.liveness)+len(h.readiness))
	probes = append(probes, h.liveness...)
	probes = append(probes, h.readiness...)
	h.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		pollAll(ctx, probes)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pollAll(ctx, probes)
			}
		}
	}()
}

// pollAll runs the probes concurrently so one slow dependency does not
// delay the rest past the tick.
func pollAll(ctx context.Context, probes []*probe) {
	var wg sync.WaitGroup
	for _, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.poll(ctx)
		}()
	}
	wg.Wait()
}

// Stop cancels the polling goroutine. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		h.stop()
		h.stop = nil
	}
}

// SetReady flips the manual readiness gate. Call with true once startup
// completes and with false when draining, so the load balancer stops
// sending new traffic before shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe is
// passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	return len(failures(h.snapshot(&h.readiness))) == 0
}

func (h *Health) snapshot(group *[]*probe) []*probe {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*probe, len(*group))
	copy(out, *group)
	return out
}

// LiveEndpoint serves the liveness group, typically mounted at /livez.
// 200 {"status":"ok"} when every probe passes, otherwise 503 with the
// failing probes listed under "checks".
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failures(h.snapshot(&h.liveness)))
}

// ReadyEndpoint serves the readiness group, typically mounted at /readyz.
// The manual gate set by SetReady must be open and every readiness probe
// must pass for a 200.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failed := failures(h.snapshot(&h.readiness))
	if !h.ready.Load() {
		failed["service"] = "not ready"
	}
	writeStatus(w, failed)
}

// failures maps each failing probe to its last error message.
func failures(probes []*probe) map[string]string {
	failed := make(map[string]string)
	for _, p := range probes {
		failing, err := p.status()
		if !failing {
			continue
		}
		msg := "probe is failing"
		if err != nil {
			msg = err.Error()
		}
		failed[p.name] = msg
	}
	return failed
}

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func writeStatus(w http.ResponseWriter, failed map[string]string) {
	body := statusBody{Status: "ok"}
	code := http.StatusOK
	if len(failed) > 0 {
		body = statusBody{Status: "unhealthy", Checks: failed}
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
