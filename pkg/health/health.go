// Package health serves liveness and readiness probes backed by periodic
// checks. A check flips to failing after FailureThreshold consecutive errors
// and back to passing after SuccessThreshold consecutive successes.
package health

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// CheckFunc returns nil when the checked dependency is healthy.
type CheckFunc func(ctx context.Context) error

// Kind selects the probe a check contributes to.
type Kind int

const (
	Liveness Kind = iota
	Readiness
)

// Check describes one registered check.
type Check struct {
	Name             string
	Kind             Kind
	Timeout          time.Duration
	FailureThreshold int
	SuccessThreshold int
	Func             CheckFunc
}

type probe struct {
	Check

	passing atomic.Bool
	lastErr atomic.Pointer[error]

	// Owned by the single goroutine that calls run.
	fails  int
	passes int
}

func (p *probe) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	err := p.Func(ctx)
	p.lastErr.Store(&err)
	if err != nil {
		p.passes = 0
		if p.fails++; p.fails >= p.FailureThreshold {
			p.passing.Store(false)
		}
		return
	}
	p.fails = 0
	if p.passes++; p.passes >= p.SuccessThreshold {
		p.passing.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.passing.Load() {
		return "", false
	}
	if err := p.lastErr.Load(); err != nil && *err != nil {
		return (*err).Error(), true
	}
	return "failing", true
}

// Health aggregates checks and serves /livez and /readyz.
type Health struct {
	ready atomic.Bool

	mu     sync.RWMutex
	probes []*probe
	cancel context.CancelFunc
}

// New returns a Health that reports not ready until SetReady(true).
func New() *Health {
	return &Health{}
}

// Add registers c. Zero thresholds default to 3 failures and 1 success, a
// zero timeout to 5s. Checks start out passing.
func (h *Health) Add(c Check) {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	p := &probe{Check: c}
	p.passing.Store(true)

	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

// AddLivenessCheck registers a check that gates /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Check{Name: name, Kind: Liveness, Timeout: timeout, Func: fn})
}

// AddReadinessCheck registers a check that gates /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, fn CheckFunc) {
	h.Add(Check{Name: name, Kind: Readiness, Timeout: timeout, Func: fn})
}

// Start runs every check now and then every interval until Stop or ctx is
// done.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	if h.cancel != nil {
		h.cancel()
	}
	h.cancel = cancel
	probes := slices.Clone(h.probes)
	h.mu.Unlock()

	for _, p := range probes {
		go func() {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			for {
				p.run(ctx)
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
				}
			}
		}()
	}
}

// Stop halts the background checks. It is idempotent.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady toggles the manual readiness gate, e.g. off during shutdown.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the manual gate combined with the readiness checks.
func (h *Health) IsReady() bool {
	return h.ready.Load() && len(h.failures(Readiness)) == 0
}

func (h *Health) failures(kind Kind) map[string]string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make(map[string]string)
	for _, p := range h.probes {
		if p.Kind != kind {
			continue
		}
		if msg, failed := p.failure(); failed {
			out[p.Name] = msg
		}
	}
	return out
}

// LiveEndpoint serves /livez.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, h.failures(Liveness))
}

// ReadyEndpoint serves /readyz.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := h.failures(Readiness)
	if !h.ready.Load() {
		failures["_readiness"] = "not ready"
	}
	writeStatus(w, failures)
}

// writeStatus replies {"status":"ok"} or 503 with the failing checks in name
// order.
func writeStatus(w http.ResponseWriter, failures map[string]string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	status := http.StatusOK
	e.Obj(func(e *jx.Encoder) {
		if len(failures) == 0 {
			e.Field("status", func(e *jx.Encoder) { e.Str("ok") })
			return
		}
		status = http.StatusServiceUnavailable
		e.Field("status", func(e *jx.Encoder) { e.Str("unhealthy") })
		e.Field("checks", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				names := make([]string, 0, len(failures))
				for name := range failures {
					names = append(names, name)
				}
				slices.Sort(names)
				for _, name := range names {
					e.Field(name, func(e *jx.Encoder) { e.Str(failures[name]) })
				}
			})
		})
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
