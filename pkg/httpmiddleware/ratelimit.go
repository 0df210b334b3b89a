package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures a sliding-window limiter.
type RateLimitConfig struct {
	// Max requests per Window and key.
	Max    int
	Window time.Duration
	// Key identifies the caller. Defaults to the client IP.
	Key func(*http.Request) string
	// Skip exempts requests, such as health probes, from limiting.
	Skip func(*http.Request) bool
}

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// window counts requests in the current fixed window and remembers the
// previous one so the estimate slides across the boundary.
type window struct {
	start time.Time
	count float64
	prev  float64
}

// Limiter approximates a sliding window per key from two fixed windows.
type Limiter struct {
	max  int
	size time.Duration

	mu   sync.Mutex
	keys map[string]*window
}

// NewLimiter returns a Limiter allowing max requests per size.
func NewLimiter(max int, size time.Duration) *Limiter {
	return &Limiter{max: max, size: size, keys: make(map[string]*window)}
}

// Allow records a request for key at now if the estimated rate permits it.
func (l *Limiter) Allow(key string, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.keys[key]
	if !ok {
		w = &window{start: now.Truncate(l.size)}
		l.keys[key] = w
	}
	w.roll(now, l.size)

	into := now.Sub(w.start).Seconds() / l.size.Seconds()
	estimate := w.prev*math.Max(0, 1-into) + w.count
	d := Decision{ResetAt: w.start.Add(l.size)}
	if estimate >= float64(l.max) {
		return d
	}
	w.count++
	d.Allowed = true
	d.Remaining = max(0, l.max-int(math.Ceil(estimate+1)))
	return d
}

func (w *window) roll(now time.Time, size time.Duration) {
	elapsed := now.Sub(w.start)
	switch {
	case elapsed < size:
		return
	case elapsed < 2*size:
		w.prev = w.count
	default:
		w.prev = 0
	}
	w.count = 0
	w.start = now.Truncate(size)
}

// Evict drops keys idle for two windows.
func (l *Limiter) Evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, w := range l.keys {
		if now.Sub(w.start) >= 2*l.size {
			delete(l.keys, key)
		}
	}
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// RunEviction evicts idle keys every other window until ctx is done.
func (l *Limiter) RunEviction(ctx context.Context) {
	ticker := time.NewTicker(2 * l.size)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.Evict(now)
		}
	}
}

// RateLimit answers 429 once a key exceeds its budget. Limited and allowed
// responses carry X-RateLimit-* headers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return RateLimitWith(NewLimiter(cfg.Max, cfg.Window), cfg)
}

// RateLimitWithCleanup is RateLimit with idle keys evicted in the
// background until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := NewLimiter(cfg.Max, cfg.Window)
	go l.RunEviction(ctx)
	return RateLimitWith(l, cfg)
}

// RateLimitWith uses an existing limiter.
func RateLimitWith(l *Limiter, cfg RateLimitConfig) Middleware {
	key := cfg.Key
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}
			now := time.Now()
			d := l.Allow(key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
			if !d.Allowed {
				wait := max(0, d.ResetAt.Sub(now))
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP is the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
