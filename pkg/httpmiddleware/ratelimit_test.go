package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestFrom(remote string, headers ...string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.RemoteAddr = remote
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return req
}

func TestLimiter_SlidingWindow(t *testing.T) {
	l := NewLimiter(4, time.Minute)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := range 4 {
		d := l.Allow("k", start.Add(time.Duration(i)*time.Second))
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 3-i, d.Remaining)
	}
	assert.False(t, l.Allow("k", start.Add(30*time.Second)).Allowed)

	// Half way into the next window half of the previous count still weighs.
	next := start.Add(90 * time.Second)
	assert.True(t, l.Allow("k", next).Allowed)
	assert.True(t, l.Allow("k", next).Allowed)
	assert.False(t, l.Allow("k", next).Allowed)

	// After two idle windows the key starts fresh.
	assert.Equal(t, 3, l.Allow("k", start.Add(5*time.Minute)).Remaining)
}

func TestLimiter_Evict(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.Allow("a", now)
	l.Allow("b", now.Add(90*time.Second))
	require.Equal(t, 2, l.Len())

	l.Evict(now.Add(2 * time.Minute))
	assert.Equal(t, 1, l.Len())
}

func TestRateLimit(t *testing.T) {
	tests := []struct {
		name     string
		cfg      RateLimitConfig
		requests []*http.Request
		want     []int
	}{
		{
			name: "under limit",
			cfg:  RateLimitConfig{Max: 3, Window: time.Minute},
			requests: []*http.Request{
				requestFrom("10.0.0.1:1"), requestFrom("10.0.0.1:2"), requestFrom("10.0.0.1:3"),
			},
			want: []int{200, 200, 200},
		},
		{
			name: "over limit",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			requests: []*http.Request{
				requestFrom("10.0.0.1:1"), requestFrom("10.0.0.1:2"),
			},
			want: []int{200, 429},
		},
		{
			name: "keys are independent",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			requests: []*http.Request{
				requestFrom("10.0.0.1:1"), requestFrom("10.0.0.2:1"), requestFrom("10.0.0.1:1"),
			},
			want: []int{200, 200, 429},
		},
		{
			name: "forwarded client",
			cfg:  RateLimitConfig{Max: 1, Window: time.Minute},
			requests: []*http.Request{
				requestFrom("192.168.1.1:1", "X-Forwarded-For", "203.0.113.50, 70.41.3.18"),
				requestFrom("192.168.1.2:1", "X-Forwarded-For", "203.0.113.50"),
			},
			want: []int{200, 429},
		},
		{
			name: "custom key",
			cfg: RateLimitConfig{Max: 1, Window: time.Minute, Key: func(r *http.Request) string {
				return r.Header.Get("Authorization")
			}},
			requests: []*http.Request{
				requestFrom("10.0.0.1:1", "Authorization", "a"),
				requestFrom("10.0.0.1:1", "Authorization", "b"),
				requestFrom("10.0.0.2:1", "Authorization", "a"),
			},
			want: []int{200, 200, 429},
		},
		{
			name: "skipped requests are not counted",
			cfg: RateLimitConfig{Max: 1, Window: time.Minute, Skip: func(r *http.Request) bool {
				return r.Header.Get("X-Probe") != ""
			}},
			requests: []*http.Request{
				requestFrom("10.0.0.1:1", "X-Probe", "1"),
				requestFrom("10.0.0.1:1", "X-Probe", "1"),
				requestFrom("10.0.0.1:1"),
			},
			want: []int{200, 200, 200},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.cfg)(okHandler())
			for i, req := range tt.requests {
				w := httptest.NewRecorder()
				h.ServeHTTP(w, req)
				assert.Equal(t, tt.want[i], w.Code, "request %d", i)
			}
		})
	}
}

func TestRateLimit_Response(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	w := httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, requestFrom("10.0.0.1:1"))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, 429, body.Code)
	assert.True(t, strings.Contains(body.Message, "rate limit"))
}
