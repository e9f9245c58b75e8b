package ledgerd

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 2})
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }
	handler := limiter.Middleware("/v1/status")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	require.Equal(t, http.StatusNoContent, call("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, call("10.0.0.1"))
	require.Equal(t, http.StatusNoContent, call("10.0.0.2"))

	now = now.Add(time.Second)
	require.Equal(t, http.StatusNoContent, call("10.0.0.1"))
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	limiter := NewRateLimiter(RateLimitConfig{RequestsPerMinute: 60, Burst: 1})
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	require.True(t, limiter.allow("a"))
	now = now.Add(10 * time.Minute)
	require.True(t, limiter.allow("b"))
	require.Len(t, limiter.visitors, 1)
}

func TestRateLimiterDisabled(t *testing.T) {
	var limiter *RateLimiter
	handler := limiter.Middleware("x")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	require.Equal(t, "192.0.2.1", clientID(req))
	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	require.Equal(t, "198.51.100.7", clientID(req))
	req.Header.Set("X-Real-IP", "203.0.113.9")
	require.Equal(t, "203.0.113.9", clientID(req))
}
