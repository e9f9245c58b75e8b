package ledgerd

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"leadfive/observability"
)

const visitorIdleTTL = 5 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client address.
type RateLimiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	visitors map[string]*visitor
	swept    time.Time
	now      func() time.Time
}

// NewRateLimiter constructs a limiter. A non-positive rate disables limiting.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		cfg:      cfg,
		visitors: make(map[string]*visitor),
		now:      time.Now,
	}
}

// Middleware rejects requests over the budget with 429.
func (l *RateLimiter) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if l == nil || l.cfg.RequestsPerMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			if !l.allow(clientID(r)) {
				observability.API().RecordThrottle(route, "rate_limit")
				writeProblem(w, http.StatusTooManyRequests, "rate_limited", http.StatusText(http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (l *RateLimiter) allow(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	v, ok := l.visitors[id]
	if !ok {
		burst := l.cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(l.cfg.RequestsPerMinute/60.0), burst)}
		l.visitors[id] = v
	}
	v.lastSeen = now
	l.sweep(now)
	return v.limiter.AllowN(now, 1)
}

// sweep drops idle visitors at most once per idle window. Callers hold mu.
func (l *RateLimiter) sweep(now time.Time) {
	if now.Sub(l.swept) < visitorIdleTTL {
		return
	}
	l.swept = now
	for id, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdleTTL {
			delete(l.visitors, id)
		}
	}
}

func clientID(r *http.Request) string {
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if parsed := net.ParseIP(first); parsed != nil {
			return parsed.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
