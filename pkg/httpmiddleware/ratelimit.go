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

	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per Window.
	Max    int
	Window time.Duration
	// KeyFunc extracts the rate limit key from a request. Defaults to the
	// client IP address.
	KeyFunc func(*http.Request) string
	// Skip exempts matching requests. CORS preflights are always exempt.
	Skip func(*http.Request) bool

	now func() time.Time
}

// counter approximates a sliding window from the counts of the current fixed
// window and the one before it.
type counter struct {
	start      time.Time
	prev, curr float64
}

// advance moves the counter to the fixed window containing now.
func (c *counter) advance(now time.Time, size time.Duration) {
	start := now.Truncate(size)
	switch d := start.Sub(c.start); {
	case d <= 0:
		return
	case d == size:
		c.prev, c.curr = c.curr, 0
	default:
		c.prev, c.curr = 0, 0
	}
	c.start = start
}

// estimate weights the previous window by the share of it still inside the
// sliding window ending at now.
func (c *counter) estimate(now time.Time, size time.Duration) float64 {
	weight := 1 - float64(now.Sub(c.start))/float64(size)
	return c.prev*weight + c.curr
}

type limiter struct {
	cfg      RateLimitConfig
	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &limiter{cfg: cfg, counters: make(map[string]*counter)}
}

// take counts one request for key unless the budget is spent. It returns the
// remaining budget and the end of the current fixed window.
func (l *limiter) take(key string, now time.Time) (remaining int, reset time.Time, ok bool) {
	size := l.cfg.Window

	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.counters[key]
	if !found {
		c = &counter{start: now.Truncate(size)}
		l.counters[key] = c
	}
	c.advance(now, size)
	reset = c.start.Add(size)

	used := c.estimate(now, size)
	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	c.curr++
	return max(0, int(float64(l.cfg.Max)-used-1)), reset, true
}

// prune drops counters that no longer influence any decision.
func (l *limiter) prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.cfg.Window {
			delete(l.counters, key)
		}
	}
}

func (l *limiter) pruneEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.prune(l.cfg.now())
		}
	}
}

// RateLimit limits each key to cfg.Max requests per sliding cfg.Window and
// answers 429 with the API error body beyond that. Every counted response
// carries X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
//
// Counters are never evicted; servers use RateLimitWithCleanup.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine that evicts stale
// counters every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go l.pruneEvery(ctx, 2*cfg.Window)
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || (l.cfg.Skip != nil && l.cfg.Skip(r)) {
			next.ServeHTTP(w, r)
			return
		}

		now := l.cfg.now()
		remaining, reset, ok := l.take(l.cfg.KeyFunc(r), now)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !ok {
			wait := max(0, reset.Sub(now))
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			zctx.From(r.Context()).Info("Rate limit exceeded",
				zap.String("path", r.URL.Path),
				zap.Duration("retry_after", wait),
			)
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SkipPaths exempts requests whose path is exactly one of paths, such as
// health probes.
func SkipPaths(paths ...string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := set[r.URL.Path]
		return ok
	}
}

// CookieKeyFunc limits by the UUID session id in the named cookie, so carts
// behind one NAT are counted apart. Requests without the cookie, or with a
// value that is not a UUID, fall back to the client IP.
func CookieKeyFunc(name string) func(*http.Request) string {
	return func(r *http.Request) string {
		if c, err := r.Cookie(name); err == nil {
			if id, err := uuid.Parse(c.Value); err == nil {
				return "session:" + id.String()
			}
		}
		return clientIP(r)
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
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
