package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
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

// fakeClock is a settable time source aligned to a minute boundary.
type fakeClock struct{ t time.Time }

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func send(h http.Handler, method, path, addr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = addr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRateLimit_UnderLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := send(handler, http.MethodGet, "/api/cart", "192.168.1.1:12345")

		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(4-i), w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	clock := newFakeClock()
	clock.advance(15 * time.Second)
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute, now: clock.now})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, send(handler, http.MethodPost, "/api/cart/items", "10.0.0.1:9999").Code)
	}

	w := send(handler, http.MethodPost, "/api/cart/items", "10.0.0.1:9999")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "45", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"code":429,"message":"rate limit exceeded"}`, w.Body.String())
}

func TestRateLimit_SlidingWindow(t *testing.T) {
	clock := newFakeClock()
	handler := RateLimit(RateLimitConfig{Max: 4, Window: time.Minute, now: clock.now})(okHandler())
	const addr = "10.0.0.1:1234"

	for range 4 {
		require.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/", addr).Code)
	}
	require.Equal(t, http.StatusTooManyRequests, send(handler, http.MethodGet, "/", addr).Code)

	// Half of the previous window still counts: 4 × 0.5 = 2 used.
	clock.advance(90 * time.Second)
	w := send(handler, http.MethodGet, "/", addr)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	require.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/", addr).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(handler, http.MethodGet, "/", addr).Code)

	// Two idle windows reset the budget.
	clock.advance(3 * time.Minute)
	for range 4 {
		assert.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/", addr).Code)
	}
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/", "10.0.0.1:1234").Code)
	assert.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/", "10.0.0.2:1234").Code)
	assert.Equal(t, http.StatusTooManyRequests, send(handler, http.MethodGet, "/", "10.0.0.1:5678").Code)
}

func TestRateLimit_Exemptions(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Skip:   SkipPaths("/livez", "/readyz"),
	})(okHandler())
	const addr = "10.0.0.1:1234"

	for range 3 {
		w := send(handler, http.MethodGet, "/readyz", addr)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))

		w = send(handler, http.MethodOptions, "/api/cart", addr)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, http.StatusOK, send(handler, http.MethodGet, "/api/cart", addr).Code)
	assert.Equal(t, http.StatusTooManyRequests, send(handler, http.MethodGet, "/api/cart", addr).Code)
}

func TestRateLimit_CookieKeyFunc(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:     1,
		Window:  time.Minute,
		KeyFunc: CookieKeyFunc("sid"),
	})(okHandler())

	sendAs := func(sid string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		if sid != "" {
			req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	const (
		sessionA = "0195f0c2-7d1e-7a3b-9c4d-5e6f7a8b9c0d"
		sessionB = "0195f0c2-7d1e-7a3b-9c4d-5e6f7a8b9c0e"
	)

	// Two sessions behind the same address are limited independently.
	assert.Equal(t, http.StatusOK, sendAs(sessionA))
	assert.Equal(t, http.StatusOK, sendAs(sessionB))
	assert.Equal(t, http.StatusTooManyRequests, sendAs(sessionA))

	// Without the cookie the address is the key.
	assert.Equal(t, http.StatusOK, sendAs(""))
	assert.Equal(t, http.StatusTooManyRequests, sendAs(""))
}

func TestRateLimit_CookieKeyFuncRejectsMadeUpIDs(t *testing.T) {
	keyFunc := CookieKeyFunc("sid")
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: keyFunc})(okHandler())

	sendAs := func(sid string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		req.AddCookie(&http.Cookie{Name: "sid", Value: sid})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w.Code
	}

	// Rotating arbitrary values does not buy a fresh budget.
	assert.Equal(t, http.StatusOK, sendAs("x1"))
	assert.Equal(t, http.StatusTooManyRequests, sendAs("x2"))
	assert.Equal(t, http.StatusTooManyRequests, sendAs("not-a-uuid"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	req.AddCookie(&http.Cookie{Name: "sid", Value: "forged"})
	assert.Equal(t, "10.0.0.9", keyFunc(req))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{name: "forwarded chain", header: map[string]string{"X-Forwarded-For": "203.0.113.50, 70.41.3.18"}, remote: "192.168.1.1:4444", want: "203.0.113.50"},
		{name: "real ip", header: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "192.168.1.1:4444", want: "198.51.100.7"},
		{name: "remote addr", remote: "192.168.1.1:4444", want: "192.168.1.1"},
		{name: "remote without port", remote: "192.168.1.1", want: "192.168.1.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}

func TestLimiter_Prune(t *testing.T) {
	clock := newFakeClock()
	l := newLimiter(RateLimitConfig{Max: 1, Window: time.Minute, now: clock.now})

	_, _, ok := l.take("a", clock.now())
	require.True(t, ok)

	l.prune(clock.now().Add(time.Minute))
	assert.Len(t, l.counters, 1)

	l.prune(clock.now().Add(2 * time.Minute))
	assert.Empty(t, l.counters)
}
