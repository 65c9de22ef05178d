package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// okHandler is a trivial handler used to verify that allowed requests reach
// the downstream handler.
var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

var discard = slog.New(slog.DiscardHandler)

// TestRateLimit_AllowsUnderLimit verifies that requests within the burst
// capacity are passed through to the downstream handler.
func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(100, 5, discard)
	defer stop()

	h := rl.middleware(okHandler)

	for i := range 5 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ingests", nil)
		req.RemoteAddr = "127.0.0.1:12345"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

// TestRateLimit_RetryAfterHeader verifies that the request after the burst
// is rejected with 429 and a Retry-After matching the refill rate.
func TestRateLimit_RetryAfterHeader(t *testing.T) {
	t.Parallel()

	// one token, refilled every 100 seconds
	rl, stop := newRateLimiter(0.01, 1, discard)
	defer stop()

	h := rl.middleware(okHandler)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
	req2.RemoteAddr = "10.0.0.2:1234"
	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, req2)

	if w2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w2.Code)
	}
	if got := w2.Header().Get("Retry-After"); got != "100" && got != "99" {
		t.Errorf("Retry-After: expected about 100 seconds, got %q", got)
	}
	if ct := w2.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: expected application/json, got %q", ct)
	}
}

// TestRateLimit_RejectionDoesNotConsumeTokens verifies that rejected
// requests give their reservation back.
func TestRateLimit_RejectionDoesNotConsumeTokens(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.01, 1, discard)
	defer stop()

	now := time.Now()
	lim := rl.getLimiter("10.0.0.9", now)
	if !lim.AllowN(now, 1) {
		t.Fatal("first token must be available")
	}

	h := rl.middleware(okHandler)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:1"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
	if tokens := lim.TokensAt(now); tokens < -0.5 {
		t.Errorf("rejected requests consumed tokens: %v left", tokens)
	}
}

// TestRateLimit_PerIPIsolation verifies that two different IPs have
// independent token buckets.
func TestRateLimit_PerIPIsolation(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(0.001, 1, discard)
	defer stop()

	h := rl.middleware(okHandler)

	for range 5 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/current", nil)
		req.RemoteAddr = "192.168.1.1:1111"
		h.ServeHTTP(httptest.NewRecorder(), req)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/current", nil)
	req.RemoteAddr = "192.168.1.2:2222"
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("IP B: expected 200, got %d", w.Code)
	}
}

// TestRateLimit_Evict verifies that idle entries are dropped.
func TestRateLimit_Evict(t *testing.T) {
	t.Parallel()

	rl, stop := newRateLimiter(1, 1, discard)
	defer stop()

	now := time.Now()
	rl.getLimiter("old", now.Add(-2*limiterTTL))
	rl.getLimiter("fresh", now)

	if n := rl.evict(now); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := rl.limiters["fresh"]; !ok {
		t.Error("fresh entry was evicted")
	}
	stop()
	stop()
}

// TestClientIP verifies that clientIP strips the port from RemoteAddr.
func TestClientIP(t *testing.T) {
	t.Parallel()

	cases := []struct {
		remoteAddr string
		wantIP     string
	}{
		{"127.0.0.1:54321", "127.0.0.1"},
		{"10.0.0.1:80", "10.0.0.1"},
		{"[::1]:8080", "::1"},
		{"noport", "noport"},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tc.remoteAddr
		if got := clientIP(req); got != tc.wantIP {
			t.Errorf("remoteAddr=%q: expected %q, got %q", tc.remoteAddr, tc.wantIP, got)
		}
	}
}
