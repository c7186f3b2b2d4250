package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRateLimiterGetIPIgnoresForwardedWithoutTrustedProxy(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 10, time.Minute)
	req := httptest.NewRequest("GET", "http://localhost", nil)
	req.RemoteAddr = "192.0.2.10:54321"
	req.Header.Set("X-Forwarded-For", "203.0.113.50")

	got := rl.getIP(req)
	if got != "192.0.2.10" {
		t.Fatalf("expected direct remote IP, got %q", got)
	}
}

func TestRateLimiterGetIPUsesNearestUntrustedForwardedHop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 10, time.Minute)
	rl.SetTrustedProxies([]string{"10.0.0.0/8"})

	req := httptest.NewRequest("GET", "http://localhost", nil)
	req.RemoteAddr = "10.1.2.3:44321"
	req.Header.Set("X-Forwarded-For", "198.51.100.66, 203.0.113.10, 10.1.2.3")

	got := rl.getIP(req)
	if got != "203.0.113.10" {
		t.Fatalf("expected nearest untrusted forwarded hop, got %q", got)
	}
}

func TestRateLimiterBlocksAboveRate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rl := NewRateLimiter(ctx, 2, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "http://localhost/api/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:54321"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		last = rec.Code
	}

	if last != http.StatusTooManyRequests {
		t.Fatalf("expected third request to be limited, got %d", last)
	}
}
