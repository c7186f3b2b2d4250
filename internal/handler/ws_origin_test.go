package handler

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckOriginSchemeAndHostValidation(t *testing.T) {
	SetAllowedOrigins([]string{"https://foodfortalk.example.com"})

	allowedReq := httptest.NewRequest("GET", "http://localhost/ws", nil)
	allowedReq.Header.Set("Origin", "https://foodfortalk.example.com")
	if !checkOrigin(allowedReq) {
		t.Fatalf("expected matching https origin to be allowed")
	}

	disallowedReq := httptest.NewRequest("GET", "http://localhost/ws", nil)
	disallowedReq.Header.Set("Origin", "http://foodfortalk.example.com")
	if checkOrigin(disallowedReq) {
		t.Fatalf("expected http origin to be rejected when https origin is configured")
	}
}

func TestCheckOriginRequiresExactHTTPSMatch(t *testing.T) {
	SetAllowedOrigins([]string{"https://foodfortalk.example.com"})

	wrongHostReq := httptest.NewRequest("GET", "http://localhost/ws", nil)
	wrongHostReq.Header.Set("Origin", "https://sub.example.com")
	if checkOrigin(wrongHostReq) {
		t.Fatalf("expected non-configured host to be rejected")
	}

	bareHostReq := httptest.NewRequest("GET", "http://localhost/ws", nil)
	bareHostReq.Header.Set("Origin", "foodfortalk.example.com")
	if checkOrigin(bareHostReq) {
		t.Fatalf("expected non-origin bare host value to be rejected")
	}
}

func TestSentAtPreservesClientTimestamp(t *testing.T) {
	ms := time.Date(2026, 2, 14, 19, 30, 0, 0, time.UTC).UnixMilli()
	got := sentAt(ms)
	if got.UnixMilli() != ms {
		t.Fatalf("expected client timestamp to be preserved, got %v", got)
	}

	if !sentAt(0).IsZero() {
		t.Fatalf("expected missing timestamp to map to zero time")
	}
	if !sentAt(-5).IsZero() {
		t.Fatalf("expected negative timestamp to map to zero time")
	}
}
