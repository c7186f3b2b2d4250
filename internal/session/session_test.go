package session

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMintParseRoundTrip(t *testing.T) {
	SetSecret("test-secret-test-secret-test-secret!")

	token := Mint("sess-1", "participant-1")
	sessionID, participantID := Parse(token)
	if sessionID != "sess-1" || participantID != "participant-1" {
		t.Fatalf("round trip failed, got (%q, %q)", sessionID, participantID)
	}
}

func TestParseRejectsTamperedToken(t *testing.T) {
	SetSecret("test-secret-test-secret-test-secret!")

	token := Mint("sess-1", "participant-1")
	raw, _ := base64.URLEncoding.DecodeString(token)
	tampered := strings.Replace(string(raw), "participant-1", "participant-2", 1)
	forged := base64.URLEncoding.EncodeToString([]byte(tampered))

	if sessionID, _ := Parse(forged); sessionID != "" {
		t.Fatalf("expected tampered token to be rejected")
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	SetSecret("test-secret-test-secret-test-secret!")

	for _, token := range []string{"", "not-base64!!", base64.URLEncoding.EncodeToString([]byte("too:few:parts"))} {
		if sessionID, _ := Parse(token); sessionID != "" {
			t.Fatalf("expected %q to be rejected", token)
		}
	}
}

func TestFromRequestPrefersAuthorizationHeader(t *testing.T) {
	SetSecret("test-secret-test-secret-test-secret!")

	req := httptest.NewRequest("GET", "http://localhost/ws", nil)
	req.Header.Set("Authorization", "Bearer "+Mint("sess-header", "p1"))
	req.AddCookie(&http.Cookie{Name: "session", Value: Mint("sess-cookie", "p1")})

	sessionID, _ := FromRequest(req)
	if sessionID != "sess-header" {
		t.Fatalf("expected header credential to win, got %q", sessionID)
	}
}

func TestFromRequestFallsBackToCookie(t *testing.T) {
	SetSecret("test-secret-test-secret-test-secret!")

	req := httptest.NewRequest("GET", "http://localhost/ws", nil)
	req.AddCookie(&http.Cookie{Name: "session", Value: Mint("sess-cookie", "p2")})

	sessionID, participantID := FromRequest(req)
	if sessionID != "sess-cookie" || participantID != "p2" {
		t.Fatalf("expected cookie credential, got (%q, %q)", sessionID, participantID)
	}
}

func TestFromRequestWithoutCredential(t *testing.T) {
	SetSecret("test-secret-test-secret-test-secret!")

	req := httptest.NewRequest("GET", "http://localhost/ws", nil)
	if sessionID, _ := FromRequest(req); sessionID != "" {
		t.Fatalf("expected no credential, got %q", sessionID)
	}
}
