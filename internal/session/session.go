package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const maxTokenAge = 24 * time.Hour

var secret []byte
var trustedProxies []string

func SetSecret(s string) {
	secret = []byte(s)
}

func SetTrustedProxies(proxies string) {
	if proxies == "" {
		trustedProxies = []string{}
		return
	}
	trustedProxies = strings.Split(proxies, ",")
	for i, p := range trustedProxies {
		trustedProxies[i] = strings.TrimSpace(p)
	}
}

func hmacSHA256(data string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

func constantTimeCompare(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}

// Mint produces the bearer credential handed out at secret login:
// sessionID:participantID:issuedAt signed with the server HMAC secret.
func Mint(sessionID, participantID string) string {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	payload := sessionID + ":" + participantID + ":" + timestamp
	signed := payload + ":" + hmacSHA256(payload)
	return base64.URLEncoding.EncodeToString([]byte(signed))
}

// Parse validates a credential's shape, age and signature and returns the
// embedded session and participant ids. Authorization still requires the
// session to resolve against the store; a parsed token alone proves nothing
// beyond "we minted this".
func Parse(token string) (sessionID, participantID string) {
	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", ""
	}

	parts := strings.Split(string(raw), ":")
	if len(parts) != 4 {
		return "", ""
	}

	sessionID, participantID, timestampStr, signature := parts[0], parts[1], parts[2], parts[3]

	timestamp, err := strconv.ParseInt(timestampStr, 10, 64)
	if err != nil {
		return "", ""
	}
	if time.Now().Unix()-timestamp > int64(maxTokenAge/time.Second) {
		return "", ""
	}

	expectedSig := hmacSHA256(sessionID + ":" + participantID + ":" + timestampStr)
	if !constantTimeCompare(signature, expectedSig) {
		return "", ""
	}

	return sessionID, participantID
}

// FromRequest extracts the credential from the Authorization header or the
// session cookie. WebSocket browser clients can only send the cookie.
func FromRequest(r *http.Request) (sessionID, participantID string) {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		if sessionID, participantID = Parse(strings.TrimPrefix(auth, "Bearer ")); sessionID != "" {
			return sessionID, participantID
		}
	}

	cookie, err := r.Cookie("session")
	if err != nil {
		return "", ""
	}
	return Parse(cookie.Value)
}

func IsTrustedRemote(remoteAddr string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	remoteIP, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		remoteIP = strings.TrimSpace(remoteAddr)
	}

	parsedRemoteIP := net.ParseIP(remoteIP)
	if parsedRemoteIP == nil {
		return false
	}

	for _, proxy := range trustedProxies {
		proxy = strings.TrimSpace(proxy)
		if proxy == "" {
			continue
		}

		if strings.Contains(proxy, "/") {
			_, ipNet, err := net.ParseCIDR(proxy)
			if err != nil {
				continue
			}
			if ipNet.Contains(parsedRemoteIP) {
				return true
			}
			continue
		}

		parsedProxyIP := net.ParseIP(proxy)
		if parsedProxyIP != nil && parsedProxyIP.Equal(parsedRemoteIP) {
			return true
		}
	}

	return false
}

func IsSecureRequest(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}

	if strings.EqualFold(r.URL.Scheme, "https") {
		return true
	}

	if !IsTrustedRemote(r.RemoteAddr) {
		return false
	}

	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
