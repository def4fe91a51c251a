// Package auth provides bearer token generation, hashing, and comparison for
// the relay feed.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strings"
)

// GenerateToken returns a cryptographically random, URL-safe token string.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashToken returns a deterministic SHA-256 hex digest of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// ConstantTimeHashEquals compares two hex hash strings in constant time.
func ConstantTimeHashEquals(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// BearerToken extracts the token from an "Authorization: Bearer" header,
// falling back to the access_token query parameter used by browser
// websocket clients.
func BearerToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

// Authorized reports whether r carries a token whose hash equals wantHash.
// An empty wantHash authorizes every request.
func Authorized(r *http.Request, wantHash string) bool {
	if wantHash == "" {
		return true
	}
	token := BearerToken(r)
	if token == "" {
		return false
	}
	return ConstantTimeHashEquals(HashToken(token), wantHash)
}
