// Package fingerprint derives a privacy-preserving identity fingerprint from
// an HTTP request. The network origin and the client signature (User-Agent)
// are hashed independently so IP-only drift can be told apart from
// signature-only drift. Raw values are never stored.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL is how long a stored fingerprint is considered comparable to a
// fresh one before Compare reports "expired".
const DefaultTTL = 24 * time.Hour

// Fingerprint is a hashed, non-reversible summary of a request's origin.
// Immutable once created; compared, never mutated.
type Fingerprint struct {
	IPHash        string `json:"ipHash"`
	UserAgentHash string `json:"userAgentHash"`
	CapturedAtMs  int64  `json:"timestampMs"`
}

// Result is the outcome of comparing two fingerprints.
type Result struct {
	IsValid bool
	Reason  string
}

// Generate builds a Fingerprint from the request's client IP and User-Agent.
// The client IP honors X-Forwarded-For and X-Real-IP (first hop) before
// falling back to RemoteAddr.
func Generate(r *http.Request) Fingerprint {
	return Fingerprint{
		IPHash:        hashComponent(clientIP(r)),
		UserAgentHash: hashComponent(r.UserAgent()),
		CapturedAtMs:  time.Now().UnixMilli(),
	}
}

// Compare checks b (current) against a (stored). Returns invalid with reason
// "IP mismatch", "signature mismatch", or "expired" (when b was captured more
// than ttl after a); valid otherwise. Pass ttl <= 0 to use DefaultTTL.
func Compare(a, b Fingerprint, ttl time.Duration) Result {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if a.IPHash != b.IPHash {
		return Result{IsValid: false, Reason: "IP mismatch"}
	}
	if a.UserAgentHash != b.UserAgentHash {
		return Result{IsValid: false, Reason: "signature mismatch"}
	}
	if b.CapturedAtMs-a.CapturedAtMs > ttl.Milliseconds() {
		return Result{IsValid: false, Reason: "expired"}
	}
	return Result{IsValid: true}
}

func hashComponent(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

// clientIP returns the originating client IP for the request, preferring
// proxy-forwarded headers over the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i >= 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return strings.TrimSpace(rip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
