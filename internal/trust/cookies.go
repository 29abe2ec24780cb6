package trust

import (
	"log"
	"net/http"
	"strings"
	"time"
)

// SessionCookieName is the cookie carrying the session token.
const SessionCookieName = "rb_session"

// CSRFHeaderName is the header clients send the CSRF token in on
// state-changing requests.
const CSRFHeaderName = "X-CSRF-Token"

// DefaultRotationInterval is the default session age after which rotation is
// recommended.
const DefaultRotationInterval = 120 * time.Minute

// CookieConfig controls which cookie security checks run.
type CookieConfig struct {
	EnableCSRFProtection           bool
	EnableSessionRotation          bool
	EnableCookieTamperingDetection bool
	// SessionRotationInterval is the session age threshold for the rotation
	// advisory. Zero means DefaultRotationInterval.
	SessionRotationInterval time.Duration
}

// injectionMarkers are substrings that must never appear in a session token.
// Their presence means the cookie was tampered with or crafted for injection.
var injectionMarkers = []string{"<script", "</script", "javascript:"}

// ValidateCookieSecurity runs the cookie trust checks for the request, in
// order, short-circuiting on the first hard failure. issuedAt is when the
// bound session was created, used for the rotation-age advisory. production
// gates the secure-transport hard failure. Panics inside the checks are
// treated as an invalid verdict (fail closed), never as a pass.
func ValidateCookieSecurity(r *http.Request, issuedAt time.Time, cfg CookieConfig, production bool) (v Verdict) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("trust: cookie validation panicked: %v", rec)
			v = Verdict{IsValid: false, ShouldClearCookies: true, Reason: "internal validation error"}
		}
	}()

	token := SessionToken(r)
	if token == "" {
		return Verdict{IsValid: false, ShouldClearCookies: true, Reason: "No valid session token found"}
	}

	if cfg.EnableCookieTamperingDetection && containsInjectionMarker(token) {
		return Verdict{IsValid: false, ShouldClearCookies: true, Reason: "Suspicious cookie content detected"}
	}

	if production && !isSecureTransport(r) {
		return Verdict{IsValid: false, Reason: "Insecure transmission in production environment"}
	}

	v = Verdict{IsValid: true}

	interval := cfg.SessionRotationInterval
	if interval <= 0 {
		interval = DefaultRotationInterval
	}
	if cfg.EnableSessionRotation && !issuedAt.IsZero() && time.Since(issuedAt) > interval {
		v.ShouldRotateSession = true
		v.Recommendations = append(v.Recommendations, "Session should be rotated due to age")
	}

	if cfg.EnableCSRFProtection && isStateChanging(r.Method) && r.Header.Get(CSRFHeaderName) == "" {
		v.Recommendations = append(v.Recommendations, "CSRF token missing for non-GET request")
	}

	return v
}

// NewSessionCookie builds the session cookie for token. Production defaults
// are Secure, HttpOnly, SameSite=Strict.
func NewSessionCookie(token, domain string, maxAge time.Duration, production bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   domain,
		MaxAge:   int(maxAge.Seconds()),
		Secure:   production,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearSessionCookie returns a cookie that expires the session cookie
// immediately. Used whenever a verdict sets ShouldClearCookies.
func ClearSessionCookie(domain string, production bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   domain,
		MaxAge:   -1,
		Secure:   production,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

// SessionToken returns the session token from the cookie, or the Bearer
// authorization header as a fallback for non-browser clients.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	auth := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}

func containsInjectionMarker(token string) bool {
	lower := strings.ToLower(token)
	for _, m := range injectionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// isSecureTransport reports whether the request arrived over TLS directly or
// a trusted reverse proxy asserts a secure scheme.
func isSecureTransport(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	if strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return true
	}
	// Cloudflare asserts the visitor scheme as a small JSON blob.
	if strings.Contains(r.Header.Get("CF-Visitor"), `"scheme":"https"`) {
		return true
	}
	return false
}

func isStateChanging(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
