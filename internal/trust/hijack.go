package trust

import (
	"net/http"
	"strings"
)

// maxSessionCookies is how many session-like cookies a legitimate browser
// request plausibly carries. More suggests cookie stuffing or a replayed jar.
const maxSessionCookies = 3

// minUserAgentLength is the shortest User-Agent a real browser or API client
// sends.
const minUserAgentLength = 10

// spoofHeaders are headers that rewrite the request target. Outside the
// allow-list they are only ever set by an attacker or a misconfigured proxy.
var spoofHeaders = []string{"X-Original-URL", "X-Rewrite-URL", "X-Original-Host", "X-Forwarded-Host"}

// allowedForwardHeaders are proxy headers that look spoof-prone but are set
// legitimately by our reverse proxy.
var allowedForwardHeaders = map[string]bool{
	"X-Forwarded-Host": true,
}

// sessionCookiePatterns match cookie names that carry session material.
var sessionCookiePatterns = []string{"session", "sess", "sid", "token", "auth"}

// HijackResult aggregates independent hijacking signals for one request.
type HijackResult struct {
	IsHijackingAttempt bool
	Risk               Risk
	Indicators         []string
}

// DetectSessionHijacking scans the request for independent hijack signals and
// returns their aggregate. Risk is the max of the triggered signals; no
// signal means low risk, no indicators, and IsHijackingAttempt false.
func DetectSessionHijacking(r *http.Request) HijackResult {
	res := HijackResult{Risk: RiskLow}

	if n := countSessionCookies(r.Cookies()); n > maxSessionCookies {
		res.Risk = res.Risk.Max(RiskMedium)
		res.Indicators = append(res.Indicators, "Multiple session cookies detected")
	}

	for _, name := range spoofHeaders {
		if allowedForwardHeaders[name] {
			continue
		}
		if r.Header.Get(name) != "" {
			res.Risk = res.Risk.Max(RiskHigh)
			res.Indicators = append(res.Indicators, "Suspicious header detected: "+name)
		}
	}

	if ua := r.UserAgent(); len(ua) < minUserAgentLength {
		res.Risk = res.Risk.Max(RiskMedium)
		res.Indicators = append(res.Indicators, "Suspicious or missing User-Agent header")
	}

	res.IsHijackingAttempt = len(res.Indicators) > 0
	return res
}

func countSessionCookies(cookies []*http.Cookie) int {
	n := 0
	for _, c := range cookies {
		name := strings.ToLower(c.Name)
		for _, p := range sessionCookiePatterns {
			if strings.Contains(name, p) {
				n++
				break
			}
		}
	}
	return n
}
