package trust

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func cleanRequest() *http.Request {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Firefox/131.0")
	return r
}

func TestDetectSessionHijacking_CleanRequest(t *testing.T) {
	res := DetectSessionHijacking(cleanRequest())
	if res.IsHijackingAttempt {
		t.Error("clean request: want no hijack attempt")
	}
	if res.Risk != RiskLow {
		t.Errorf("clean request: want low risk, got %v", res.Risk)
	}
	if len(res.Indicators) != 0 {
		t.Errorf("clean request: want no indicators, got %v", res.Indicators)
	}
}

func TestDetectSessionHijacking_ManySessionCookies(t *testing.T) {
	r := cleanRequest()
	for _, name := range []string{"rb_session", "old_session", "sessionid", "auth_token"} {
		r.AddCookie(&http.Cookie{Name: name, Value: "v"})
	}
	res := DetectSessionHijacking(r)
	if res.Risk != RiskMedium {
		t.Fatalf("four session cookies: want medium, got %v", res.Risk)
	}
	if !containsString(res.Indicators, "Multiple session cookies detected") {
		t.Errorf("four session cookies: indicators %v", res.Indicators)
	}
	if !res.IsHijackingAttempt {
		t.Error("four session cookies: want IsHijackingAttempt")
	}
}

func TestDetectSessionHijacking_ThreeSessionCookiesOK(t *testing.T) {
	r := cleanRequest()
	for _, name := range []string{"rb_session", "rb_csrf_token", "sid"} {
		r.AddCookie(&http.Cookie{Name: name, Value: "v"})
	}
	if res := DetectSessionHijacking(r); res.IsHijackingAttempt {
		t.Errorf("three session cookies: want clean, got %v", res.Indicators)
	}
}

func TestDetectSessionHijacking_SpoofHeader(t *testing.T) {
	r := cleanRequest()
	r.Header.Set("X-Original-URL", "/admin")
	res := DetectSessionHijacking(r)
	if res.Risk != RiskHigh {
		t.Fatalf("spoof header: want high, got %v", res.Risk)
	}
	if !containsString(res.Indicators, "Suspicious header detected: X-Original-URL") {
		t.Errorf("spoof header: indicators %v", res.Indicators)
	}
}

func TestDetectSessionHijacking_ForwardedHostAllowListed(t *testing.T) {
	r := cleanRequest()
	r.Header.Set("X-Forwarded-Host", "boards.example.com")
	if res := DetectSessionHijacking(r); res.IsHijackingAttempt {
		t.Errorf("forwarded host: want clean, got %v", res.Indicators)
	}
}

func TestDetectSessionHijacking_ShortUserAgent(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("User-Agent", "curl")
	res := DetectSessionHijacking(r)
	if res.Risk != RiskMedium {
		t.Fatalf("short user agent: want medium, got %v", res.Risk)
	}
	if !containsString(res.Indicators, "Suspicious or missing User-Agent header") {
		t.Errorf("short user agent: indicators %v", res.Indicators)
	}
}

func TestDetectSessionHijacking_RiskIsMaxOfSignals(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("User-Agent", "x")
	r.Header.Set("X-Rewrite-URL", "/other")
	res := DetectSessionHijacking(r)
	if res.Risk != RiskHigh {
		t.Errorf("medium + high signals: want high, got %v", res.Risk)
	}
	if len(res.Indicators) != 2 {
		t.Errorf("want both indicators, got %v", res.Indicators)
	}
}
