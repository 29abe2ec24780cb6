package fingerprint

import (
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate_HashesComponentsIndependently(t *testing.T) {
	r1 := httptest.NewRequest("GET", "/", nil)
	r1.RemoteAddr = "10.0.0.1:1234"
	r1.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	r2 := httptest.NewRequest("GET", "/", nil)
	r2.RemoteAddr = "10.0.0.2:1234"
	r2.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64)")

	a := Generate(r1)
	b := Generate(r2)
	if a.IPHash == b.IPHash {
		t.Error("different IPs should produce different ip hashes")
	}
	if a.UserAgentHash != b.UserAgentHash {
		t.Error("same user agent should produce the same signature hash")
	}
	if a.IPHash == "10.0.0.1" {
		t.Error("raw IP must not appear in the fingerprint")
	}
}

func TestGenerate_ForwardedFor(t *testing.T) {
	direct := httptest.NewRequest("GET", "/", nil)
	direct.RemoteAddr = "203.0.113.9:443"

	proxied := httptest.NewRequest("GET", "/", nil)
	proxied.RemoteAddr = "10.0.0.1:1234"
	proxied.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if Generate(direct).IPHash != Generate(proxied).IPHash {
		t.Error("X-Forwarded-For first hop should match direct connection from same IP")
	}
}

func TestCompare_Reflexive(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("User-Agent", "Mozilla/5.0")
	fp := Generate(r)

	res := Compare(fp, fp, DefaultTTL)
	if !res.IsValid {
		t.Errorf("fingerprint compared to itself should be valid, got reason %q", res.Reason)
	}
}

func TestCompare_DetectsEachDrift(t *testing.T) {
	now := time.Now().UnixMilli()
	base := Fingerprint{IPHash: "ip-a", UserAgentHash: "ua-a", CapturedAtMs: now}

	tests := []struct {
		name    string
		current Fingerprint
		reason  string
	}{
		{"ip drift", Fingerprint{IPHash: "ip-b", UserAgentHash: "ua-a", CapturedAtMs: now}, "IP mismatch"},
		{"signature drift", Fingerprint{IPHash: "ip-a", UserAgentHash: "ua-b", CapturedAtMs: now}, "signature mismatch"},
		{"expired", Fingerprint{IPHash: "ip-a", UserAgentHash: "ua-a", CapturedAtMs: now + (25 * time.Hour).Milliseconds()}, "expired"},
	}
	for _, tt := range tests {
		res := Compare(base, tt.current, DefaultTTL)
		if res.IsValid {
			t.Errorf("%s: want invalid", tt.name)
			continue
		}
		if res.Reason != tt.reason {
			t.Errorf("%s: want reason %q, got %q", tt.name, tt.reason, res.Reason)
		}
	}
}

func TestCompare_ZeroTTLUsesDefault(t *testing.T) {
	now := time.Now().UnixMilli()
	a := Fingerprint{IPHash: "x", UserAgentHash: "y", CapturedAtMs: now}
	b := Fingerprint{IPHash: "x", UserAgentHash: "y", CapturedAtMs: now + (23 * time.Hour).Milliseconds()}
	if res := Compare(a, b, 0); !res.IsValid {
		t.Errorf("23h drift with default TTL should be valid, got %q", res.Reason)
	}
}
