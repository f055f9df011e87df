package utils

import (
	"crypto/tls"
	"net/http/httptest"
	"testing"
)

func TestRequestOrigin(t *testing.T) {
	tests := []struct {
		name       string
		proto      string
		tls        bool
		trustProxy bool
		publicURL  string
		want       string
	}{
		{name: "plain http", want: "http://marks.example.com"},
		{name: "tls", tls: true, want: "https://marks.example.com"},
		{name: "trusted proxy", proto: "https", trustProxy: true, want: "https://marks.example.com"},
		{name: "proxy list", proto: "https, http", trustProxy: true, want: "https://marks.example.com"},
		{name: "untrusted proxy", proto: "https", want: "http://marks.example.com"},
		{name: "garbage proto", proto: "javascript", trustProxy: true, want: "http://marks.example.com"},
		{name: "public url wins", proto: "http", trustProxy: true, publicURL: "https://bookmarks.example.org/", want: "https://bookmarks.example.org"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "http://marks.example.com/auth/callback", nil)
			if tt.proto != "" {
				r.Header.Set("X-Forwarded-Proto", tt.proto)
			}
			if tt.tls {
				r.TLS = &tls.ConnectionState{}
			}
			if got := RequestOrigin(r, tt.trustProxy, tt.publicURL); got != tt.want {
				t.Errorf("RequestOrigin() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	if got := ClientIP(r, false); got != "10.0.0.1" {
		t.Errorf("untrusted ClientIP = %q, want 10.0.0.1", got)
	}
	if got := ClientIP(r, true); got != "203.0.113.7" {
		t.Errorf("trusted ClientIP = %q, want 203.0.113.7", got)
	}

	r.Header.Set("X-Forwarded-For", "unknown")
	r.Header.Set("X-Real-IP", "[2001:db8::1]:443")
	if got := ClientIP(r, true); got != "2001:db8::1" {
		t.Errorf("ClientIP with junk XFF = %q, want 2001:db8::1", got)
	}
}

func TestIPMatcher(t *testing.T) {
	m := NewIPMatcher([]string{"10.0.0.0/8", "192.168.1.10"})
	if m.IsEmpty() {
		t.Fatal("matcher should not be empty")
	}
	for ip, want := range map[string]bool{
		"10.1.2.3":        true,
		"192.168.1.10":    true,
		"192.168.1.11":    false,
		"::ffff:10.9.9.9": true,
		"not-an-ip":       false,
	} {
		if got := m.Allow(ip); got != want {
			t.Errorf("Allow(%q) = %v, want %v", ip, got, want)
		}
	}
	if !NewIPMatcher(nil).IsEmpty() {
		t.Error("nil list should give an empty matcher")
	}
}
