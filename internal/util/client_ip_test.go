package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPPrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:4444"
	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := ClientIP(r); got != "203.0.113.7" {
		t.Fatalf("expected first forwarded hop, got %q", got)
	}
}

func TestClientIPFallsBackToRealIPThenRemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:4444"
	r.Header.Set("X-Real-IP", "198.51.100.2")
	if got := ClientIP(r); got != "198.51.100.2" {
		t.Fatalf("expected X-Real-IP, got %q", got)
	}

	r = httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.9:1234"
	if got := ClientIP(r); got != "192.0.2.9" {
		t.Fatalf("expected remote addr host, got %q", got)
	}
}
