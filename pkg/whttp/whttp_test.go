package whttp

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClientSingleAttempt(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := NewClient(Options{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("expected response, got error %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected exactly one attempt, got %d", n)
	}
}

func TestNewClientBadProxy(t *testing.T) {
	if _, err := NewClient(Options{Proxy: "://nope"}); err == nil {
		t.Fatal("expected error for malformed proxy")
	}
}

func TestPageTitle(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{"<html><head><title>\n  Just a moment...\n</title></head></html>", "Just a moment..."},
		{"<html><head></head><body>no title</body></html>", ""},
		{"<title></title>", ""},
	}
	for _, tt := range tests {
		if got := PageTitle(tt.body); got != tt.want {
			t.Fatalf("PageTitle(%q) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
