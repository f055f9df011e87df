package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrSnakeDoc/marks/internal/logger"
)

var noContent = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestEnforceHost(t *testing.T) {
	h := EnforceHost([]string{"marks.example.com", "*.preview.example.com"}, logger.Nop())(noContent)

	tests := []struct {
		host string
		want int
	}{
		{"marks.example.com", http.StatusNoContent},
		{"MARKS.example.com:8443", http.StatusNoContent},
		{"pr-12.preview.example.com", http.StatusNoContent},
		{"preview.example.com", http.StatusForbidden},
		{"evil.example.com", http.StatusForbidden},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Host = tt.host
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		if rec.Code != tt.want {
			t.Errorf("host %q: got %d, want %d", tt.host, rec.Code, tt.want)
		}
	}

	rec := httptest.NewRecorder()
	EnforceHost(nil, logger.Nop())(noContent).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("empty allow list should pass through, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	now := time.Unix(1700000000, 0)
	h := RateLimit(RateLimitConfig{
		Burst:             2,
		RefillPerIPPerMin: 60,
		Now:               func() time.Time { return now },
	})(noContent)

	hit := func(remote string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
		r.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, r)
		return rec
	}

	if rec := hit("10.0.0.1:1000"); rec.Code != http.StatusNoContent || rec.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("first request: code=%d remaining=%q", rec.Code, rec.Header().Get("X-RateLimit-Remaining"))
	}
	if rec := hit("10.0.0.1:1001"); rec.Code != http.StatusNoContent {
		t.Fatalf("second request: got %d", rec.Code)
	}
	rec := hit("10.0.0.1:1002")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q, want 1", rec.Header().Get("Retry-After"))
	}

	// Other clients have their own bucket.
	if rec := hit("10.0.0.2:1000"); rec.Code != http.StatusNoContent {
		t.Errorf("other client: got %d", rec.Code)
	}

	// One token per second comes back.
	now = now.Add(time.Second)
	if rec := hit("10.0.0.1:1003"); rec.Code != http.StatusNoContent {
		t.Errorf("after refill: got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(noContent)

	r := httptest.NewRequest(http.MethodOptions, "/api/bookmarks", nil)
	r.Header.Set("Origin", "https://app.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("Allow-Credentials = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil)
	r.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected Allow-Origin %q for unknown origin", got)
	}
}

func TestLogKeepsStreamingCapabilities(t *testing.T) {
	var flushed, unwrapped bool
	h := Log(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, flushed = w.(http.Flusher)
		_, unwrapped = w.(interface{ Unwrap() http.ResponseWriter })
		w.WriteHeader(http.StatusOK)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/bookmarks/events", nil))

	if !flushed || !unwrapped {
		t.Errorf("log writer must expose Flush (%v) and Unwrap (%v)", flushed, unwrapped)
	}
}
