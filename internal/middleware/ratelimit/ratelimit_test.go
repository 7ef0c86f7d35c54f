package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowWindow(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerWindow: 2, Window: time.Minute})
	defer rl.Stop()

	now := time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	for i, want := range []bool{true, true, false} {
		if got := rl.Allow("1.2.3.4"); got != want {
			t.Fatalf("request %d: Allow = %v, want %v", i+1, got, want)
		}
	}
	if !rl.Allow("5.6.7.8") {
		t.Fatal("other clients have their own budget")
	}

	now = now.Add(time.Minute)
	if !rl.Allow("1.2.3.4") {
		t.Fatal("a new window should reset the budget")
	}

	if m := rl.GetMetrics(); m.Rejected != 1 || m.ClientCount != 2 {
		t.Fatalf("unexpected metrics %+v", m)
	}

	now = now.Add(2 * time.Minute)
	rl.cleanupStaleEntries()
	if m := rl.GetMetrics(); m.ClientCount != 0 {
		t.Fatalf("stale clients should be dropped, have %d", m.ClientCount)
	}
}

func TestMiddleware(t *testing.T) {
	rl := NewLimiter(Config{RequestsPerWindow: 1, Window: 30 * time.Second})
	defer rl.Stop()

	h := rl.Middleware(func(*http.Request) string { return "ip" }, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/login", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/login", nil))

	if first.Code != http.StatusNoContent || second.Code != http.StatusTooManyRequests {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	if second.Header().Get("Retry-After") != "30" {
		t.Fatalf("Retry-After = %q", second.Header().Get("Retry-After"))
	}
}
