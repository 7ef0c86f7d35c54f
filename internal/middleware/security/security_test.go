package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHeadersMiddleware(t *testing.T) {
	h := NewHeadersMiddleware(DefaultHeadersConfig()).Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/donor-view", nil))
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" || rec.Header().Get("Cache-Control") != "no-store" {
		t.Fatalf("missing headers: %v", rec.Header())
	}
	if rec.Header().Get("Strict-Transport-Security") != "" {
		t.Fatal("HSTS must not be sent over plain HTTP")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Strict-Transport-Security"); got != "max-age=31536000; includeSubDomains" {
		t.Fatalf("HSTS = %q", got)
	}
}

func TestDetectSuspiciousRequest(t *testing.T) {
	tests := []struct {
		name   string
		method string
		target string
		want   bool
	}{
		{"plain read", http.MethodGet, "/users/JS2560701234567", false},
		{"traversal", http.MethodGet, "/users/../../etc/passwd", true},
		{"dotenv probe", http.MethodGet, "/.env", true},
		{"injection in query", http.MethodPost, "/calculate-scores?month=1%20union%20select", true},
		{"trace method", "TRACE", "/healthz", true},
	}
	d := NewDetector()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.DetectSuspiciousRequest(httptest.NewRequest(tt.method, tt.target, nil)); got != tt.want {
				t.Fatalf("DetectSuspiciousRequest = %v, want %v", got, tt.want)
			}
		})
	}
	if d.GetMetrics().SuspiciousRequests != 4 {
		t.Fatalf("unexpected metrics %+v", d.GetMetrics())
	}
}

func TestExtractClientIP(t *testing.T) {
	d := NewDetector()

	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.RemoteAddr = "10.1.2.3:5555"
	proxied.Header.Set("X-Forwarded-For", "203.0.113.9, 10.1.2.3")
	if got := d.ExtractClientIP(proxied); got != "203.0.113.9" {
		t.Fatalf("proxied client = %q", got)
	}

	direct := httptest.NewRequest(http.MethodGet, "/", nil)
	direct.RemoteAddr = "198.51.100.7:1234"
	direct.Header.Set("X-Forwarded-For", "203.0.113.9")
	if got := d.ExtractClientIP(direct); got != "198.51.100.7" {
		t.Fatalf("untrusted forwarder should be ignored, got %q", got)
	}
}
