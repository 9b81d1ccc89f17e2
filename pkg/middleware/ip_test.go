package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Suhaibinator/SDispatch/pkg/router"
)

func TestClientIPSources(t *testing.T) {
	tests := []struct {
		name       string
		config     *IPConfig
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{
			name:       "default uses leftmost forwarded entry",
			config:     nil,
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1, 10.0.0.1"},
			remoteAddr: "127.0.0.1:1234",
			want:       "192.168.1.1",
		},
		{
			name:       "forwarded header missing falls back to remote addr",
			config:     DefaultIPConfig(),
			remoteAddr: "127.0.0.1:1234",
			want:       "127.0.0.1",
		},
		{
			name:       "x-real-ip",
			config:     &IPConfig{Source: IPSourceXRealIP, TrustProxy: true},
			headers:    map[string]string{"X-Real-IP": "192.168.1.2"},
			remoteAddr: "127.0.0.1:1234",
			want:       "192.168.1.2",
		},
		{
			name:       "custom header",
			config:     &IPConfig{Source: IPSourceCustomHeader, CustomHeader: "CF-Connecting-IP", TrustProxy: true},
			headers:    map[string]string{"CF-Connecting-IP": "192.168.1.3"},
			remoteAddr: "127.0.0.1:1234",
			want:       "192.168.1.3",
		},
		{
			name:       "untrusted proxy ignores headers",
			config:     &IPConfig{Source: IPSourceXForwardedFor, TrustProxy: false},
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1"},
			remoteAddr: "127.0.0.1:1234",
			want:       "127.0.0.1",
		},
		{
			name:       "remote addr source",
			config:     &IPConfig{Source: IPSourceRemoteAddr, TrustProxy: true},
			headers:    map[string]string{"X-Forwarded-For": "192.168.1.1"},
			remoteAddr: "[2001:db8::1]:8080",
			want:       "2001:db8::1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newApp(ClientIP(tt.config))
			r.Get("/", func(c *router.Context) (any, error) { return ClientIPOf(c), nil })

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}

			rr := do(r, req)
			if rr.Body.String() != tt.want {
				t.Errorf("Expected client IP %q, got %q", tt.want, rr.Body.String())
			}
		})
	}
}

func TestCleanIP(t *testing.T) {
	tests := map[string]string{
		"192.168.1.1:8080":   "192.168.1.1",
		"192.168.1.1":        "192.168.1.1",
		"[2001:db8::1]:8080": "2001:db8::1",
		"[2001:db8::1]":      "2001:db8::1",
		"2001:db8::1":        "2001:db8::1",
	}
	for in, want := range tests {
		if got := cleanIP(in); got != want {
			t.Errorf("cleanIP(%q): expected %q, got %q", in, want, got)
		}
	}
}
