package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"quota-gateway/middleware/ratelimit/domain"
)

func TestDefaultKeyFunc(t *testing.T) {
	cases := []struct {
		name     string
		header   string
		trustXFF bool
		remote   string
		headers  map[string]string
		want     domain.Key
	}{
		{"prefers header when set", "X-Client", false, "10.0.0.1:1234", map[string]string{"X-Client": " client-123 "}, "user:client-123"},
		{"blank header falls back to ip", "X-Client", false, "10.0.0.9:1234", map[string]string{"X-Client": "  "}, "ip:10.0.0.9"},
		{"xff first hop when trusted", "", true, "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4, 10.0.0.2"}, "ip:1.2.3.4"},
		{"xff ignored when not trusted", "", false, "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "1.2.3.4"}, "ip:10.0.0.1"},
		{"ipv6 remote", "", false, "[2001:db8::1]:443", nil, "ip:2001:db8::1"},
		{"garbage remote", "", false, "", nil, "anonymous"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}

			if got := DefaultKeyFunc(tc.header, tc.trustXFF)(r); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
