package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveClientID(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"no headers", nil, "unknown"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "203.0.113.9"}, "203.0.113.9"},
		{
			"cloudflare beats xff",
			map[string]string{"CF-Connecting-IP": "203.0.113.9", "X-Forwarded-For": "198.51.100.1"},
			"203.0.113.9",
		},
		{
			"xff first hop",
			map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1, 172.16.0.1"},
			"203.0.113.9",
		},
		{"xff single", map[string]string{"X-Forwarded-For": "203.0.113.9"}, "203.0.113.9"},
		{"x-real-ip", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
		{"x-client-ip", map[string]string{"X-Client-IP": "203.0.113.9"}, "203.0.113.9"},
		{"forwarded-for legacy", map[string]string{"Forwarded-For": "203.0.113.9"}, "203.0.113.9"},
		{
			"xff beats x-real-ip",
			map[string]string{"X-Real-IP": "198.51.100.1", "X-Forwarded-For": "203.0.113.9"},
			"203.0.113.9",
		},
		{
			"rfc7239 forwarded",
			map[string]string{"Forwarded": `for=203.0.113.9;proto=https`},
			"203.0.113.9",
		},
		{
			"rfc7239 quoted ipv6",
			map[string]string{"Forwarded": `for="[2001:db8::1]:4711"`},
			"2001:db8::1",
		},
		{
			"rfc7239 first element",
			map[string]string{"Forwarded": `for=203.0.113.9, for=10.0.0.1`},
			"203.0.113.9",
		},
		{"whitespace only", map[string]string{"X-Real-IP": "   "}, "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				r.Header.Set(k, v)
			}
			if got := ResolveClientID(r); got != tc.want {
				t.Errorf("ResolveClientID() = %q, want %q", got, tc.want)
			}
		})
	}
}
