package ratelimit

import (
	"net/http"
	"strings"
)

// identity headers in trust order. CDN-set headers win over generic
// proxy headers because the CDN terminates the client connection.
var identityHeaders = []string{
	"CF-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Client-IP",
	"Forwarded-For",
}

// ResolveClientID extracts the best available client identity from
// request headers. Returns "unknown" when nothing usable is present, so
// anonymous traffic still shares one bucket instead of bypassing limits.
func ResolveClientID(r *http.Request) string {
	for _, h := range identityHeaders {
		v := strings.TrimSpace(r.Header.Get(h))
		if v == "" {
			continue
		}
		if h == "X-Forwarded-For" {
			// first hop is the original client
			if first, _, found := strings.Cut(v, ","); found {
				v = strings.TrimSpace(first)
			}
		}
		if v != "" {
			return v
		}
	}
	if id := forwardedFor(r.Header.Get("Forwarded")); id != "" {
		return id
	}
	return "unknown"
}

// forwardedFor pulls the for= parameter out of an RFC 7239 Forwarded
// header. Quotes and brackets around IPv6 literals are stripped.
func forwardedFor(v string) string {
	if v == "" {
		return ""
	}
	// only the first element matters; it names the original client
	first, _, _ := strings.Cut(v, ",")
	for _, part := range strings.Split(first, ";") {
		k, val, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(k), "for") {
			continue
		}
		val = strings.TrimSpace(val)
		val = strings.Trim(val, `"`)
		val = strings.TrimPrefix(val, "[")
		if i := strings.Index(val, "]"); i >= 0 {
			val = val[:i]
		}
		return val
	}
	return ""
}
