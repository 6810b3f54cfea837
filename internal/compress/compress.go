// Package compress negotiates a preferred content-encoding hint from
// the client's Accept-Encoding and the response content type. The hint
// is advisory (X-Compress-Hint); actual compression is done by the
// router's compress middleware or the CDN in front.
package compress

import "strings"

// compressible content types, matched by prefix so parameters like
// "; charset=utf-8" don't matter.
var compressiblePrefixes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"text/javascript",
	"text/xml",
	"application/javascript",
	"application/json",
	"application/xml",
	"image/svg+xml",
}

// Hint returns "br", "gzip", or "" for the given Accept-Encoding header
// value and response content type. Brotli is preferred when both are
// accepted. Binary types (images, fonts) never get a hint.
func Hint(acceptEncoding, contentType string) string {
	if acceptEncoding == "" || !Compressible(contentType) {
		return ""
	}
	if accepts(acceptEncoding, "br") {
		return "br"
	}
	if accepts(acceptEncoding, "gzip") {
		return "gzip"
	}
	return ""
}

// Compressible reports whether the content type is textual and worth
// compressing.
func Compressible(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	for _, p := range compressiblePrefixes {
		if strings.HasPrefix(ct, p) {
			return true
		}
	}
	return false
}

// accepts reports whether the Accept-Encoding value lists the coding
// with a non-zero quality.
func accepts(acceptEncoding, coding string) bool {
	for _, part := range strings.Split(acceptEncoding, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, params, _ := strings.Cut(part, ";")
		if !strings.EqualFold(strings.TrimSpace(name), coding) {
			continue
		}
		// q=0 means explicitly refused
		if q, ok := qvalue(params); ok && q == 0 {
			return false
		}
		return true
	}
	return false
}

func qvalue(params string) (float64, bool) {
	for _, p := range strings.Split(params, ";") {
		k, v, found := strings.Cut(strings.TrimSpace(p), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(k), "q") {
			continue
		}
		switch strings.TrimSpace(v) {
		case "0", "0.0", "0.00", "0.000":
			return 0, true
		default:
			return 1, true
		}
	}
	return 0, false
}
