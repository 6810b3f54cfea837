// Package cdn detects which CDN, if any, handled the request upstream
// of this process, from provider signature headers on the inbound
// request. Detection reads headers and never modifies them; the pipeline
// reports the result on separate X-CDN-* response headers.
package cdn

import "net/http"

// Provider identifies the upstream CDN.
type Provider string

const (
	Cloudflare   Provider = "cloudflare"
	CloudFront   Provider = "cloudfront"
	DigitalOcean Provider = "digitalocean"
	Generic      Provider = "generic"
	None         Provider = "none"
)

// Signal is the detected CDN provenance for one request.
type Signal struct {
	Provider    Provider
	CacheStatus string // provider-reported cache status, "unknown" if absent
}

// provider signatures, highest priority first. A provider matches when
// any of its signature headers is present; its cache status comes from
// cacheHeader when set.
var signatures = []struct {
	provider    Provider
	headers     []string
	cacheHeader string
}{
	{Cloudflare, []string{"CF-Ray", "CF-Cache-Status", "CF-IPCountry"}, "CF-Cache-Status"},
	{CloudFront, []string{"X-Amz-Cf-Id", "X-Amz-Cf-Pop"}, "X-Cache"},
	{DigitalOcean, []string{"X-DO-Cache-Status"}, "X-DO-Cache-Status"},
	{Generic, []string{"X-Cache", "X-Served-By"}, "X-Cache"},
}

// Detect inspects the header map and returns the first matching provider
// in priority order, or None. Pure: identical headers give an identical
// Signal and the map is never written.
func Detect(h http.Header) Signal {
	for _, sig := range signatures {
		matched := false
		for _, name := range sig.headers {
			if h.Get(name) != "" {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		status := h.Get(sig.cacheHeader)
		if status == "" {
			status = "unknown"
		}
		return Signal{Provider: sig.provider, CacheStatus: status}
	}
	return Signal{Provider: None, CacheStatus: ""}
}
