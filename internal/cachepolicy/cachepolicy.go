// Package cachepolicy derives Cache-Control, Vary, and ETag intent from
// the route class. Policies are pure values over the closed class enum;
// they add headers and never overwrite anything a CDN already set.
package cachepolicy

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/keithlinneman/linnemanlabs-edge/internal/routeclass"
)

// Policy is the cache directive set for a response.
type Policy struct {
	CacheControl string
	Vary         []string // ordered; joined with ", " on the wire
	WantsETag    bool     // pipeline computes a content-derived ETag when set
}

const (
	noStore     = "no-cache, no-store, must-revalidate"
	immutableYr = "public, max-age=31536000, immutable"
	imageDay    = "public, max-age=86400, stale-while-revalidate=3600"
	pageMinutes = "public, max-age=300, stale-while-revalidate=60"
)

var pageVary = []string{"Accept", "Accept-Language", "Accept-Encoding"}

// For returns the policy for a route class. Pure: no clock, no
// environment, no failure mode.
func For(class routeclass.Class) Policy {
	switch class {
	case routeclass.StaticScriptStyle, routeclass.StaticFont:
		return Policy{CacheControl: immutableYr}
	case routeclass.StaticImage:
		return Policy{CacheControl: imageDay}
	case routeclass.Page:
		return Policy{CacheControl: pageMinutes, Vary: pageVary, WantsETag: true}
	default:
		// probe, health, api, and anything new default to uncacheable
		return Policy{CacheControl: noStore}
	}
}

// ETagFor computes a weak validator from the response body so
// conditional requests actually validate against content, not a
// timestamp. The short digest keeps the header small.
func ETagFor(body []byte) string {
	sum := sha256.Sum256(body)
	return `W/"` + hex.EncodeToString(sum[:])[:16] + `"`
}
