// Package routeclass maps request paths onto the closed set of route
// classes the edge pipeline keys its caching and admission decisions on.
// Classification is a pure function of the path string: same input, same
// class, no side effects.
package routeclass

import (
	"path"
	"strings"
)

// Class is the treatment category for a request path.
type Class string

const (
	Probe             Class = "probe"
	Health            Class = "health"
	StaticImage       Class = "static-image"
	StaticFont        Class = "static-font"
	StaticScriptStyle Class = "static-script-style"
	API               Class = "api"
	Page              Class = "page"
)

// ProbePath is the Chrome DevTools workspace metadata probe. Browsers
// fire it against every origin with devtools open; it gets an empty 204
// so it never pollutes logs or rate-limit counters.
const ProbePath = "/.well-known/appspecific/com.chrome.devtools.json"

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".webp": true, ".avif": true, ".svg": true, ".ico": true,
}

var fontExts = map[string]bool{
	".woff": true, ".woff2": true, ".ttf": true, ".otf": true, ".eot": true,
}

var scriptStyleExts = map[string]bool{
	".css": true, ".js": true, ".mjs": true, ".map": true,
}

// Classify returns the route class for a path. First match wins:
// probe > health > static-by-extension > api prefix > page. Anything
// unrecognized (empty, odd unicode, very long) falls back to Page, the
// least privileged class.
func Classify(p string) Class {
	if p == ProbePath {
		return Probe
	}
	if strings.HasPrefix(p, "/api/health") || strings.HasPrefix(p, "/-/") {
		return Health
	}

	ext := strings.ToLower(path.Ext(p))
	switch {
	case imageExts[ext]:
		return StaticImage
	case fontExts[ext]:
		return StaticFont
	case scriptStyleExts[ext]:
		return StaticScriptStyle
	}

	if strings.HasPrefix(p, "/api/") {
		return API
	}

	return Page
}

// IsStatic reports whether the class is one of the static asset classes.
func (c Class) IsStatic() bool {
	switch c {
	case StaticImage, StaticFont, StaticScriptStyle:
		return true
	}
	return false
}

// Checked reports whether the class goes through bot scoring and
// admission rate limiting. Probe, health, and static assets skip both.
func (c Class) Checked() bool {
	return c == API || c == Page
}
