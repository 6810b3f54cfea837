// Package botscore estimates how likely a caller is automated, from
// static header signals plus a small per-client behavior window. Scoring
// is advisory: the pipeline records the assessment for rate limiting and
// logging but forwards the request either way by default.
package botscore

import (
	"net/http"
	"strings"

	"github.com/keithlinneman/linnemanlabs-edge/internal/routeclass"
)

// Status is the overall verdict for one request.
type Status string

const (
	LikelyHuman Status = "likely_human"
	LikelyBot   Status = "likely_bot"
	Suspicious  Status = "suspicious"
	// Error means the scorer itself faulted; the pipeline treats it as
	// no signal.
	Error Status = "error"
)

// Type distinguishes welcome automation (search engines) from risky
// automation.
type Type string

const (
	TypeAllowed    Type = "allowed"
	TypeSuspicious Type = "suspicious"
	TypeNone       Type = "none"
)

// Signal names for weak evidence. Exposed so tests and metrics can
// reference them without string literals.
const (
	SignalMissingUserAgent  = "missing_user_agent"
	SignalSuspiciousAccept  = "suspicious_accept_header"
	SignalMissingAcceptLang = "missing_accept_language"
	SignalMissingAcceptEnc  = "missing_accept_encoding"
	SignalRapidRequests     = "rapid_sequential_requests"
	SignalAllowedCrawler    = "allowed_crawler"
)

// Assessment is the scorer's output for one request.
type Assessment struct {
	Status     Status
	Type       Type
	Confidence int // always clamped to [0,100]
	Signals    []string
}

// Config carries thresholds and weights so they can be tuned and tested
// without touching the scoring logic.
type Config struct {
	LikelyThreshold     int // confidence >= this => likely_bot
	SuspiciousThreshold int // confidence >= this (and < likely) => suspicious

	WeightMissingUserAgent  int
	WeightSuspiciousAccept  int
	WeightMissingAcceptLang int
	WeightMissingAcceptEnc  int
	WeightRapidRequests     int

	AutomationBase int // floor for recognized automation UAs with no browser headers
	CrawlerBase    int // floor for allow-listed search crawlers
}

// DefaultConfig returns the tuned production weights. The four missing
// header signals sum to the likely threshold so a fully headerless
// request always scores likely_bot.
func DefaultConfig() Config {
	return Config{
		LikelyThreshold:         70,
		SuspiciousThreshold:     40,
		WeightMissingUserAgent:  30,
		WeightSuspiciousAccept:  15,
		WeightMissingAcceptLang: 15,
		WeightMissingAcceptEnc:  10,
		WeightRapidRequests:     20,
		AutomationBase:          50,
		CrawlerBase:             95,
	}
}

// search-engine crawlers that are welcome and never blocked.
var allowedCrawlers = []string{
	"googlebot",
	"bingbot",
	"duckduckbot",
	"yandexbot",
	"baiduspider",
	"slurp",
	"applebot",
}

// generic automation tooling: http libraries, scrapers, scanners.
var automationSignatures = []string{
	"curl",
	"wget",
	"python",
	"go-http-client",
	"java",
	"okhttp",
	"scrapy",
	"httpclient",
	"libwww",
	"postman",
	"nikto",
	"sqlmap",
	"nmap",
	"masscan",
	"headless",
}

// Scorer computes assessments. Safe for concurrent use.
type Scorer struct {
	cfg    Config
	window *Window
}

// New creates a Scorer. window may be nil, in which case the behavioral
// signal is never added.
func New(cfg Config, window *Window) *Scorer {
	return &Scorer{cfg: cfg, window: window}
}

// Assess scores one request. clientID keys the behavior window; class
// decides whether the Accept header is expected to carry HTML.
func (s *Scorer) Assess(r *http.Request, clientID string, class routeclass.Class) Assessment {
	ua := strings.ToLower(r.UserAgent())
	accept := r.Header.Get("Accept")
	acceptLang := r.Header.Get("Accept-Language")
	acceptEnc := r.Header.Get("Accept-Encoding")

	// 1. allow-listed search crawlers: informational only, never blocked
	if ua != "" && matchesAny(ua, allowedCrawlers) {
		return Assessment{
			Status:     LikelyBot,
			Type:       TypeAllowed,
			Confidence: clamp(s.cfg.CrawlerBase),
			Signals:    []string{SignalAllowedCrawler},
		}
	}

	confidence := 0
	typ := TypeNone
	var signals []string

	// 2. recognized automation tooling missing typical browser headers
	if ua != "" && matchesAny(ua, automationSignatures) && accept == "" && acceptLang == "" {
		confidence = s.cfg.AutomationBase
		typ = TypeSuspicious
	}

	// 3. weak signals, each named and weighted
	if ua == "" {
		confidence += s.cfg.WeightMissingUserAgent
		signals = append(signals, SignalMissingUserAgent)
	}
	if accept != "" && class == routeclass.Page && !acceptsHTML(accept) {
		confidence += s.cfg.WeightSuspiciousAccept
		signals = append(signals, SignalSuspiciousAccept)
	} else if accept == "" {
		// a browser always sends Accept; its absence counts as the same signal
		confidence += s.cfg.WeightSuspiciousAccept
		signals = append(signals, SignalSuspiciousAccept)
	}
	if acceptLang == "" {
		confidence += s.cfg.WeightMissingAcceptLang
		signals = append(signals, SignalMissingAcceptLang)
	}
	if acceptEnc == "" {
		confidence += s.cfg.WeightMissingAcceptEnc
		signals = append(signals, SignalMissingAcceptEnc)
	}

	// 4. behavioral: scripted crawling across many paths in a short window
	if s.window != nil && clientID != "" && s.window.Rapid(clientID, r.URL.Path) {
		confidence += s.cfg.WeightRapidRequests
		signals = append(signals, SignalRapidRequests)
	}

	confidence = clamp(confidence)

	status := LikelyHuman
	switch {
	case confidence >= s.cfg.LikelyThreshold:
		status = LikelyBot
	case confidence >= s.cfg.SuspiciousThreshold:
		status = Suspicious
	}

	return Assessment{
		Status:     status,
		Type:       typ,
		Confidence: confidence,
		Signals:    signals,
	}
}

func matchesAny(ua string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(ua, n) {
			return true
		}
	}
	return false
}

func acceptsHTML(accept string) bool {
	a := strings.ToLower(accept)
	return strings.Contains(a, "text/html") ||
		strings.Contains(a, "application/xhtml") ||
		strings.Contains(a, "*/*")
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
