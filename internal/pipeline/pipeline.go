// Package pipeline orchestrates the per-request edge stages: route
// classification, CDN provenance, bot assessment, admission rate
// limiting, and response header finalization. Every stage runs behind a
// panic boundary; a faulting stage degrades to its no-signal fallback
// instead of failing the request.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/keithlinneman/linnemanlabs-edge/internal/botscore"
	"github.com/keithlinneman/linnemanlabs-edge/internal/cdn"
	"github.com/keithlinneman/linnemanlabs-edge/internal/log"
	"github.com/keithlinneman/linnemanlabs-edge/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-edge/internal/ratelimit"
	"github.com/keithlinneman/linnemanlabs-edge/internal/routeclass"
	"github.com/keithlinneman/linnemanlabs-edge/internal/xerrors"
)

// Config carries the pipeline's environment knobs.
type Config struct {
	// Production gates HSTS-adjacent behavior: the X-Asset-Type
	// diagnostic header is only emitted outside production.
	Production bool
	// MaxETagBody bounds how much page body is buffered to derive the
	// content ETag. Larger responses stream through without one.
	MaxETagBody int
	// BlockLikelyBots turns the bot assessment from advisory into
	// enforcing: likely_bot clients (allow-listed crawlers excepted)
	// are refused with a 403. Off by default.
	BlockLikelyBots bool
}

const defaultMaxETagBody = 1 << 20 // 1 MiB

// Pipeline wires the stages together. All fields except cfg may be nil;
// a nil stage simply contributes no signal.
type Pipeline struct {
	cfg     Config
	scorer  *botscore.Scorer
	limiter *ratelimit.Limiter
	log     log.Logger
	metrics *metrics.ServerMetrics
}

// New builds a Pipeline. L must not be nil (use log.Nop() in tests).
func New(cfg Config, scorer *botscore.Scorer, limiter *ratelimit.Limiter, L log.Logger, m *metrics.ServerMetrics) *Pipeline {
	if cfg.MaxETagBody <= 0 {
		cfg.MaxETagBody = defaultMaxETagBody
	}
	if L == nil {
		L = log.Nop()
	}
	return &Pipeline{cfg: cfg, scorer: scorer, limiter: limiter, log: L, metrics: m}
}

// Middleware runs the edge stages around next (the origin handler).
func (p *Pipeline) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		class := p.classify(r.URL.Path)
		if p.metrics != nil {
			p.metrics.IncRouteClass(string(class))
		}

		// tooling probe: answer empty and never reach the origin
		if class == routeclass.Probe {
			if p.metrics != nil {
				p.metrics.IncProbeShortCircuit()
			}
			w.Header().Set("Cache-Control", "no-store")
			w.WriteHeader(http.StatusNoContent)
			return
		}

		sig := p.detect(r)
		if sig.Provider != cdn.None && p.metrics != nil {
			p.metrics.IncCDNDetected(string(sig.Provider))
		}

		var decision ratelimit.Decision
		if class.Checked() {
			clientID := p.identify(r)

			assessment := p.assess(r, clientID, class)
			if p.metrics != nil {
				p.metrics.IncBotAssessment(string(assessment.Status))
			}
			if assessment.Status == botscore.LikelyBot && assessment.Type != botscore.TypeAllowed {
				p.log.Info(r.Context(), "likely bot traffic",
					"client_id", clientID,
					"confidence", assessment.Confidence,
					"signals", assessment.Signals,
				)
				if p.cfg.BlockLikelyBots {
					p.forbid(w)
					return
				}
			}

			decision = p.admit(r.Context(), clientID, class)
			if !decision.Allowed {
				p.deny(w, decision, sig, start)
				return
			}
		}

		rw := &responseWriter{
			ResponseWriter: w,
			pipe:           p,
			request:        r,
			class:          class,
			sig:            sig,
			decision:       decision,
			checked:        class.Checked(),
			start:          start,
		}
		rw.init()

		next.ServeHTTP(rw, r)
		rw.finish()
	})
}

type denyBody struct {
	Error      string `json:"error"`
	RetryAfter string `json:"retryAfter"`
}

// deny answers a 429 without reaching the origin. Edge provenance and
// timing headers still apply; only the probe 204 skips finalization.
func (p *Pipeline) deny(w http.ResponseWriter, d ratelimit.Decision, sig cdn.Signal, start time.Time) {
	secs := int(d.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}

	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	h.Set("Retry-After", strconv.Itoa(secs))
	h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	h.Set("X-RateLimit-Remaining", "0")
	if sig.Provider != cdn.None {
		h.Set("X-CDN-Provider", string(sig.Provider))
		h.Set("X-CDN-Cache", sig.CacheStatus)
	}
	h.Set("X-Response-Time", strconv.FormatInt(time.Since(start).Milliseconds(), 10)+"ms")
	w.WriteHeader(http.StatusTooManyRequests)

	body := denyBody{
		Error:      "Rate limit exceeded",
		RetryAfter: fmt.Sprintf("%d seconds", secs),
	}
	_ = json.NewEncoder(w).Encode(body)
}

func (p *Pipeline) forbid(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusForbidden)
	_, _ = w.Write([]byte(`{"error":"Access denied"}` + "\n"))
}

// stage wrappers: each converts a panic into the stage's no-signal
// fallback so one faulting component cannot take down the request.

func (p *Pipeline) classify(path string) (c routeclass.Class) {
	defer p.boundary("classify", func() { c = routeclass.Page })()
	return routeclass.Classify(path)
}

func (p *Pipeline) detect(r *http.Request) (s cdn.Signal) {
	defer p.boundary("cdn_detect", func() { s = cdn.Signal{Provider: cdn.None} })()
	return cdn.Detect(r.Header)
}

func (p *Pipeline) identify(r *http.Request) (id string) {
	defer p.boundary("identify", func() { id = "unknown" })()
	return ratelimit.ResolveClientID(r)
}

func (p *Pipeline) assess(r *http.Request, clientID string, class routeclass.Class) (a botscore.Assessment) {
	defer p.boundary("bot_assess", func() { a = botscore.Assessment{Status: botscore.Error} })()
	if p.scorer == nil {
		return botscore.Assessment{Status: botscore.Error}
	}
	return p.scorer.Assess(r, clientID, class)
}

func (p *Pipeline) admit(ctx context.Context, clientID string, class routeclass.Class) (d ratelimit.Decision) {
	defer p.boundary("admit", func() { d = ratelimit.Decision{Allowed: true} })()
	if p.limiter == nil {
		return ratelimit.Decision{Allowed: true}
	}
	return p.limiter.Admit(ctx, clientID, class)
}

// boundary returns a deferred recover handler for one stage. fallback
// restores the stage's zero-signal result.
func (p *Pipeline) boundary(stage string, fallback func()) func() {
	return func() {
		rec := recover()
		if rec == nil {
			return
		}
		if p.metrics != nil {
			p.metrics.IncHttpPanic()
		}
		p.log.Error(context.Background(), xerrors.Newf("%s panic: %v", stage, rec), "pipeline stage panic recovered",
			"stage", stage,
		)
		fallback()
	}
}
