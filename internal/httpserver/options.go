package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-edge/internal/health"
	"github.com/keithlinneman/linnemanlabs-edge/internal/log"
)

type Options struct {
	Logger     log.Logger
	Port       int
	Production bool

	// PipelineMW is the edge pipeline (classification, CDN provenance,
	// bot scoring, admission). Optional for tests.
	PipelineMW func(http.Handler) http.Handler
	MetricsMW  func(http.Handler) http.Handler

	Health    health.Probe
	Readiness health.Probe

	// APIRoutes mounts the /api surface on the router.
	APIRoutes func(chi.Router)
	// SiteHandler serves everything no explicit route claims (pages and
	// static assets).
	SiteHandler http.Handler

	UseRecoverMW bool
	OnPanic      func()
}
