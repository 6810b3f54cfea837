// Package cfg holds startup configuration. The production/development
// split is resolved exactly once here and threaded into components as a
// value; nothing else in the tree reads environment state ad hoc.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"

	"github.com/keithlinneman/linnemanlabs-edge/internal/log"
)

// Environment selects production hardening (HSTS on, diagnostic headers off).
type Environment string

const (
	Production  Environment = "production"
	Development Environment = "development"
)

func (e Environment) IsProduction() bool { return e == Production }

type App struct {
	LogJSON   bool
	LogLevel  string
	HTTPPort  int
	AdminPort int
	Env       string
	SiteDir   string

	EnablePprof     bool
	EnableTracing   bool
	EnablePyroscope bool
	OTLPEndpoint    string
	TraceSample     float64
	StacktraceLevel string
	PyroServer      string
	PyroTenantID    string

	// admission limiter
	RateWindowSeconds int
	RateLimitHealth   int
	RateLimitAPI      int
	RateLimitPage     int
	RedisAddr         string

	// bot scoring
	BotLikelyThreshold     int
	BotSuspiciousThreshold int
	BotRapidPerSecond      float64
	BotRapidBurst          int
	BotBlockLikely         bool
}

// Environment returns the parsed environment value. Call Validate first.
func (c App) Environment() Environment {
	if Environment(c.Env) == Production {
		return Production
	}
	return Development
}

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.StringVar(&c.Env, "env", "development", "production|development")
	fs.StringVar(&c.SiteDir, "site-dir", "public", "directory the origin file handler serves")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")

	fs.IntVar(&c.RateWindowSeconds, "rate-window-seconds", 60, "admission rate-limit window length in seconds")
	fs.IntVar(&c.RateLimitHealth, "rate-limit-health", 100, "requests per window for health/readiness routes")
	fs.IntVar(&c.RateLimitAPI, "rate-limit-api", 30, "requests per window for api routes")
	fs.IntVar(&c.RateLimitPage, "rate-limit-page", 60, "requests per window for page routes")
	fs.StringVar(&c.RedisAddr, "redis-addr", "", "redis host:port for the shared rate-limit store (empty = in-memory)")

	fs.IntVar(&c.BotLikelyThreshold, "bot-likely-threshold", 70, "confidence at or above which a caller is scored likely_bot (0..100)")
	fs.IntVar(&c.BotSuspiciousThreshold, "bot-suspicious-threshold", 40, "confidence at or above which a caller is scored suspicious (0..100)")
	fs.Float64Var(&c.BotRapidPerSecond, "bot-rapid-per-second", 5, "distinct-path request rate above which rapid_sequential_requests is signaled")
	fs.IntVar(&c.BotRapidBurst, "bot-rapid-burst", 10, "burst allowance before rapid_sequential_requests is signaled")
	fs.BoolVar(&c.BotBlockLikely, "bot-block-likely", false, "refuse likely_bot clients with 403 instead of only flagging them")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	switch Environment(c.Env) {
	case Production, Development:
	default:
		errs = append(errs, fmt.Errorf("invalid ENV %q (must be production or development)", c.Env))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
	}

	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	if c.RateWindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("RATE_WINDOW_SECONDS must be >= 1 (got %d)", c.RateWindowSeconds))
	}
	for _, b := range []struct {
		name string
		v    int
	}{
		{"RATE_LIMIT_HEALTH", c.RateLimitHealth},
		{"RATE_LIMIT_API", c.RateLimitAPI},
		{"RATE_LIMIT_PAGE", c.RateLimitPage},
	} {
		if b.v < 1 {
			errs = append(errs, fmt.Errorf("%s must be >= 1 (got %d)", b.name, b.v))
		}
	}
	if c.RedisAddr != "" {
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			errs = append(errs, fmt.Errorf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err))
		}
	}

	if c.BotLikelyThreshold < 0 || c.BotLikelyThreshold > 100 {
		errs = append(errs, fmt.Errorf("BOT_LIKELY_THRESHOLD must be 0..100 (got %d)", c.BotLikelyThreshold))
	}
	if c.BotSuspiciousThreshold < 0 || c.BotSuspiciousThreshold > 100 {
		errs = append(errs, fmt.Errorf("BOT_SUSPICIOUS_THRESHOLD must be 0..100 (got %d)", c.BotSuspiciousThreshold))
	}
	if c.BotSuspiciousThreshold >= c.BotLikelyThreshold {
		errs = append(errs, fmt.Errorf("BOT_SUSPICIOUS_THRESHOLD (%d) must be below BOT_LIKELY_THRESHOLD (%d)", c.BotSuspiciousThreshold, c.BotLikelyThreshold))
	}
	if c.BotRapidPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("BOT_RAPID_PER_SECOND must be > 0 (got %g)", c.BotRapidPerSecond))
	}
	if c.BotRapidBurst < 1 {
		errs = append(errs, fmt.Errorf("BOT_RAPID_BURST must be >= 1 (got %d)", c.BotRapidBurst))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
