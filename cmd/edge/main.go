package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/linnemanlabs-edge/internal/botscore"
	"github.com/keithlinneman/linnemanlabs-edge/internal/cfg"
	"github.com/keithlinneman/linnemanlabs-edge/internal/health"
	"github.com/keithlinneman/linnemanlabs-edge/internal/httpserver"
	"github.com/keithlinneman/linnemanlabs-edge/internal/log"
	"github.com/keithlinneman/linnemanlabs-edge/internal/metrics"
	"github.com/keithlinneman/linnemanlabs-edge/internal/opshttp"
	"github.com/keithlinneman/linnemanlabs-edge/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-edge/internal/pipeline"
	"github.com/keithlinneman/linnemanlabs-edge/internal/prof"
	"github.com/keithlinneman/linnemanlabs-edge/internal/ratelimit"
	v "github.com/keithlinneman/linnemanlabs-edge/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Get build/version info
	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf(
			"%s %s (commit=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Version, vi.Commit, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		os.Exit(0)
	}

	// Fill in config from environment variables with prefix EDGE_ and validate
	cfg.FillFromEnv(flag.CommandLine, "EDGE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	// validate config
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid stacktrace level %s: %v\n", conf.StacktraceLevel, err)
		os.Exit(1)
	}
	lg, err := log.New(log.Options{
		App:             v.AppName,
		Version:         vi.Version,
		Commit:          vi.Commit,
		Level:           lvl,
		StacktraceLevel: stLvl,
		JsonFormat:      conf.LogJSON,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	// no-op for slog/stderr, but here if we swap backends in the future to ensure any buffered logs are flushed on shutdown
	defer lg.Sync()
	L := lg.With("component", "edge")
	ctx = log.WithContext(ctx, L)

	production := conf.Environment().IsProduction()

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"env", conf.Env,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"site_dir", conf.SiteDir,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"pyro_tenant", conf.PyroTenantID,
		"trace_sample", conf.TraceSample,
		"rate_window_seconds", conf.RateWindowSeconds,
		"rate_limit_health", conf.RateLimitHealth,
		"rate_limit_api", conf.RateLimitAPI,
		"rate_limit_page", conf.RateLimitPage,
		"redis_addr", conf.RedisAddr,
		"bot_likely_threshold", conf.BotLikelyThreshold,
		"bot_suspicious_threshold", conf.BotSuspiciousThreshold,
	)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		AuthToken:     "",
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "edge",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer func() { stopProf() }()

	// Setup otel for tracing
	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "edge",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// Setup metrics / admin listener
	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "edge", &vi)
	m.SetProfilingActive(conf.EnablePyroscope)

	// Admission store: shared redis when configured, per-process otherwise.
	var store ratelimit.Store
	if conf.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: conf.RedisAddr})
		defer rdb.Close()
		store = ratelimit.NewRedisStore(rdb)
		L.Info(ctx, "admission store: redis", "addr", conf.RedisAddr)
	} else {
		ms := ratelimit.NewMemoryStore()
		defer ms.Close()
		store = ms
		L.Info(ctx, "admission store: in-memory")
	}

	limiter := ratelimit.New(store,
		time.Duration(conf.RateWindowSeconds)*time.Second,
		ratelimit.Budgets{
			Health: int64(conf.RateLimitHealth),
			API:    int64(conf.RateLimitAPI),
			Page:   int64(conf.RateLimitPage),
		},
		// increment prometheus counter on each denied request
		ratelimit.WithOnDenied(func(bucket string) {
			m.IncRateLimitDenied(bucket)
			L.Warn(ctx, "admission budget exhausted", "bucket", bucket)
		}),
		// store failures fail open; keep them visible
		ratelimit.WithOnError(func(err error) {
			m.IncRateLimitStoreError()
			L.Warn(ctx, "rate-limit store error, failing open", "error", err)
		}),
	)

	// Behavior window backing the rapid-request bot signal. If it cannot
	// be built we score on headers alone rather than refuse to start.
	botWindow, err := botscore.NewWindow(conf.BotRapidPerSecond, conf.BotRapidBurst, 5*time.Minute)
	if err != nil {
		L.Error(ctx, err, "bot behavior window init failed, continuing without rapid-request signal")
	} else {
		defer botWindow.Close()
	}

	botCfg := botscore.DefaultConfig()
	botCfg.LikelyThreshold = conf.BotLikelyThreshold
	botCfg.SuspiciousThreshold = conf.BotSuspiciousThreshold
	scorer := botscore.New(botCfg, botWindow)

	pipe := pipeline.New(pipeline.Config{
		Production:      production,
		BlockLikelyBots: conf.BotBlockLikely,
	}, scorer, limiter, L, m)

	// setup toggle for server shutdown
	var gate health.ShutdownGate
	readiness := health.All(gate.Probe())

	// start public http server
	siteHTTPStop, err := httpserver.Start(ctx, &httpserver.Options{
		Port:         conf.HTTPPort,
		Production:   production,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		SiteHandler:  siteHandler(conf.SiteDir),
		PipelineMW:   pipe.Middleware,
		MetricsMW:    m.Middleware,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		Logger:       L,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start site http listener")
		os.Exit(1)
	}
	defer func() { _ = siteHTTPStop(context.Background()) }()

	// start admin/ops listener to serve metrics, health checks and pprof
	// sg restricts inbound to internal monitoring infrastructure
	opsHTTPStop, err := opshttp.Start(ctx, L, opshttp.Options{
		Port:        conf.AdminPort,
		Metrics:     m.Handler(),
		EnablePprof: conf.EnablePprof,
		Health:      health.Fixed(true, ""),
		Readiness:   readiness,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	// notify systemd that we started successfully if started under systemd
	if err := notifySystemd(); err != nil {
		// log and dont exit, worst case systemd will kill the process after timeout
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	// wait for ctrl+c / sigterm
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness checks so the load balancer stops sending new requests
	gate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")

	L.Info(context.Background(), "sleeping 30s for in-flight and load balancer health checks to drain")
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-time.After(30 * time.Second):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
	signal.Stop(forceCh)

	if err := siteHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "site http server shutdown")
	}

	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}

	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}

	stopProf()

	L.Info(context.Background(), "shutdown complete")
	os.Exit(0)
}

// siteHandler serves origin content from a local directory. Paths that
// do not resolve to a file fall back to index.html so client-routed
// pages still render; the pipeline upstream owns caching and ETags.
func siteHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			p := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
			if st, err := os.Stat(p); err != nil || st.IsDir() {
				http.ServeFile(w, r, filepath.Join(dir, "index.html"))
				return
			}
		}
		fs.ServeHTTP(w, r)
	})
}

func notifySystemd() error {
	// systemd will set NOTIFY_SOCKET to a unix socket path if we were started under systemd with type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	conn.Write([]byte("READY=1"))
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
