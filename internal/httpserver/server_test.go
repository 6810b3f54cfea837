package httpserver

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-edge/internal/log"
)

// stubProbe implements health.Probe for testing.
type stubProbe struct {
	err error
}

func (p *stubProbe) Check(ctx context.Context) error { return p.err }

// defaultOpts returns minimal valid Options for testing.
func defaultOpts() *Options {
	return &Options{
		Logger:     log.Nop(),
		Production: true,
	}
}

// doRequest is a helper to send a request through a handler and return the recorder.
func doRequest(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	h.ServeHTTP(rec, req)
	return rec
}

// getFreePort finds a free TCP port.
func getFreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp4", ":0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

// NewHandler - middleware stack

func TestNewHandler_SecurityHeaders(t *testing.T) {
	h := NewHandler(defaultOpts())
	rec := doRequest(t, h, "GET", "/anything")

	required := []string{
		"Strict-Transport-Security",
		"Content-Security-Policy",
		"X-Content-Type-Options",
		"X-Frame-Options",
		"Referrer-Policy",
		"Permissions-Policy",
	}
	for _, hdr := range required {
		if rec.Header().Get(hdr) == "" {
			t.Errorf("missing security header: %s", hdr)
		}
	}
}

func TestNewHandler_NoHSTSOutsideProduction(t *testing.T) {
	opts := defaultOpts()
	opts.Production = false
	h := NewHandler(opts)
	rec := doRequest(t, h, "GET", "/anything")

	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Fatalf("HSTS = %q, want absent outside production", got)
	}
	if rec.Header().Get("X-Content-Type-Options") == "" {
		t.Fatal("nosniff must still be present outside production")
	}
}

func TestNewHandler_SecurityHeaders_On404(t *testing.T) {
	h := NewHandler(defaultOpts())
	rec := doRequest(t, h, "GET", "/nonexistent-path-12345")

	if rec.Header().Get("Strict-Transport-Security") == "" {
		t.Fatal("HSTS missing on 404 response")
	}
	if rec.Header().Get("X-Content-Type-Options") == "" {
		t.Fatal("X-Content-Type-Options missing on 404 response")
	}
}

func TestNewHandler_RequestID_Generated(t *testing.T) {
	h := NewHandler(defaultOpts())
	rec := doRequest(t, h, "GET", "/")

	id := rec.Header().Get("X-Request-Id")
	if id == "" {
		t.Fatal("X-Request-Id not set on response")
	}
	if len(id) != 32 {
		t.Fatalf("X-Request-Id length = %d, want 32 (16 hex bytes)", len(id))
	}
}

func TestNewHandler_RequestID_Propagated(t *testing.T) {
	h := NewHandler(defaultOpts())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-Id", "upstream-abc-123")
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-Id"); got != "upstream-abc-123" {
		t.Fatalf("X-Request-Id = %q, want %q", got, "upstream-abc-123")
	}
}

func TestNewHandler_HealthRoutes(t *testing.T) {
	opts := defaultOpts()
	opts.Health = &stubProbe{}
	opts.Readiness = &stubProbe{}
	h := NewHandler(opts)

	for _, path := range []string{"/-/healthy", "/-/ready", "/api/health"} {
		rec := doRequest(t, h, "GET", path)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, rec.Code)
		}
	}
}

func TestNewHandler_ReadinessFailure(t *testing.T) {
	opts := defaultOpts()
	opts.Readiness = &stubProbe{err: context.DeadlineExceeded}
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/-/ready")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestNewHandler_APIRoutes(t *testing.T) {
	opts := defaultOpts()
	opts.APIRoutes = func(r chi.Router) {
		r.Get("/api/data", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true}`))
		})
	}
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/api/data")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestNewHandler_SiteHandlerFallback(t *testing.T) {
	opts := defaultOpts()
	opts.SiteHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>site</html>"))
	})
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/some/page")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "<html>site</html>" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestNewHandler_PipelineMWApplied(t *testing.T) {
	var sawPipeline bool
	opts := defaultOpts()
	opts.PipelineMW = func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawPipeline = true
			next.ServeHTTP(w, r)
		})
	}
	h := NewHandler(opts)

	doRequest(t, h, "GET", "/")
	if !sawPipeline {
		t.Fatal("pipeline middleware not in the chain")
	}
}

func TestNewHandler_RecoverMW(t *testing.T) {
	opts := defaultOpts()
	opts.UseRecoverMW = true
	opts.SiteHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("handler exploded")
	})
	var panicked bool
	opts.OnPanic = func() { panicked = true }
	h := NewHandler(opts)

	rec := doRequest(t, h, "GET", "/boom")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !panicked {
		t.Fatal("OnPanic not invoked")
	}
}

// Start / stop lifecycle

func TestStart_ServesAndStops(t *testing.T) {
	opts := defaultOpts()
	opts.Port = getFreePort(t)
	opts.Health = &stubProbe{}
	opts.SiteHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("up"))
	})

	ctx := context.Background()
	stop, err := Start(ctx, opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer stop(ctx)

	var resp *http.Response
	url := "http://127.0.0.1:" + strconv.Itoa(opts.Port) + "/"
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if err := stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// idempotent
	if err := stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
