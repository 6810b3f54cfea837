package opshttp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keithlinneman/linnemanlabs-edge/internal/health"
	"github.com/keithlinneman/linnemanlabs-edge/internal/log"
)

// test helpers

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

func startOps(t *testing.T, opts Options) int {
	t.Helper()
	if opts.Port == 0 {
		opts.Port = getFreePort(t)
	}
	ctx := context.Background()
	stop, err := Start(ctx, log.Nop(), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { stop(ctx) })
	return opts.Port
}

func opsGet(t *testing.T, port int, path string) *http.Response {
	t.Helper()
	addr := fmt.Sprintf("http://127.0.0.1:%d%s", port, path)
	resp, err := http.Get(addr)
	if err != nil {
		t.Fatalf("GET %s: %v", addr, err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

// Start - lifecycle

func TestStart_HealthEndpoints(t *testing.T) {
	port := startOps(t, Options{
		Health:    health.Fixed(true, ""),
		Readiness: health.Fixed(true, ""),
	})

	for _, path := range []string{"/-/healthy", "/-/ready"} {
		resp := opsGet(t, port, path)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestStart_ReadinessFailure(t *testing.T) {
	port := startOps(t, Options{
		Readiness: health.Fixed(false, "draining"),
	})

	resp := opsGet(t, port, "/-/ready")
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	if !strings.Contains(body, "draining") {
		t.Fatalf("body = %q, want reason", body)
	}
}

func TestStart_ShutdownGateFlipsReadiness(t *testing.T) {
	var gate health.ShutdownGate

	port := startOps(t, Options{
		Readiness: gate.Probe(),
	})

	resp := opsGet(t, port, "/-/ready")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initially: status = %d, want 200", resp.StatusCode)
	}

	gate.Set("draining")
	resp = opsGet(t, port, "/-/ready")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("after drain: status = %d, want 503", resp.StatusCode)
	}
}

func TestStart_MetricsEndpoint(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# HELP fake_metric\n"))
	})

	port := startOps(t, Options{Metrics: metricsHandler})

	resp := opsGet(t, port, "/metrics")
	body := readBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body, "fake_metric") {
		t.Fatalf("body = %q, want metrics output", body)
	}
}

func TestStart_MetricsEndpoint_Nil(t *testing.T) {
	port := startOps(t, Options{})

	resp := opsGet(t, port, "/metrics")
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStart_PprofEnabled(t *testing.T) {
	port := startOps(t, Options{EnablePprof: true})

	resp := opsGet(t, port, "/debug/pprof/")
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStart_PprofDisabled(t *testing.T) {
	port := startOps(t, Options{EnablePprof: false})

	resp := opsGet(t, port, "/debug/pprof/")
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (pprof disabled)", resp.StatusCode)
	}
}

func TestStart_GracefulShutdown(t *testing.T) {
	port := getFreePort(t)
	ctx := context.Background()

	stop, err := Start(ctx, log.Nop(), Options{
		Port:   port,
		Health: health.Fixed(true, ""),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp := opsGet(t, port, "/-/healthy")
	resp.Body.Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := stop(shutdownCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	addr := fmt.Sprintf("http://127.0.0.1:%d/-/healthy", port)
	if _, err := http.Get(addr); err == nil {
		t.Fatal("server still accepting connections after shutdown")
	}

	// idempotent
	if err := stop(shutdownCtx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}

func TestStart_PortConflict(t *testing.T) {
	port := getFreePort(t)
	ctx := context.Background()

	stop1, err := Start(ctx, log.Nop(), Options{Port: port})
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer stop1(ctx)

	if _, err = Start(ctx, log.Nop(), Options{Port: port}); err == nil {
		t.Fatal("expected error for port conflict")
	}
}

// requireNonPublicNetwork

func TestRequireNonPublicNetwork_Allowed(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := requireNonPublicNetwork(log.Nop(), inner)

	allowed := []string{
		"127.0.0.1:12345",
		"[::1]:12345",
		"10.0.0.1:8080",
		"172.16.0.1:8080",
		"192.168.1.1:8080",
		"169.254.1.1:8080",
		"[::ffff:10.0.0.1]:12345",
	}
	for _, addr := range allowed {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/-/healthy", http.NoBody)
		req.RemoteAddr = addr
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want 200", addr, rec.Code)
		}
	}
}

func TestRequireNonPublicNetwork_Rejected(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})
	h := requireNonPublicNetwork(log.Nop(), inner)

	rejected := []string{
		"8.8.8.8:12345",
		"203.0.113.1:80",
		"[::ffff:8.8.8.8]:12345", // IPv4-mapped public
		"not-an-address",
		"999.999.999.999:8080",
		"",
	}
	for _, addr := range rejected {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/-/healthy", http.NoBody)
		req.RemoteAddr = addr
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("%q: status = %d, want 403", addr, rec.Code)
		}
	}
}
