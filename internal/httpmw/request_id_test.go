package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if seen == "" {
		t.Fatal("no request ID in context")
	}
	if len(seen) != 32 {
		t.Fatalf("request ID %q not 32 hex chars", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != seen {
		t.Fatalf("response header = %q, context = %q", got, seen)
	}
}

func TestRequestID_PropagatesExisting(t *testing.T) {
	var seen string
	handler := RequestID("X-Request-Id")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set("X-Request-Id", "upstream-id-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen != "upstream-id-123" {
		t.Fatalf("context ID = %q, want upstream-id-123", seen)
	}
	if got := rec.Header().Get("X-Request-Id"); got != "upstream-id-123" {
		t.Fatalf("response header = %q", got)
	}
}

func TestRequestID_CustomHeader(t *testing.T) {
	handler := RequestID("X-Correlation-Id")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rec.Header().Get("X-Correlation-Id") == "" {
		t.Fatal("custom header not set")
	}
}

func TestRequestIDFromContext_Empty(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestWithRequestID_EmptyNoop(t *testing.T) {
	ctx := context.Background()
	if got := WithRequestID(ctx, ""); got != ctx {
		t.Fatal("empty ID should not modify context")
	}
}
