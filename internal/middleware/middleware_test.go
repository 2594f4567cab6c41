package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/groupify/backend/internal/logging"
)

func TestKeyedRateLimiterPerKey(t *testing.T) {
	limiter := NewKeyedRateLimiter(RateLimitConfig{Requests: 1, Window: time.Minute, Burst: 2, TTL: time.Minute})
	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	limiter.WithNowFunc(func() time.Time { return now })

	if !limiter.Allow("alice") || !limiter.Allow("alice") {
		t.Fatal("expected burst to be allowed")
	}
	if limiter.Allow("alice") {
		t.Fatal("expected third request to be limited")
	}
	if !limiter.Allow("bob") {
		t.Fatal("expected other callers to be unaffected")
	}

	now = now.Add(2 * time.Minute)
	if !limiter.Allow("carol") {
		t.Fatal("expected new caller to be allowed")
	}
	if limiter.Len() != 1 {
		t.Fatalf("expected idle callers to be evicted, tracking %d", limiter.Len())
	}
	if !limiter.Allow("alice") {
		t.Fatal("expected evicted caller to start with a fresh bucket")
	}
}

func TestUserIdentity(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	var gotUser string
	handler := RequestLogger(base)(UserIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = logging.UserIDFromContext(r.Context())
		logging.FromContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/trips", nil)
	req.Header.Set(UserIDHeader, "  alice ")
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if gotUser != "alice" {
		t.Fatalf("expected user id alice got %q", gotUser)
	}
	if rec.Header().Get(RequestIDHeader) != "req-1" {
		t.Fatalf("expected request id to be echoed got %q", rec.Header().Get(RequestIDHeader))
	}
	if !strings.Contains(buf.String(), `"user_id":"alice"`) {
		t.Fatalf("expected user id in logs: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"status":204`) {
		t.Fatalf("expected status in completion log: %s", buf.String())
	}
}

func TestUserIdentityWithoutHeader(t *testing.T) {
	var gotUser string
	handler := UserIdentity(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = logging.UserIDFromContext(r.Context())
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if gotUser != "" {
		t.Fatalf("expected no user got %q", gotUser)
	}
}

func TestRequestLoggerRecoversPanics(t *testing.T) {
	base := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	handler := RequestLogger(base)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 got %d", rec.Code)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}
