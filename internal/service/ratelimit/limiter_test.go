package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func TestLimiterRefills(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(2, 1)
	l.now = func() time.Time { return clock }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatalf("expected two tokens initially")
	}
	if l.Allow("a") {
		t.Fatalf("expected bucket to be empty")
	}
	if !l.Allow("b") {
		t.Fatalf("keys must not share buckets")
	}
	clock = clock.Add(time.Second)
	if !l.Allow("a") {
		t.Fatalf("expected one token after 1s")
	}
	if l.Allow("a") {
		t.Fatalf("expected only one refilled token")
	}

	clock = clock.Add(time.Hour)
	if n := l.Prune(time.Minute); n != 2 {
		t.Fatalf("expected 2 pruned buckets, got %d", n)
	}
}

func TestMiddlewareReturns429(t *testing.T) {
	e := echo.New()
	e.Use(Middleware(New(1, 0.5)))
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}
	if rec := do(); rec.Code != http.StatusNoContent {
		t.Fatalf("first request: expected 204, got %d", rec.Code)
	}
	rec := do()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: expected 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2, got %q", got)
	}
	if !strings.Contains(rec.Body.String(), "retryAfterSeconds") {
		t.Fatalf("expected retry hint in body: %s", rec.Body.String())
	}
}

func TestAllowSweepsIdleBuckets(t *testing.T) {
	clock := time.Unix(0, 0)
	l := New(1, 1)
	l.now = func() time.Time { return clock }
	l.Allow("stale")
	clock = clock.Add(time.Hour)
	for i := 0; i < pruneEvery; i++ {
		l.Allow("hot")
	}
	if _, ok := l.m["stale"]; ok {
		t.Fatalf("idle bucket survived the sweep")
	}
}
