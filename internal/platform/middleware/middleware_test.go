package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestRequestIDGenerated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	rid := rec.Header().Get("X-Request-ID")
	if rid == "" {
		t.Fatal("expected X-Request-ID header to be set")
	}
	if got, _ := c.Get("request_id").(string); got != rid {
		t.Errorf("context request_id = %q, header = %q", got, rid)
	}
}

func TestRequestIDPropagated(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if got := rec.Header().Get("X-Request-ID"); got != "upstream-id" {
		t.Errorf("X-Request-ID = %q, want upstream-id", got)
	}
}

func TestRateLimitExhaustsBurst(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 2})
	h := mw(okHandler)

	var lastErr error
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		lastErr = h(c)
	}

	he, ok := lastErr.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected HTTPError after burst exhausted, got %v", lastErr)
	}
	if he.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", he.Code)
	}
}

func TestRateLimitSeparateKeys(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})
	h := mw(okHandler)

	for _, addr := range []string{"10.0.0.1:1", "10.0.0.2:1"} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := h(c); err != nil {
			t.Errorf("first request from %s should pass, got %v", addr, err)
		}
	}
}

func TestRateLimitPrunesIdleBuckets(t *testing.T) {
	store := newRateLimiterStore(RateLimitConfig{RequestsPerSecond: 100, BurstSize: 200})
	now := time.Now()

	idle := store.getBucket("idle-client")
	idle.mu.Lock()
	idle.lastUsed = now.Add(-time.Hour)
	idle.mu.Unlock()
	active := store.getBucket("active-client")
	active.allow()

	store.lastPrune = now.Add(-2 * pruneEvery)
	store.maybePrune(now)

	store.mu.RLock()
	_, idleKept := store.buckets["idle-client"]
	_, activeKept := store.buckets["active-client"]
	store.mu.RUnlock()
	if idleKept {
		t.Error("idle bucket survived the prune")
	}
	if !activeKept {
		t.Error("active bucket was evicted")
	}

	// Within the prune interval the map is not walked again.
	stale := store.getBucket("stale-client")
	stale.mu.Lock()
	stale.lastUsed = now.Add(-time.Hour)
	stale.mu.Unlock()
	store.maybePrune(now)
	store.mu.RLock()
	_, staleKept := store.buckets["stale-client"]
	store.mu.RUnlock()
	if !staleKept {
		t.Error("prune ran again before the interval elapsed")
	}
}

func TestRequestTimeoutPassesFastHandler(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestTimeout(time.Second)(okHandler)
	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "ok" {
		t.Errorf("body = %q, want ok", rec.Body.String())
	}
}

func TestRequestTimeoutDropsLateHandlerWrite(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	wrote := make(chan struct{})
	h := RequestTimeout(20 * time.Millisecond)(func(c echo.Context) error {
		<-c.Request().Context().Done()
		err := c.String(http.StatusOK, "late body")
		close(wrote)
		return err
	})

	if err := h(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	<-wrote

	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
	if body := rec.Body.String(); strings.Contains(body, "late body") {
		t.Errorf("late handler write reached the client: %q", body)
	}
}

func TestBodyLimitRejectsOversized(t *testing.T) {
	e := echo.New()
	mw := BodyLimit("16", "1M")
	h := mw(func(c echo.Context) error {
		buf := make([]byte, 64)
		_, err := c.Request().Body.Read(buf)
		if err != nil {
			return err
		}
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/grants", strings.NewReader(strings.Repeat("x", 32)))
	req.ContentLength = -1 // force the limiting reader path
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := h(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %v", err)
	}
}

func TestBodyLimitRecordPathUsesLargerLimit(t *testing.T) {
	e := echo.New()
	mw := BodyLimit("16", "1K")
	h := mw(func(c echo.Context) error {
		buf := make([]byte, 128)
		if _, err := c.Request().Body.Read(buf); err != nil && err.Error() != "EOF" {
			return err
		}
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/records", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h(c); err != nil {
		t.Fatalf("64-byte body under 1K record limit should pass, got %v", err)
	}
}

func TestParseLimit(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"1M", 1 << 20},
		{"512K", 512 << 10},
		{"2G", 2 << 30},
		{"1024", 1024},
		{"", 1 << 20},
		{"garbage", 1 << 20},
	}
	for _, tc := range cases {
		if got := parseLimit(tc.in); got != tc.want {
			t.Errorf("parseLimit(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := SecurityHeaders()(okHandler)(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	for header, want := range map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"Cache-Control":          "no-store",
	} {
		if got := rec.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
}

func TestResourceFromPath(t *testing.T) {
	cases := map[string]string{
		"/api/v1/records":      "records",
		"/api/v1/records/abc":  "records",
		"/api/v1/grants/1/ok":  "grants",
		"/api/v1/":             "unknown",
		"/healthz":             "unknown",
	}
	for in, want := range cases {
		if got := resourceFromPath(in); got != want {
			t.Errorf("resourceFromPath(%q) = %q, want %q", in, got, want)
		}
	}
}
