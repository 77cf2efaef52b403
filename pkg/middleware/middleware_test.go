package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.Any("/x", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"trace_id": c.GetString("trace_id"), "call_id": c.GetString("call_id")})
	})
	return r
}

func TestTraceMiddleware_PropagatesIncomingTraceID(t *testing.T) {
	r := newEngine(TraceMiddleware())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(traceIDHeader, "upstream-trace")
	r.ServeHTTP(w, req)

	if got := w.Header().Get(traceIDHeader); got != "upstream-trace" {
		t.Fatalf("expected propagated trace id, got %q", got)
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestTraceMiddleware_GeneratesTraceID(t *testing.T) {
	r := newEngine(TraceMiddleware())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	if len(w.Header().Get(traceIDHeader)) != 32 {
		t.Fatalf("expected 32 hex chars, got %q", w.Header().Get(traceIDHeader))
	}
}

func TestSecurityHeaders(t *testing.T) {
	r := newEngine(SecurityHeaders())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff header")
	}
}

func TestRequestSizeLimit(t *testing.T) {
	r := newEngine(RequestSizeLimit(16))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(strings.Repeat("a", 64))))

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", w.Code)
	}
}

func TestRequireQuery(t *testing.T) {
	r := newEngine(RequireQuery("call_id", "Call not found"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?call_id=%20%20", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for blank param, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x?call_id=%20abc%20", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"call_id":"abc"`) {
		t.Fatalf("expected trimmed value, got %d %s", w.Code, w.Body.String())
	}
}

func TestRateLimiter_NilClientIsDisabled(t *testing.T) {
	r := newEngine(NewRateLimiter(nil, 1).Middleware())
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
}

func TestIdempotency_NilClientPassesThrough(t *testing.T) {
	r := newEngine(IdempotencyMiddleware(nil))
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set(idempotencyKeyHeader, "k1")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK || w.Header().Get("X-Idempotency-Key-Used") != "" {
		t.Fatalf("unexpected response %d", w.Code)
	}
}
