package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, "pong")
	})
	return r
}

func doGet(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = ip + ":12345"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDAssignsAndEchoes(t *testing.T) {
	r := newTestRouter(RequestID())

	w := doGet(r, "10.0.0.1")
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("no request ID assigned")
	}

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "client-chosen")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-chosen" {
		t.Fatalf("request ID = %q, want client-chosen", got)
	}
}

func TestRecoveryConvertsPanicTo500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/boom", func(c *gin.Context) {
		panic("handler exploded")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("panic returned %d, want 500", w.Code)
	}
}

func TestRateLimiterEnforcesBurst(t *testing.T) {
	limiter := NewIPRateLimiter(60, 2)
	r := newTestRouter(limiter.Middleware())

	for i := 0; i < 2; i++ {
		if w := doGet(r, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d returned %d, want 200", i+1, w.Code)
		}
	}
	if w := doGet(r, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("burst-exceeding request returned %d, want 429", w.Code)
	}

	// A different client has its own bucket.
	if w := doGet(r, "10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("fresh client returned %d, want 200", w.Code)
	}
}
