package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestTokenBucketAllow(t *testing.T) {
	l := NewTokenBucketLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !l.Allow("k") {
			t.Fatalf("request %d denied within limit", i+1)
		}
	}
	if l.Allow("k") {
		t.Error("request over limit allowed")
	}
	// Keys are independent.
	if !l.Allow("other") {
		t.Error("fresh key denied")
	}
}

func TestTokenBucketRefill(t *testing.T) {
	l := NewTokenBucketLimiter(100, 100*time.Millisecond)
	for l.Allow("k") {
	}
	time.Sleep(20 * time.Millisecond)
	if !l.Allow("k") {
		t.Error("no tokens after refill interval")
	}
}

type denyLimiter struct{}

func (denyLimiter) Allow(string) bool { return false }

type allowLimiter struct{ keys []string }

func (l *allowLimiter) Allow(key string) bool {
	l.keys = append(l.keys, key)
	return true
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(denyLimiter{}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestRateLimitKeyedByUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	lim := &allowLimiter{}
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("user_id", uint(42)) })
	r.Use(RateLimit(lim))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if len(lim.keys) != 1 || lim.keys[0] != "u:42" {
		t.Errorf("keys = %v, want [u:42]", lim.keys)
	}
}
