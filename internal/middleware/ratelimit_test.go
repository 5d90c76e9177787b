package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-platform/backoffice/internal/config"
)

// ---------------------------------------------------------------------------
// Token bucket limiter
// ---------------------------------------------------------------------------

func TestTokenBucket_AllowsUpToBurst(t *testing.T) {
	limiter := newTokenBucketLimiter(60, 3)
	defer limiter.Stop()

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow(context.Background(), "ip:10.0.0.1")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d denied, want allowed within burst", i+1)
		}
	}

	allowed, remaining, _ := limiter.Allow(context.Background(), "ip:10.0.0.1")
	if allowed {
		t.Error("request beyond burst should be denied")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0", remaining)
	}
}

func TestTokenBucket_KeysAreIndependent(t *testing.T) {
	limiter := newTokenBucketLimiter(60, 1)
	defer limiter.Stop()

	if allowed, _, _ := limiter.Allow(context.Background(), "ip:10.0.0.1"); !allowed {
		t.Fatal("first key should be allowed")
	}
	if allowed, _, _ := limiter.Allow(context.Background(), "ip:10.0.0.1"); allowed {
		t.Fatal("first key should now be exhausted")
	}
	if allowed, _, _ := limiter.Allow(context.Background(), "ip:10.0.0.2"); !allowed {
		t.Error("second key should have its own bucket")
	}
}

func TestNewLimiter_DefaultsToTokenBucket(t *testing.T) {
	limiter := NewLimiter(&config.RateLimitingConfig{RequestsPerMinute: 100, Burst: 10})
	defer limiter.Stop()

	if _, ok := limiter.(*tokenBucketLimiter); !ok {
		t.Errorf("limiter = %T, want *tokenBucketLimiter without redis_addr", limiter)
	}
}

func TestNewLimiter_RedisWhenConfigured(t *testing.T) {
	limiter := NewLimiter(&config.RateLimitingConfig{
		RequestsPerMinute: 100,
		Burst:             10,
		RedisAddr:         "localhost:6379",
	})
	defer limiter.Stop()

	if _, ok := limiter.(*redisLimiter); !ok {
		t.Errorf("limiter = %T, want *redisLimiter with redis_addr set", limiter)
	}
}

// ---------------------------------------------------------------------------
// Middleware behaviour
// ---------------------------------------------------------------------------

type stubLimiter struct {
	allowed bool
	err     error
}

func (s *stubLimiter) Allow(context.Context, string) (bool, int, error) {
	return s.allowed, 5, s.err
}

func (s *stubLimiter) Stop() {}

func limitedRouter(limiter Limiter) *gin.Engine {
	router := gin.New()
	router.Use(RateLimitMiddleware(limiter, 100))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestRateLimit_AllowedRequestPasses(t *testing.T) {
	rec := doRequest(limitedRouter(&stubLimiter{allowed: true}), "GET", "/ping", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Limit") != "100" {
		t.Errorf("X-RateLimit-Limit = %q, want 100", rec.Header().Get("X-RateLimit-Limit"))
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "5" {
		t.Errorf("X-RateLimit-Remaining = %q, want 5", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_ExhaustedReturns429(t *testing.T) {
	rec := doRequest(limitedRouter(&stubLimiter{allowed: false}), "GET", "/ping", nil)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "60" {
		t.Errorf("Retry-After = %q, want 60", rec.Header().Get("Retry-After"))
	}
}

func TestRateLimit_LimiterErrorFailsOpen(t *testing.T) {
	rec := doRequest(limitedRouter(&stubLimiter{err: errors.New("redis down")}), "GET", "/ping", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when the limiter backend is unavailable", rec.Code)
	}
}
