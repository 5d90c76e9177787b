// ratelimit.go provides per-client rate limiting. Two implementations share
// the Limiter interface: an in-process token bucket, and a Redis-backed
// limiter (GCRA via redis_rate) whose limits hold across replicas.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"

	"github.com/backoffice-platform/backoffice/internal/config"
)

// Limiter decides whether a request from the given client key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
	Stop()
}

// NewLimiter builds a limiter from configuration. When redis_addr is set the
// limit is enforced across replicas; otherwise each process keeps its own
// token buckets.
func NewLimiter(cfg *config.RateLimitingConfig) Limiter {
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return &redisLimiter{
			client:  client,
			limiter: redis_rate.NewLimiter(client),
			limit: redis_rate.Limit{
				Rate:   cfg.RequestsPerMinute,
				Burst:  cfg.Burst,
				Period: time.Minute,
			},
		}
	}
	return newTokenBucketLimiter(cfg.RequestsPerMinute, cfg.Burst)
}

// RateLimitMiddleware enforces the limiter per client key, returning 429 with
// a Retry-After header when the budget is exhausted. Limiter errors (e.g.
// Redis unreachable) fail open: blocking all traffic is worse than briefly
// not limiting it.
func RateLimitMiddleware(limiter Limiter, requestsPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rateLimitKey(c)

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.Warn("rate limiter unavailable, allowing request", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(requestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}

// rateLimitKey prefers the authenticated user over the client IP so NAT'd
// users don't share a bucket.
func rateLimitKey(c *gin.Context) string {
	if userID, exists := c.Get(UserIDContextKey); exists {
		if id, ok := userID.(string); ok && id != "" {
			return "user:" + id
		}
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}

// redisLimiter enforces limits via Redis GCRA.
type redisLimiter struct {
	client  *redis.Client
	limiter *redis_rate.Limiter
	limit   redis_rate.Limit
}

func (l *redisLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	res, err := l.limiter.Allow(ctx, key, l.limit)
	if err != nil {
		return false, 0, err
	}
	return res.Allowed > 0, res.Remaining, nil
}

func (l *redisLimiter) Stop() {
	if err := l.client.Close(); err != nil {
		slog.Warn("failed to close rate limiter redis client", "error", err)
	}
}

// tokenBucketLimiter is the in-process fallback.
type tokenBucketLimiter struct {
	requestsPerMinute int
	burst             int

	mu      sync.Mutex
	buckets map[string]*bucket
	stopCh  chan struct{}
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
}

func newTokenBucketLimiter(requestsPerMinute, burst int) *tokenBucketLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 200
	}
	if burst <= 0 {
		burst = requestsPerMinute / 4
	}

	l := &tokenBucketLimiter{
		requestsPerMinute: requestsPerMinute,
		burst:             burst,
		buckets:           make(map[string]*bucket),
		stopCh:            make(chan struct{}),
	}
	go l.cleanup()
	return l
}

func (l *tokenBucketLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, exists := l.buckets[key]
	if !exists {
		l.buckets[key] = &bucket{
			tokens:     float64(l.burst) - 1,
			lastUpdate: now,
		}
		return true, l.burst - 1, nil
	}

	refill := now.Sub(b.lastUpdate).Seconds() * float64(l.requestsPerMinute) / 60.0
	b.tokens = min(float64(l.burst), b.tokens+refill)
	b.lastUpdate = now

	if b.tokens < 1 {
		return false, 0, nil
	}
	b.tokens--
	return true, int(b.tokens), nil
}

// cleanup drops buckets idle for over 10 minutes so the map doesn't grow
// unbounded with one-off client IPs.
func (l *tokenBucketLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.mu.Lock()
			cutoff := time.Now().Add(-10 * time.Minute)
			for key, b := range l.buckets {
				if b.lastUpdate.Before(cutoff) {
					delete(l.buckets, key)
				}
			}
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

func (l *tokenBucketLimiter) Stop() {
	close(l.stopCh)
}
