package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is injected into the HTTP layer so throttling state can live
// in process memory or in a shared store without changing call sites.
type RateLimiter interface {
	Allow(key string) bool
}

// TokenBucketLimiter is an in-process token bucket per key.
type TokenBucketLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   float64
	window  time.Duration
}

type bucket struct {
	tokens float64
	last   time.Time
}

func NewTokenBucketLimiter(limit int, window time.Duration) *TokenBucketLimiter {
	l := &TokenBucketLimiter{
		buckets: make(map[string]*bucket),
		limit:   float64(limit),
		window:  window,
	}
	go l.cleanup()
	return l
}

func (l *TokenBucketLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	b := l.buckets[key]
	if b == nil {
		b = &bucket{tokens: l.limit, last: now}
		l.buckets[key] = b
	}
	refill := now.Sub(b.last).Seconds() * (l.limit / l.window.Seconds())
	b.tokens += refill
	if b.tokens > l.limit {
		b.tokens = l.limit
	}
	b.last = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *TokenBucketLimiter) cleanup() {
	tick := time.NewTicker(time.Minute)
	for range tick.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-2 * l.window)
		for k, b := range l.buckets {
			if b.last.Before(cutoff) {
				delete(l.buckets, k)
			}
		}
		l.mu.Unlock()
	}
}

// RedisRateLimiter is a fixed-window counter in redis, for deployments
// where throttling must be shared across instances. Fails open when
// redis is unreachable.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

func (l *RedisRateLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	windowKey := fmt.Sprintf("rl:%s:%d", key, time.Now().Unix()/int64(l.window.Seconds()))
	n, err := l.client.Incr(ctx, windowKey).Result()
	if err != nil {
		return true
	}
	if n == 1 {
		l.client.Expire(ctx, windowKey, l.window)
	}
	return n <= int64(l.limit)
}

// RateLimit throttles by actor: authenticated requests are keyed by user
// ID, everything else by client IP.
func RateLimit(limiter RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if userID := GetUserID(c); userID != 0 {
			key = "u:" + strconv.FormatUint(uint64(userID), 10)
		}
		if !limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
