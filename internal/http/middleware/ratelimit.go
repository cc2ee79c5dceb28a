package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/pkg/logging"
)

// ClientLimiter decides whether a keyed caller may proceed.
type ClientLimiter interface {
	Allow(ctx context.Context, key string) bool
}

// RedisLimiter is a sliding-window limiter shared across broker instances.
// Each request lands in a per-key sorted set scored by nanosecond timestamp;
// entries older than the window are trimmed before counting. Denied requests
// still occupy a slot, so a hammering client keeps its window full.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	clock  clock.Clock
	logger *logging.Logger
}

func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, clk clock.Clock, logger *logging.Logger) *RedisLimiter {
	if client == nil {
		panic("middleware: redis client required")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisLimiter{client: client, limit: limit, window: window, clock: clk, logger: logger}
}

// Allow fails open: when Redis is unreachable, rate limiting degrades rather
// than taking webhook traffic down with it.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	now := l.clock.Now()
	rkey := "ratelimit:" + key
	cutoff := strconv.FormatInt(now.Add(-l.window).UnixNano(), 10)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "0", cutoff)
	count := pipe.ZCard(ctx, rkey)
	pipe.ZAdd(ctx, rkey, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString()[:8]),
	})
	pipe.Expire(ctx, rkey, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("rate limit check failed, allowing request", "error", err, "key", key)
		return true
	}
	return count.Val() < int64(l.limit)
}

// LocalLimiter is the in-process fallback used when no Redis is configured:
// a per-key token bucket with periodic eviction of idle buckets.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rate    float64
	burst   int
}

type bucket struct {
	tokens   float64
	lastTime time.Time
}

func NewLocalLimiter(rate float64, burst int) *LocalLimiter {
	l := &LocalLimiter{
		buckets: make(map[string]*bucket),
		rate:    rate,
		burst:   burst,
	}
	go l.cleanup()
	return l
}

func (l *LocalLimiter) Allow(_ context.Context, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.burst), lastTime: now}
		l.buckets[key] = b
	}

	elapsed := now.Sub(b.lastTime).Seconds()
	b.tokens += elapsed * l.rate
	if b.tokens > float64(l.burst) {
		b.tokens = float64(l.burst)
	}
	b.lastTime = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

func (l *LocalLimiter) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-10 * time.Minute)
		for key, b := range l.buckets {
			if b.lastTime.Before(cutoff) {
				delete(l.buckets, key)
			}
		}
		l.mu.Unlock()
	}
}

// RateLimit rejects requests over the limit with 429. Keys are client IPs,
// preferring the X-Real-Ip header set by chi's RealIP middleware.
func RateLimit(limiter ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := r.RemoteAddr
			if xri := r.Header.Get("X-Real-Ip"); xri != "" {
				ip = xri
			}
			if !limiter.Allow(r.Context(), ip) {
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
