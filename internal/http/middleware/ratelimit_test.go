package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/inkworks/booking-broker/internal/clock"
	"github.com/inkworks/booking-broker/pkg/logging"
)

func TestRedisLimiterSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clk := clock.NewFrozen(time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC))
	limiter := NewRedisLimiter(client, 3, time.Minute, clk, logging.New("error"))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !limiter.Allow(ctx, "1.2.3.4") {
			t.Fatalf("request %d must be allowed", i+1)
		}
	}
	if limiter.Allow(ctx, "1.2.3.4") {
		t.Fatal("4th request in the window must be denied")
	}
	if !limiter.Allow(ctx, "5.6.7.8") {
		t.Fatal("other clients have their own window")
	}

	clk.Advance(2 * time.Minute)
	if !limiter.Allow(ctx, "1.2.3.4") {
		t.Fatal("window must slide past old requests")
	}
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := NewRedisLimiter(client, 1, time.Minute, nil, logging.New("error"))
	mr.Close()

	if !limiter.Allow(context.Background(), "1.2.3.4") {
		t.Fatal("unreachable redis must not block traffic")
	}
}

func TestLocalLimiterBurst(t *testing.T) {
	limiter := NewLocalLimiter(1, 2)
	ctx := context.Background()
	if !limiter.Allow(ctx, "a") || !limiter.Allow(ctx, "a") {
		t.Fatal("burst of 2 must be allowed")
	}
	if limiter.Allow(ctx, "a") {
		t.Fatal("third immediate request must be denied")
	}
	if !limiter.Allow(ctx, "b") {
		t.Fatal("keys are independent")
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	handler := RateLimit(NewLocalLimiter(1, 1))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/webhooks/whatsapp", nil)
	req.Header.Set("X-Real-Ip", "9.9.9.9")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("first request = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rec.Code)
	}
}
