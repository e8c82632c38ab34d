package app

import (
	"context"
	"testing"
	"time"
)

func TestAllow_NilLimiterAdmitsEverything(t *testing.T) {
	var limiter *RedisPaymentRateLimiter

	allowed, retryAfter, err := limiter.Allow(context.Background(), "payments", "account-1", 30, time.Minute)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !allowed || retryAfter != 0 {
		t.Fatalf("expected a nil limiter to admit, got allowed=%v retryAfter=%d", allowed, retryAfter)
	}
}

func TestAllow_ZeroLimitDisablesLimiting(t *testing.T) {
	limiter := NewRedisPaymentRateLimiter(nil, "payments:rate_limit")

	allowed, _, err := limiter.Allow(context.Background(), "payments", "account-1", 0, time.Minute)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !allowed {
		t.Fatal("expected a zero limit to disable limiting")
	}
}

func TestParseLimiterReply_RejectsUnexpectedShapes(t *testing.T) {
	if _, _, err := parseLimiterReply("nope"); err == nil {
		t.Fatal("expected an error for a non-array reply")
	}
	if _, _, err := parseLimiterReply([]interface{}{int64(1)}); err == nil {
		t.Fatal("expected an error for a short reply")
	}

	hits, ttlMs, err := parseLimiterReply([]interface{}{int64(3), int64(45000)})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if hits != 3 || ttlMs != 45000 {
		t.Fatalf("expected 3 hits and 45000ms ttl, got %d and %d", hits, ttlMs)
	}
}
