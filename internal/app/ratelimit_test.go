package app

import (
	"context"
	"testing"
	"time"
)

func TestRedisRateLimiterFailsOpen(t *testing.T) {
	tests := []struct {
		name    string
		limiter *RedisRateLimiter
		scope   string
		subject string
		limit   int
	}{
		{
			name:    "nil receiver",
			limiter: nil,
			scope:   "referral",
			subject: "user-1",
			limit:   10,
		},
		{
			name:    "nil client",
			limiter: NewRedisRateLimiter(nil, "test"),
			scope:   "referral",
			subject: "user-1",
			limit:   10,
		},
		{
			name:    "zero limit disables the check",
			limiter: NewRedisRateLimiter(nil, "test"),
			scope:   "referral",
			subject: "user-1",
			limit:   0,
		},
		{
			name:    "empty subject",
			limiter: NewRedisRateLimiter(nil, "test"),
			scope:   "referral",
			subject: "  ",
			limit:   10,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, retryAfter, err := tt.limiter.Consume(context.Background(), tt.scope, tt.subject, tt.limit, time.Minute)
			if err != nil {
				t.Fatalf("expected the limiter to fail open, got %v", err)
			}
			if count != 0 || retryAfter != 0 {
				t.Fatalf("expected a zero result, got count=%d retryAfter=%d", count, retryAfter)
			}
		})
	}
}

func TestNewRedisRateLimiterNormalizesPrefix(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "", want: "vineme:rate_limit"},
		{input: "  ", want: "vineme:rate_limit"},
		{input: "custom:prefix:", want: "custom:prefix"},
		{input: "custom", want: "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			limiter := NewRedisRateLimiter(nil, tt.input)
			if limiter.prefix != tt.want {
				t.Fatalf("expected prefix %q, got %q", tt.want, limiter.prefix)
			}
		})
	}
}
