// Package ratelimit throttles run submissions with Redis-backed
// fixed-window counters. Workflows are tiered by how many AI nodes they
// contain so a burst of heavy workflows cannot starve light ones.
package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/redis/go-redis/v9"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Logger interface for logging
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Result is the outcome of one rate limit check.
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter checks submission rates against Redis counters. The Lua script
// runs the increment-and-check atomically.
type Limiter struct {
	redis  *redis.Client
	script *redis.Script
	logger Logger
}

// NewLimiter creates a limiter with the embedded Lua script.
func NewLimiter(redisClient *redis.Client, logger Logger) *Limiter {
	return &Limiter{
		redis:  redisClient,
		script: redis.NewScript(rateLimitScript),
		logger: logger,
	}
}

// CheckGlobal checks the service-wide submission limit over a one minute
// window.
func (l *Limiter) CheckGlobal(ctx context.Context, limit int64) (*Result, error) {
	return l.check(ctx, "rate_limit:global", limit, 60)
}

// CheckUser checks a single user's submission limit.
func (l *Limiter) CheckUser(ctx context.Context, user string, limit int64, windowSec int) (*Result, error) {
	key := fmt.Sprintf("rate_limit:user:%s", user)
	return l.check(ctx, key, limit, windowSec)
}

// CheckTier checks a user's limit for one workflow tier. Tiers get separate
// counters so light workflows keep flowing while heavy ones are throttled.
func (l *Limiter) CheckTier(ctx context.Context, user string, tier Tier) (*Result, error) {
	key := fmt.Sprintf("rate_limit:user:%s:tier:%s", user, tier)
	cfg := configFor(tier)
	return l.check(ctx, key, cfg.Limit, cfg.WindowSeconds)
}

func (l *Limiter) check(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		l.logger.Error("rate limit check failed", "key", key, "error", err)
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	// Script returns {allowed, current, limit, retry_after}.
	values, ok := raw.([]interface{})
	if !ok || len(values) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script result: %v", raw)
	}

	res := &Result{
		Allowed:           values[0].(int64) == 1,
		CurrentCount:      values[1].(int64),
		Limit:             values[2].(int64),
		RetryAfterSeconds: values[3].(int64),
	}

	if !res.Allowed {
		l.logger.Warn("rate limit exceeded",
			"key", key, "current", res.CurrentCount, "limit", res.Limit,
			"retry_after", res.RetryAfterSeconds)
	}
	return res, nil
}

// Reset clears a counter. Used by tests and admin tooling.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, key).Err()
}
