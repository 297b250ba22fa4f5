package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/boqledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyWriteOrg = "boq:write:org:%s"

// WriteLimiter caps mutating API calls per company. A nil limiter allows
// everything.
type WriteLimiter struct {
	bucket Bucket
	rate   float64
	burst  int
	log    *zap.Logger
}

// NewWriteLimiter is enabled when WRITE_RATE_LIMIT is positive and redis is
// configured.
func NewWriteLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) *WriteLimiter {
	if cfg.WriteRateLimit <= 0 {
		return nil
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		log.Warn("write rate limit configured without redis, limiter disabled")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return NewLimiter(NewTokenBucket(client), cfg.WriteRateLimit, cfg.WriteRateBurst, log)
}

func NewLimiter(bucket Bucket, rate float64, burst int, log *zap.Logger) *WriteLimiter {
	if burst <= 0 {
		burst = int(rate)
		if burst < 1 {
			burst = 1
		}
	}
	return &WriteLimiter{
		bucket: bucket,
		rate:   rate,
		burst:  burst,
		log:    log.Named("ratelimit"),
	}
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowOrg takes one write token for the company. Bucket failures fail open.
func (l *WriteLimiter) AllowOrg(ctx context.Context, orgID string) *Result {
	if !l.Enabled() {
		return &Result{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyWriteOrg, strings.TrimSpace(orgID)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable", zap.String("org_id", orgID), zap.Error(err))
		return &Result{Allowed: true, Limit: l.burst}
	}
	return res
}
