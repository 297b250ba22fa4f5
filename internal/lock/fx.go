package lock

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/boqledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(New),
)

// New returns a redis-backed locker when REDIS_ADDR is configured and an
// in-process one otherwise.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Locker {
	if cfg.RedisAddr == "" {
		log.Info("redis not configured, using in-process aggregate locks")
		return NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return NewRedisLocker(client, time.Duration(cfg.LockTTLSecond)*time.Second, log)
}
