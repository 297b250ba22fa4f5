package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisLocker is a SETNX lock shared by every replica of the service.
type RedisLocker struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	wait   time.Duration
	log    *zap.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisLocker{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    ttl,
		wait:   defaultWait,
		log:    log.Named("lock.redis"),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, errors.New("lock key is empty")
	}

	deadline := time.Now().Add(l.wait)
	for {
		token, ok, err := l.tryLock(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			acquired := time.Now()
			return func() {
				// Release must outlive a cancelled request context.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				deleted, err := l.script.Run(releaseCtx, l.client, []string{key}, token).Int64()
				l.reportRelease(key, time.Since(acquired), deleted, err)
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrBusy
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryEvery):
		}
	}
}

// reportRelease logs a release that did not delete our token. A zero result
// means the TTL ran out while the lock was held and another replica may have
// taken the key in the meantime; the row lock of the write transaction still
// serializes the ledger writes themselves.
func (l *RedisLocker) reportRelease(key string, held time.Duration, deleted int64, err error) {
	if err != nil {
		l.log.Warn("failed to release lock", zap.String("key", key), zap.Error(err))
		return
	}
	if deleted == 0 {
		l.log.Warn("lock expired before release",
			zap.String("key", key),
			zap.Duration("held", held),
			zap.Duration("ttl", l.ttl),
		)
	}
}

func (l *RedisLocker) tryLock(ctx context.Context, key string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}
