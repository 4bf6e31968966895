package locking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jacksonlee411/lease-signflow/modules/signing/domain/ports"
	"github.com/jacksonlee411/lease-signflow/pkg/logger"
	"github.com/jacksonlee411/lease-signflow/pkg/uuidv7"
)

// releaseScript deletes the lock only while it still carries our token.
// KEYS[1] = lock key
// ARGV[1] = owner token
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

type RedisLockerConfig struct {
	Prefix        string
	TTL           time.Duration
	RetryInterval time.Duration
	WaitTimeout   time.Duration
}

// RedisLocker serializes mutators of one contract across server replicas using
// SET NX PX with an owner token.
type RedisLocker struct {
	client redisClient
	cfg    RedisLockerConfig
}

func NewRedisLocker(client redisClient, cfg RedisLockerConfig) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "signflow:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Second
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 25 * time.Millisecond
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Second
	}
	return &RedisLocker{client: client, cfg: cfg}
}

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

var _ ports.Locker = (*RedisLocker)(nil)

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token, err := uuidv7.NewString()
	if err != nil {
		return nil, err
	}
	redisKey := l.cfg.Prefix + key

	deadline := time.NewTimer(l.cfg.WaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(l.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("redis lock %s: %w", redisKey, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, ports.ErrLockNotAcquired
		case <-ticker.C:
		}
	}
}

func (l *RedisLocker) release(redisKey string, token string) {
	// The caller's context may already be cancelled; releasing must still happen.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil {
		logger.Warn(ctx, "redis unlock failed", "key", redisKey, "error", err)
	}
}
