package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "arandu:lock:"

// DefaultTTL bounds how long a crashed holder blocks a key.
const DefaultTTL = 10 * time.Minute

// pollInterval is the wait between acquisition attempts.
const pollInterval = 100 * time.Millisecond

// Redis is a Locker using SET NX with a TTL. Every acquisition carries its
// own owner token so that only the holder can release it.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
}

// NewRedis connects to addr. The connection is verified lazily; use Ping.
func NewRedis(addr string, ttl time.Duration, log *slog.Logger) (*Redis, error) {
	if addr == "" {
		return nil, errors.New("lock: REDIS_ADDR is empty")
	}
	return NewRedisFromClient(redis.NewClient(&redis.Options{Addr: addr}), ttl, log), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, ttl time.Duration, log *slog.Logger) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Redis{client: client, ttl: ttl, log: log}
}

// releaseScript deletes the key only if the caller still owns it.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Lock implements Locker. It polls until the key is free or ctx ends.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	rkey := keyPrefix + key
	owner := uuid.NewString()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, rkey, owner, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock: acquire %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("lock: wait for %q: %w", key, ctx.Err())
		case <-ticker.C:
		}
	}

	return func() {
		// release must work even when the caller's ctx is already done
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := releaseScript.Run(rctx, r.client, []string{rkey}, owner).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			r.log.Warn("lock release failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}, nil
}

// Ping checks that Redis is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Name returns the dependency label used in readiness responses.
func (r *Redis) Name() string { return "redis" }

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
