package coord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store against a shared Redis instance. Every
// primitive maps to a single command or a single Lua script, so atomicity
// comes from Redis itself; no client-side locking exists.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var incrWithTTLScript = redis.NewScript(`
-- KEYS[1] = counter key
-- ARGV[1] = ttl_ms applied on first increment, or to a key that has no TTL
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
else
  -- Ensure TTL exists even if key already existed without TTL
  if redis.call('PTTL', KEYS[1]) < 0 then
    redis.call('PEXPIRE', KEYS[1], ARGV[1])
  end
end
return current
`)

var decrFloorScript = redis.NewScript(`
-- KEYS[1] = counter key
-- Decrement, and delete if <= 0
local current = redis.call('DECR', KEYS[1])
if current <= 0 then
  redis.call('DEL', KEYS[1])
end
return 1
`)

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if key == "" {
		return false, fmt.Errorf("key is required")
	}
	created, err := s.rdb.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, transport(err)
	}
	return created, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, transport(err)
	}
	return v, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, key).Result()
	if err != nil {
		return false, transport(err)
	}
	return n > 0, nil
}

func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, ttlIfNew time.Duration) (int64, error) {
	if ttlIfNew <= 0 {
		return 0, fmt.Errorf("ttl must be > 0")
	}
	n, err := incrWithTTLScript.Run(ctx, s.rdb, []string{key}, ttlIfNew.Milliseconds()).Int64()
	if err != nil {
		return 0, transport(err)
	}
	return n, nil
}

func (s *RedisStore) Decrement(ctx context.Context, key string) error {
	if _, err := decrFloorScript.Run(ctx, s.rdb, []string{key}).Result(); err != nil {
		return transport(err)
	}
	return nil
}

func (s *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, transport(err)
	}
	if d < 0 {
		// -2 absent, -1 no expiry; both report zero remaining.
		return 0, nil
	}
	return d, nil
}

func transport(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
