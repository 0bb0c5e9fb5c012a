package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumenforge/lumenforge-web/internal/xerrors"
)

// takeScript applies the window rules on a hash {c: count, d: denials} whose
// key expires at the end of the window.
// returns {allowed, remaining, pttl_ms, denials}
var takeScript = redis.NewScript(`
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local count = redis.call('HGET', KEYS[1], 'c')
if not count then
  redis.call('HSET', KEYS[1], 'c', 1, 'd', 0)
  redis.call('PEXPIRE', KEYS[1], window)
  return {1, max - 1, window, 0}
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window)
  ttl = window
end
count = tonumber(count)
if count >= max then
  local d = redis.call('HINCRBY', KEYS[1], 'd', 1)
  return {0, 0, ttl, d}
end
count = redis.call('HINCRBY', KEYS[1], 'c', 1)
return {1, max - count, ttl, 0}
`)

// RedisStore shares counters between instances. Expiry is left to redis, so
// nothing needs sweeping.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisStore namespaces every key under prefix, e.g. "lfweb:rl:form:".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) Take(ctx context.Context, key string, max int, window time.Duration, now time.Time) (Result, error) {
	// PEXPIRE 0 deletes the key, so sub-millisecond windows round up
	ms := max64(window.Milliseconds(), 1)
	vals, err := takeScript.Run(ctx, s.rdb, []string{s.prefix + key}, max, ms).Int64Slice()
	if err != nil {
		return Result{}, xerrors.Wrap(err, "redis take")
	}
	if len(vals) != 4 {
		return Result{}, xerrors.Newf("redis take: unexpected reply length %d", len(vals))
	}
	return Result{
		Allowed:     vals[0] == 1,
		Remaining:   int(vals[1]),
		ResetTime:   now.Add(time.Duration(vals[2]) * time.Millisecond),
		firstDenial: vals[0] == 0 && vals[3] == 1,
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return xerrors.Wrap(s.rdb.Del(ctx, s.prefix+key).Err(), "redis delete")
}

// Flush removes every key under the store prefix.
func (s *RedisStore) Flush(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+"*", 500).Result()
		if err != nil {
			return xerrors.Wrap(err, "redis scan")
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return xerrors.Wrap(err, "redis delete batch")
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping is used as a readiness check.
func (s *RedisStore) Ping(ctx context.Context) error {
	return xerrors.Wrap(s.rdb.Ping(ctx).Err(), "redis ping")
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
