package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

// failureScript атомарно учитывает неудачу в фиксированном окне.
// Хэш: a - попытки, ws - начало окна (unix ms), lu - конец блокировки (unix ms, 0 - нет).
// ARGV: now, window, threshold, lockout (всё в мс).
var failureScript = goredis.NewScript(`
local a = tonumber(redis.call('HGET', KEYS[1], 'a') or '0')
local ws = tonumber(redis.call('HGET', KEYS[1], 'ws') or '0')
local lu = tonumber(redis.call('HGET', KEYS[1], 'lu') or '0')
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
if a == 0 or now - ws >= window then
	a = 1
	ws = now
else
	a = a + 1
end
if a >= tonumber(ARGV[3]) then
	lu = now + tonumber(ARGV[4])
end
redis.call('HSET', KEYS[1], 'a', a, 'ws', ws, 'lu', lu)
local ttl = math.max(ws + window, lu) - now
if ttl < 1 then ttl = 1 end
redis.call('PEXPIRE', KEYS[1], ttl)
return {a, ws, lu}
`)

// RecordFailure учитывает неудачную попытку для ключа.
func (s *Store) RecordFailure(ctx context.Context, key string, policy models.LockoutPolicy, now time.Time) (*models.LockoutCounter, error) {
	const op = "storage.redis.RecordFailure"

	res, err := failureScript.Run(ctx, s.rdb, []string{s.lockKey(key)},
		now.UnixMilli(),
		policy.Window.Milliseconds(),
		policy.Threshold,
		policy.Lockout.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(res) != 3 {
		return nil, fmt.Errorf("%s: unexpected script reply of %d values", op, len(res))
	}

	return counterFrom(key, res[0], res[1], res[2]), nil
}

// LockoutCounter возвращает состояние счётчика ключа.
func (s *Store) LockoutCounter(ctx context.Context, key string) (*models.LockoutCounter, error) {
	const op = "storage.redis.LockoutCounter"

	m, err := s.rdb.HGetAll(ctx, s.lockKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if len(m) == 0 {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	var vals [3]int64
	for i, f := range []string{"a", "ws", "lu"} {
		v, err := strconv.ParseInt(m[f], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: field %s: %w", op, f, err)
		}
		vals[i] = v
	}

	return counterFrom(key, vals[0], vals[1], vals[2]), nil
}

// ResetLockout удаляет счётчик ключа.
func (s *Store) ResetLockout(ctx context.Context, key string) error {
	const op = "storage.redis.ResetLockout"

	if err := s.rdb.Del(ctx, s.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteStaleLockouts ничего не делает: счётчики истекают по TTL.
func (s *Store) DeleteStaleLockouts(context.Context, time.Time, time.Time) error {
	return nil
}

func counterFrom(key string, attempts, windowStart, lockedUntil int64) *models.LockoutCounter {
	c := &models.LockoutCounter{
		Key:         key,
		Attempts:    int(attempts),
		WindowStart: time.UnixMilli(windowStart).UTC(),
	}
	if lockedUntil > 0 {
		c.LockedUntil = time.UnixMilli(lockedUntil).UTC()
	}

	return c
}
