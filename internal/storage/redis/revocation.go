package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// revokeScript ставит ключ с TTL, не сокращая уже действующий.
// KEYS[1] - ключ jti; ARGV[1] - TTL в мс; ARGV[2] - значение.
var revokeScript = goredis.NewScript(`
local cur = redis.call('PTTL', KEYS[1])
if cur < tonumber(ARGV[1]) then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[1])
end
return 1
`)

// RevokeJTI вносит jti в denylist до expiresAt. Уже истёкший токен не сохраняется.
func (s *Store) RevokeJTI(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error {
	const op = "storage.redis.RevokeJTI"

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	value := "1"
	if userID != uuid.Nil {
		value = userID.String()
	}

	if err := revokeScript.Run(ctx, s.rdb, []string{s.jtiKey(jti)}, ttl.Milliseconds(), value).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IsJTIRevoked проверяет наличие jti в denylist. Истечение обеспечивает TTL ключа.
func (s *Store) IsJTIRevoked(ctx context.Context, jti string, _ time.Time) (bool, error) {
	const op = "storage.redis.IsJTIRevoked"

	n, err := s.rdb.Exists(ctx, s.jtiKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return n > 0, nil
}

// DeleteExpiredRevocations ничего не делает: записи истекают по TTL.
func (s *Store) DeleteExpiredRevocations(context.Context, time.Time) error {
	return nil
}
