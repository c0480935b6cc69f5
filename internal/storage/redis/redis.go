// Package redis хранит denylist отозванных access-токенов и счётчики
// блокировок в Redis. Обе структуры живут ровно столько, сколько нужны:
// время жизни ключей задаётся TTL, фоновая очистка не требуется.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pribylovaa/go-auth-core/internal/storage"
)

// Store реализует storage.RevocationStorage и storage.LockoutStorage.
type Store struct {
	rdb    *goredis.Client
	prefix string
}

// New создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// Если prefix пустой - используется "auth:".
func New(ctx context.Context, redisURL, prefix string) (*Store, error) {
	const op = "storage.redis.New"

	if prefix == "" {
		prefix = "auth:"
	}

	opt, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := goredis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Store{rdb: rdb, prefix: prefix}, nil
}

// Close закрывает клиент Redis.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) jtiKey(jti string) string  { return s.prefix + "jti:" + jti }
func (s *Store) lockKey(key string) string { return s.prefix + "lock:" + key }

var (
	_ storage.RevocationStorage = (*Store)(nil)
	_ storage.LockoutStorage    = (*Store)(nil)
)
