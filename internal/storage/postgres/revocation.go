package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RevokeJTI вносит jti в denylist. Повторный отзыв продлевает запись
// до большего из сроков.
func (s *Storage) RevokeJTI(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error {
	const op = "storage.postgres.RevokeJTI"

	query := `
		INSERT INTO revoked_tokens(jti, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (jti) DO UPDATE
		SET expires_at = GREATEST(revoked_tokens.expires_at, EXCLUDED.expires_at)
	`

	var uid any
	if userID != uuid.Nil {
		uid = userID
	}

	if _, err := s.db.Exec(ctx, query, jti, uid, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IsJTIRevoked сообщает, есть ли в denylist непросроченная запись для jti.
func (s *Storage) IsJTIRevoked(ctx context.Context, jti string, now time.Time) (bool, error) {
	const op = "storage.postgres.IsJTIRevoked"

	var revoked bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1 AND expires_at > $2)`,
		jti, now,
	).Scan(&revoked)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return revoked, nil
}

// DeleteExpiredRevocations удаляет записи denylist, чей токен истёк бы сам.
func (s *Storage) DeleteExpiredRevocations(ctx context.Context, now time.Time) error {
	const op = "storage.postgres.DeleteExpiredRevocations"

	if _, err := s.db.Exec(ctx, `DELETE FROM revoked_tokens WHERE expires_at <= $1`, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
