package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

const insertRefreshToken = `
	INSERT INTO refresh_tokens(token_hash, user_id, family_id, status, created_at, expires_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// SaveRefreshToken сохраняет новый refresh-токен в БД.
func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	const op = "storage.postgres.SaveRefreshToken"

	_, err := s.db.Exec(ctx, insertRefreshToken,
		token.TokenHash,
		token.UserID,
		token.FamilyID,
		string(token.Status),
		token.CreatedAt,
		token.ExpiresAt,
	)

	if err != nil {
		return fmt.Errorf("%s: %w", op, mapInsertErr(err))
	}

	return nil
}

// RefreshTokenByHash находит refresh-токен по его хэшу.
func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	const op = "storage.postgres.RefreshTokenByHash"

	query := `
		SELECT token_hash, user_id, family_id, status, COALESCE(replaced_by, ''), created_at, expires_at, revoked_at
		FROM refresh_tokens
		WHERE token_hash = $1
	`

	var (
		token  models.RefreshToken
		status string
	)
	err := s.db.QueryRow(ctx, query, hash).Scan(
		&token.TokenHash,
		&token.UserID,
		&token.FamilyID,
		&status,
		&token.ReplacedBy,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.RevokedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	token.Status = models.RefreshStatus(status)
	return &token, nil
}

// RotateRefreshToken обменивает активный токен на next в одной транзакции.
//
// Условный UPDATE (status = 'active' AND expires_at > now) выбирает единственного
// победителя: конкурентная транзакция ждёт блокировку строки и после коммита
// первой видит status = 'rotated'. Строка пользователя берётся FOR SHARE:
// RevokeAllSessions (FOR UPDATE) не пересекается с ротацией, и преемник
// либо виден массовому отзыву, либо ротация видит уже отозванный токен.
func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	const op = "storage.postgres.RotateRefreshToken"

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUser(ctx, tx, next.UserID, lockForShare); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	const upd = `
		UPDATE refresh_tokens
		SET status = 'rotated', replaced_by = $2, revoked_at = $3
		WHERE token_hash = $1 AND status = 'active' AND expires_at > $3
		RETURNING user_id
	`

	var userID uuid.UUID
	err = tx.QueryRow(ctx, upd, oldHash, next.TokenHash, next.CreatedAt).Scan(&userID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s: %w", op, err)
		}

		return fmt.Errorf("%s: %w", op, classifyInactive(ctx, tx, oldHash))
	}

	_, err = tx.Exec(ctx, insertRefreshToken,
		next.TokenHash,
		next.UserID,
		next.FamilyID,
		string(next.Status),
		next.CreatedAt,
		next.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapInsertErr(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// classifyInactive объясняет, почему условный UPDATE не нашёл активный токен.
func classifyInactive(ctx context.Context, tx pgx.Tx, hash string) error {
	var (
		status    string
		expiresAt time.Time
	)

	err := tx.QueryRow(ctx, `SELECT status, expires_at FROM refresh_tokens WHERE token_hash = $1`, hash).
		Scan(&status, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}

		return err
	}

	if models.RefreshStatus(status) != models.RefreshActive {
		return storage.ErrRevoked
	}

	return storage.ErrExpired
}

// RevokeRefreshToken отзывает refresh-токен, если он ещё активен.
// Возвращает:
//
//	(true, nil)  - токен был активен и отозван сейчас;
//	(false, nil) - токен существует, но уже не активен;
//	(false, ErrNotFound) - токен не найден.
func (s *Storage) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	const op = "storage.postgres.RevokeRefreshToken"

	const upd = `
		UPDATE refresh_tokens
		SET status = 'revoked', revoked_at = $2
		WHERE token_hash = $1 AND status = 'active'
		RETURNING user_id
	`

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, upd, hash, now).Scan(&userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	var exists bool
	err = s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE token_hash = $1)`, hash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	if !exists {
		return false, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return false, nil
}

const revokeUserTokens = `
	UPDATE refresh_tokens
	SET status = 'revoked', revoked_at = $2
	WHERE user_id = $1 AND status = 'active'
`

// RevokeAllSessions увеличивает token_version и отзывает все активные
// refresh-токены пользователя одной транзакцией под блокировкой строки users.
func (s *Storage) RevokeAllSessions(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	const op = "storage.postgres.RevokeAllSessions"

	const bump = `
		UPDATE users
		SET token_version = token_version + 1, updated_at = now()
		WHERE id = $1
		RETURNING token_version
	`

	var version int64
	err := s.withUserLock(ctx, userID, lockForUpdate, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, bump, userID).Scan(&version); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, revokeUserTokens, userID, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return version, nil
}

// DeleteExpiredTokens удаляет все просроченные токены.
func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) error {
	const op = "storage.postgres.DeleteExpiredTokens"

	if _, err := s.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return storage.ErrAlreadyExists
	}

	return err
}
