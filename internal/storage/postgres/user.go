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

const userColumns = `id, email, password_hash, email_verified, token_version, lockout_until, created_at, updated_at`

// SaveUser создаёт нового пользователя в БД.
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	const op = "storage.postgres.SaveUser"

	query := `
		INSERT INTO users(id, email, password_hash, email_verified, token_version, lockout_until, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.EmailVerified,
		user.TokenVersion,
		user.LockoutUntil,
		user.CreatedAt,
		user.UpdatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail находит пользователя по email (CITEXT - без учёта регистра).
func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.UserByEmail"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UserByID находит пользователя по ID.
func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "storage.postgres.UserByID"

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(s.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// SetEmailVerified выставляет признак подтверждённого email.
func (s *Storage) SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	const op = "storage.postgres.SetEmailVerified"

	query := `
		UPDATE users
		SET email_verified = $2, updated_at = now()
		WHERE id = $1
	`

	tag, err := s.db.Exec(ctx, query, id, verified)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// UpdatePassword меняет хэш пароля, увеличивает token_version и отзывает все
// активные refresh-токены одной транзакцией под блокировкой строки пользователя.
func (s *Storage) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, now time.Time) (int64, error) {
	const op = "storage.postgres.UpdatePassword"

	const upd = `
		UPDATE users
		SET password_hash = $2, token_version = token_version + 1, updated_at = now()
		WHERE id = $1
		RETURNING token_version
	`

	var version int64
	err := s.withUserLock(ctx, id, lockForUpdate, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, upd, id, hash).Scan(&version); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, revokeUserTokens, id, now)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return version, nil
}

// SetLockoutUntil сохраняет отметку блокировки (nil - очистить).
func (s *Storage) SetLockoutUntil(ctx context.Context, id uuid.UUID, until *time.Time) error {
	const op = "storage.postgres.SetLockoutUntil"

	tag, err := s.db.Exec(ctx, `UPDATE users SET lockout_until = $2, updated_at = now() WHERE id = $1`, id, until)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// TokenVersion возвращает текущую token_version пользователя.
func (s *Storage) TokenVersion(ctx context.Context, id uuid.UUID) (int64, error) {
	const op = "storage.postgres.TokenVersion"

	var version int64
	if err := s.db.QueryRow(ctx, `SELECT token_version FROM users WHERE id = $1`, id).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%s: %w", op, storage.ErrNotFound)
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return version, nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.EmailVerified,
		&user.TokenVersion,
		&user.LockoutUntil,
		&user.CreatedAt,
		&user.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	return &user, nil
}
