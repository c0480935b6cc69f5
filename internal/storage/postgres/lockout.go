package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

// RecordFailure учитывает неудачную попытку одним оператором INSERT ... ON CONFLICT.
//
// Параметры: $2 - now, $3 - now-window (окно истекло, если window_start <= $3),
// $4 - порог, $5 - момент окончания блокировки, если порог достигнут.
func (s *Storage) RecordFailure(ctx context.Context, key string, policy models.LockoutPolicy, now time.Time) (*models.LockoutCounter, error) {
	const op = "storage.postgres.RecordFailure"

	query := `
		INSERT INTO login_attempts AS la (key, attempts, window_start, locked_until)
		VALUES ($1, 1, $2, CASE WHEN 1 >= $4::int THEN $5::timestamptz ELSE NULL END)
		ON CONFLICT (key) DO UPDATE SET
			attempts = CASE WHEN la.window_start <= $3 THEN 1 ELSE la.attempts + 1 END,
			window_start = CASE WHEN la.window_start <= $3 THEN $2 ELSE la.window_start END,
			locked_until = CASE
				WHEN (CASE WHEN la.window_start <= $3 THEN 1 ELSE la.attempts + 1 END) >= $4::int THEN $5::timestamptz
				ELSE la.locked_until
			END
		RETURNING key, attempts, window_start, locked_until
	`

	counter, err := scanCounter(s.db.QueryRow(ctx, query,
		key,
		now,
		now.Add(-policy.Window),
		policy.Threshold,
		now.Add(policy.Lockout),
	))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return counter, nil
}

// LockoutCounter возвращает состояние счётчика ключа.
func (s *Storage) LockoutCounter(ctx context.Context, key string) (*models.LockoutCounter, error) {
	const op = "storage.postgres.LockoutCounter"

	counter, err := scanCounter(s.db.QueryRow(ctx,
		`SELECT key, attempts, window_start, locked_until FROM login_attempts WHERE key = $1`, key))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return counter, nil
}

// ResetLockout удаляет счётчик ключа.
func (s *Storage) ResetLockout(ctx context.Context, key string) error {
	const op = "storage.postgres.ResetLockout"

	if _, err := s.db.Exec(ctx, `DELETE FROM login_attempts WHERE key = $1`, key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteStaleLockouts удаляет счётчики с истёкшими окном и блокировкой.
func (s *Storage) DeleteStaleLockouts(ctx context.Context, windowStartBefore, now time.Time) error {
	const op = "storage.postgres.DeleteStaleLockouts"

	query := `
		DELETE FROM login_attempts
		WHERE window_start <= $1 AND (locked_until IS NULL OR locked_until <= $2)
	`

	if _, err := s.db.Exec(ctx, query, windowStartBefore, now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func scanCounter(row pgx.Row) (*models.LockoutCounter, error) {
	var (
		c           models.LockoutCounter
		lockedUntil *time.Time
	)

	if err := row.Scan(&c.Key, &c.Attempts, &c.WindowStart, &lockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}

		return nil, err
	}

	if lockedUntil != nil {
		c.LockedUntil = lockedUntil.UTC()
	}
	c.WindowStart = c.WindowStart.UTC()

	return &c, nil
}
