package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/go-auth-core/internal/storage"
)

// Режимы блокировки строки users.
const (
	lockForShare  = "FOR SHARE"
	lockForUpdate = "FOR UPDATE"
)

// lockUser блокирует строку пользователя до конца транзакции.
// Отсутствующий пользователь - storage.ErrNotFound.
func lockUser(ctx context.Context, tx pgx.Tx, id uuid.UUID, mode string) error {
	var one int
	err := tx.QueryRow(ctx, `SELECT 1 FROM users WHERE id = $1 `+mode, id).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.ErrNotFound
		}

		return err
	}

	return nil
}

// withUserLock выполняет fn в транзакции, предварительно заблокировав строку пользователя.
func (s *Storage) withUserLock(ctx context.Context, id uuid.UUID, mode string, fn func(tx pgx.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := lockUser(ctx, tx, id, mode); err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
