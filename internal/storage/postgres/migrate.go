package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/pribylovaa/go-auth-core/migrations"
)

// gooseUpContext - шов для подмены goose.UpContext в тестах.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate применяет встроенные миграции к базе пула.
func (s *Storage) Migrate(ctx context.Context) error {
	const op = "storage.postgres.Migrate"

	db := stdlib.OpenDBFromPool(s.db)
	defer db.Close()

	if err := RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RunMigrations настраивает goose на встроенные SQL-файлы и применяет их.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return gooseUpContext(ctx, db, ".")
}
