package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pribylovaa/go-auth-core/internal/models"
)

// Интеграционные тесты пакета postgres:
// - поднимают реальный PostgreSQL через testcontainers-go (образ postgres:16-alpine);
// - применяют встроенные миграции через goose (Storage.Migrate);
// - без GO_TEST_INTEGRATION пропускаются.
//
// Запуск локально:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/postgres -v -race -count=1

// startPostgres поднимает временный PostgreSQL, применяет миграции и возвращает хранилище.
func startPostgres(t *testing.T) *Storage {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_USER": "user", "POSTGRES_PASSWORD": "pass", "POSTGRES_DB": "db"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "5432/tcp")
	dsn := fmt.Sprintf("postgres://user:pass@%s:%s/db?sslmode=disable", host, port.Port())

	// Порт открывается раньше, чем postgres готов принимать запросы.
	var st *Storage
	require.Eventually(t, func() bool {
		st, err = New(ctx, dsn)
		return err == nil
	}, 30*time.Second, 500*time.Millisecond)

	require.NoError(t, st.Migrate(ctx))

	t.Cleanup(func() {
		st.Close()
		_ = c.Terminate(context.Background())
	})

	return st
}

// seedUser создаёт пользователя с уникальным email.
func seedUser(t *testing.T, st *Storage) *models.User {
	t.Helper()

	now := time.Now().UTC()
	u := &models.User{
		ID:           uuid.New(),
		Email:        fmt.Sprintf("u-%s@example.com", uuid.NewString()[:8]),
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, st.SaveUser(context.Background(), u))
	return u
}

func newRefresh(userID uuid.UUID, hash string, now time.Time, ttl time.Duration) *models.RefreshToken {
	return &models.RefreshToken{
		TokenHash: hash,
		UserID:    userID,
		FamilyID:  uuid.New(),
		Status:    models.RefreshActive,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}
