package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestIntegration_RevokeJTI - denylist с TTL до истечения токена.
func TestIntegration_RevokeJTI(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st)

	now := time.Now().UTC()
	require.NoError(t, st.RevokeJTI(ctx, "jti-1", u.ID, now.Add(time.Minute)))
	require.NoError(t, st.RevokeJTI(ctx, "jti-anon", uuid.Nil, now.Add(time.Minute)))

	revoked, err := st.IsJTIRevoked(ctx, "jti-1", now)
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = st.IsJTIRevoked(ctx, "jti-anon", now)
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = st.IsJTIRevoked(ctx, "jti-1", now.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, revoked)

	revoked, err = st.IsJTIRevoked(ctx, "unknown", now)
	require.NoError(t, err)
	require.False(t, revoked)
}

// TestIntegration_RevokeJTI_ExtendsOnly - повторный отзыв не сокращает срок.
func TestIntegration_RevokeJTI_ExtendsOnly(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.RevokeJTI(ctx, "j", uuid.Nil, now.Add(time.Hour)))
	require.NoError(t, st.RevokeJTI(ctx, "j", uuid.Nil, now.Add(time.Minute)))

	revoked, err := st.IsJTIRevoked(ctx, "j", now.Add(30*time.Minute))
	require.NoError(t, err)
	require.True(t, revoked)
}

// TestIntegration_DeleteExpiredRevocations - очистка просроченных записей.
func TestIntegration_DeleteExpiredRevocations(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, st.RevokeJTI(ctx, "old", uuid.Nil, now.Add(-time.Minute)))
	require.NoError(t, st.RevokeJTI(ctx, "live", uuid.Nil, now.Add(time.Minute)))

	require.NoError(t, st.DeleteExpiredRevocations(ctx, now))

	var n int
	require.NoError(t, st.db.QueryRow(ctx, `SELECT count(*) FROM revoked_tokens`).Scan(&n))
	require.Equal(t, 1, n)
}
