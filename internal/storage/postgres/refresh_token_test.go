package postgres

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

// TestIntegration_RefreshToken_SaveAndGet - happy-path сохранения и поиска.
func TestIntegration_RefreshToken_SaveAndGet(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st)

	now := time.Now().UTC()
	rt := newRefresh(u.ID, "h1", now, time.Hour)
	require.NoError(t, st.SaveRefreshToken(ctx, rt))

	got, err := st.RefreshTokenByHash(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.UserID)
	require.Equal(t, rt.FamilyID, got.FamilyID)
	require.Equal(t, models.RefreshActive, got.Status)
	require.Empty(t, got.ReplacedBy)
	require.Nil(t, got.RevokedAt)
	require.True(t, got.Active(now))

	require.ErrorIs(t, st.SaveRefreshToken(ctx, rt), storage.ErrAlreadyExists)

	_, err = st.RefreshTokenByHash(ctx, "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_RotateRefreshToken - обмен помечает старый токен и создаёт преемника.
func TestIntegration_RotateRefreshToken(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st)

	now := time.Now().UTC()
	old := newRefresh(u.ID, "old", now, time.Hour)
	require.NoError(t, st.SaveRefreshToken(ctx, old))

	next := newRefresh(u.ID, "next", now.Add(time.Second), time.Hour)
	next.FamilyID = old.FamilyID
	require.NoError(t, st.RotateRefreshToken(ctx, "old", next))

	got, err := st.RefreshTokenByHash(ctx, "old")
	require.NoError(t, err)
	require.Equal(t, models.RefreshRotated, got.Status)
	require.Equal(t, "next", got.ReplacedBy)
	require.NotNil(t, got.RevokedAt)

	succ, err := st.RefreshTokenByHash(ctx, "next")
	require.NoError(t, err)
	require.Equal(t, models.RefreshActive, succ.Status)
	require.Equal(t, old.FamilyID, succ.FamilyID)

	// Повторный обмен уже использованного токена.
	again := newRefresh(u.ID, "again", now.Add(2*time.Second), time.Hour)
	require.ErrorIs(t, st.RotateRefreshToken(ctx, "old", again), storage.ErrRevoked)

	_, err = st.RefreshTokenByHash(ctx, "again")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_RotateRefreshToken_ExpiredAndMissing - классификация отказов.
func TestIntegration_RotateRefreshToken_ExpiredAndMissing(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st)

	now := time.Now().UTC()
	require.NoError(t, st.SaveRefreshToken(ctx, newRefresh(u.ID, "exp", now.Add(-2*time.Hour), time.Hour)))

	err := st.RotateRefreshToken(ctx, "exp", newRefresh(u.ID, "n1", now, time.Hour))
	require.ErrorIs(t, err, storage.ErrExpired)

	err = st.RotateRefreshToken(ctx, "nope", newRefresh(u.ID, "n2", now, time.Hour))
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestIntegration_RotateRefreshToken_ConcurrentSingleWinner - из N конкурентных
// обменов одного токена успешен ровно один.
func TestIntegration_RotateRefreshToken_ConcurrentSingleWinner(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st)

	now := time.Now().UTC()
	require.NoError(t, st.SaveRefreshToken(ctx, newRefresh(u.ID, "shared", now, time.Hour)))

	const n = 8
	var (
		wg      sync.WaitGroup
		wins    atomic.Int32
		revoked atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := newRefresh(u.ID, uuid.NewString(), time.Now().UTC(), time.Hour)
			err := st.RotateRefreshToken(ctx, "shared", next)
			switch {
			case err == nil:
				wins.Add(1)
			case assertRevoked(err):
				revoked.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, n-1, revoked.Load())
}

func assertRevoked(err error) bool {
	return errors.Is(err, storage.ErrRevoked)
}

// TestIntegration_RevokeRefreshToken - отзыв одного токена идемпотентен.
func TestIntegration_RevokeRefreshToken(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	u := seedUser(t, st)

	now := time.Now().UTC()
	require.NoError(t, st.SaveRefreshToken(ctx, newRefresh(u.ID, "r1", now, time.Hour)))

	ok, err := st.RevokeRefreshToken(ctx, "r1", now)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.RevokeRefreshToken(ctx, "r1", now)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = st.RevokeRefreshToken(ctx, "missing", now)
	require.ErrorIs(t, err, storage.ErrNotFound)

	got, err := st.RefreshTokenByHash(ctx, "r1")
	require.NoError(t, err)
	require.Equal(t, models.RefreshRevoked, got.Status)
}

// TestIntegration_RevokeAllSessions_And_Cleanup - массовый отзыв и очистка.
func TestIntegration_RevokeAllSessions_And_Cleanup(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()
	alice := seedUser(t, st)
	bob := seedUser(t, st)

	now := time.Now().UTC()
	require.NoError(t, st.SaveRefreshToken(ctx, newRefresh(alice.ID, "a1", now, time.Hour)))
	require.NoError(t, st.SaveRefreshToken(ctx, newRefresh(alice.ID, "a2", now, time.Hour)))
	require.NoError(t, st.SaveRefreshToken(ctx, newRefresh(bob.ID, "b1", now, time.Hour)))
	require.NoError(t, st.SaveRefreshToken(ctx, newRefresh(bob.ID, "b-old", now.Add(-3*time.Hour), time.Hour)))

	v, err := st.RevokeAllSessions(ctx, alice.ID, now)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)

	for _, h := range []string{"a1", "a2"} {
		rt, err := st.RefreshTokenByHash(ctx, h)
		require.NoError(t, err)
		require.Equal(t, models.RefreshRevoked, rt.Status)
	}

	b1, err := st.RefreshTokenByHash(ctx, "b1")
	require.NoError(t, err)
	require.Equal(t, models.RefreshActive, b1.Status)

	require.NoError(t, st.DeleteExpiredTokens(ctx, now))
	_, err = st.RefreshTokenByHash(ctx, "b-old")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = st.RefreshTokenByHash(ctx, "b1")
	require.NoError(t, err)
}

// TestIntegration_RevokeAllSessions_RacesRotation - ротация, идущая параллельно
// с отзывом всех сессий, не оставляет активного преемника.
func TestIntegration_RevokeAllSessions_RacesRotation(t *testing.T) {
	st := startPostgres(t)
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		u := seedUser(t, st)
		now := time.Now().UTC()
		require.NoError(t, st.SaveRefreshToken(ctx, newRefresh(u.ID, "race-"+u.ID.String(), now, time.Hour)))

		var (
			wg        sync.WaitGroup
			revokeErr error
			next      = newRefresh(u.ID, "next-"+u.ID.String(), now, time.Hour)
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = st.RotateRefreshToken(ctx, "race-"+u.ID.String(), next)
		}()
		go func() {
			defer wg.Done()
			_, revokeErr = st.RevokeAllSessions(ctx, u.ID, time.Now().UTC())
		}()
		wg.Wait()
		require.NoError(t, revokeErr)

		var active int
		err := st.db.QueryRow(ctx,
			`SELECT count(*) FROM refresh_tokens WHERE user_id = $1 AND status = $2`,
			u.ID, string(models.RefreshActive)).Scan(&active)
		require.NoError(t, err)
		require.Zero(t, active)
	}
}
