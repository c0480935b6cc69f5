package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-auth-core/internal/events"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/storage/memory"
)

const addr = "198.51.100.7"

func TestLogin_ThenVerify_SameUser(t *testing.T) {
	t.Parallel()

	svc, _, clock, sink := newMemSvc(t)
	ctx := context.Background()
	uid := seedVerified(t, svc, "frank@example.com")

	pair, err := svc.LoginUser(ctx, "Frank@Example.com", testPassword, addr)
	require.NoError(t, err)
	require.Equal(t, uid, pair.UserID)
	require.Equal(t, clock.Now().Add(testCfg().AccessTokenTTL), pair.AccessExpiresAt)
	require.Equal(t, clock.Now().Add(testCfg().RefreshTokenTTL), pair.RefreshExpiresAt)

	id, err := svc.VerifyAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, uid, id.UserID)
	require.Equal(t, "frank@example.com", id.Email)
	require.Contains(t, sink.types(), events.LoginSucceeded)
}

func TestVerify_AfterExpiry_IsExpiredEvenIfRevoked(t *testing.T) {
	t.Parallel()

	svc, _, clock, _ := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "gina@example.com")

	revoked, err := svc.LoginUser(ctx, "gina@example.com", testPassword, addr)
	require.NoError(t, err)
	plain, err := svc.LoginUser(ctx, "gina@example.com", testPassword, addr)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, LogoutRequest{AccessToken: revoked.AccessToken, Source: addr}))

	_, err = svc.VerifyAccessToken(ctx, revoked.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	clock.Advance(testCfg().AccessTokenTTL + time.Second)

	_, err = svc.VerifyAccessToken(ctx, revoked.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
	_, err = svc.VerifyAccessToken(ctx, plain.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerify_LeewayDoesNotExtendRevokedToken(t *testing.T) {
	t.Parallel()

	cfg := testCfg()
	cfg.Leeway = 30 * time.Second

	clock := newFakeClock()
	svc := New(memory.New(), cfg, testPolicy())
	svc.SetClock(clock.Now)
	ctx := context.Background()
	seedVerified(t, svc, "lee@example.com")

	pair, err := svc.LoginUser(ctx, "lee@example.com", testPassword, addr)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, LogoutRequest{AccessToken: pair.AccessToken, Source: addr}))

	_, err = svc.VerifyAccessToken(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	// Внутри leeway после exp: запись denylist уже удалена, токен всё равно истёк.
	clock.Advance(cfg.AccessTokenTTL + 10*time.Second)

	id, err := svc.VerifyAccessToken(ctx, pair.AccessToken)
	require.Nil(t, id)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefresh_RotatesOnce(t *testing.T) {
	t.Parallel()

	svc, _, clock, _ := newMemSvc(t)
	ctx := context.Background()
	uid := seedVerified(t, svc, "hank@example.com")

	first, err := svc.LoginUser(ctx, "hank@example.com", testPassword, addr)
	require.NoError(t, err)

	clock.Advance(time.Minute)

	second, err := svc.RefreshSession(ctx, first.RefreshToken, addr)
	require.NoError(t, err)
	require.Equal(t, uid, second.UserID)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Equal(t, clock.Now().Add(testCfg().RefreshTokenTTL), second.RefreshExpiresAt)

	// Ротация не трогает token_version: старый access-токен жив до своего exp.
	_, err = svc.VerifyAccessToken(ctx, first.AccessToken)
	require.NoError(t, err)
	_, err = svc.VerifyAccessToken(ctx, second.AccessToken)
	require.NoError(t, err)
}

func TestRefresh_ReuseOfRotatedToken_InvalidatesEverything(t *testing.T) {
	t.Parallel()

	svc, _, _, sink := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "ivan@example.com")

	first, err := svc.LoginUser(ctx, "ivan@example.com", testPassword, addr)
	require.NoError(t, err)
	other, err := svc.LoginUser(ctx, "ivan@example.com", testPassword, "203.0.113.9")
	require.NoError(t, err)

	second, err := svc.RefreshSession(ctx, first.RefreshToken, addr)
	require.NoError(t, err)

	_, err = svc.RefreshSession(ctx, first.RefreshToken, addr)
	require.ErrorIs(t, err, ErrReuseDetected)
	require.Contains(t, sink.types(), events.SessionReuseDetected)

	for _, tok := range []string{first.AccessToken, second.AccessToken, other.AccessToken} {
		_, err := svc.VerifyAccessToken(ctx, tok)
		require.ErrorIs(t, err, ErrStaleVersion)
	}

	for _, tok := range []string{second.RefreshToken, other.RefreshToken} {
		_, err := svc.RefreshSession(ctx, tok, addr)
		require.ErrorIs(t, err, ErrReuseDetected)
	}
}

func TestRefresh_UnknownAndExpired(t *testing.T) {
	t.Parallel()

	svc, _, clock, _ := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "jane@example.com")

	_, err := svc.RefreshSession(ctx, "", addr)
	require.ErrorIs(t, err, ErrTokenMalformed)
	_, err = svc.RefreshSession(ctx, "never-issued", addr)
	require.ErrorIs(t, err, ErrTokenMalformed)

	pair, err := svc.LoginUser(ctx, "jane@example.com", testPassword, addr)
	require.NoError(t, err)

	clock.Advance(testCfg().RefreshTokenTTL)

	_, err = svc.RefreshSession(ctx, pair.RefreshToken, addr)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestRefresh_Concurrent_ExactlyOneWins(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "kate@example.com")

	pair, err := svc.LoginUser(ctx, "kate@example.com", testPassword, addr)
	require.NoError(t, err)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		reuses  int
		unknown []error
	)

	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := svc.RefreshSession(ctx, pair.RefreshToken, addr)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrReuseDetected):
				reuses++
			default:
				unknown = append(unknown, err)
			}
		}()
	}

	close(start)
	wg.Wait()

	require.Empty(t, unknown)
	require.Equal(t, 1, wins)
	require.Equal(t, callers-1, reuses)
}

func TestLogout_SingleDevice(t *testing.T) {
	t.Parallel()

	svc, st, clock, sink := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "leo@example.com")

	laptop, err := svc.LoginUser(ctx, "leo@example.com", testPassword, addr)
	require.NoError(t, err)
	phone, err := svc.LoginUser(ctx, "leo@example.com", testPassword, addr)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, LogoutRequest{
		AccessToken:  laptop.AccessToken,
		RefreshToken: laptop.RefreshToken,
		Source:       addr,
	}))
	require.Contains(t, sink.types(), events.SessionLogout)

	_, err = svc.VerifyAccessToken(ctx, laptop.AccessToken)
	require.ErrorIs(t, err, ErrTokenRevoked)

	tok, err := st.RefreshTokenByHash(ctx, hashRefresh(laptop.RefreshToken))
	require.NoError(t, err)
	require.Equal(t, models.RefreshRevoked, tok.Status)
	require.False(t, tok.Active(clock.Now()))

	_, err = svc.VerifyAccessToken(ctx, phone.AccessToken)
	require.NoError(t, err)
	_, err = svc.RefreshSession(ctx, phone.RefreshToken, addr)
	require.NoError(t, err)

	// Повторный выход с теми же токенами - не ошибка.
	require.NoError(t, svc.Logout(ctx, LogoutRequest{AccessToken: laptop.AccessToken, RefreshToken: laptop.RefreshToken}))
}

func TestLogout_AllDevices(t *testing.T) {
	t.Parallel()

	svc, _, _, sink := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "mia@example.com")

	laptop, err := svc.LoginUser(ctx, "mia@example.com", testPassword, addr)
	require.NoError(t, err)
	phone, err := svc.LoginUser(ctx, "mia@example.com", testPassword, addr)
	require.NoError(t, err)

	// Только refresh-токен: пользователь определяется по нему.
	require.NoError(t, svc.Logout(ctx, LogoutRequest{RefreshToken: laptop.RefreshToken, AllDevices: true}))
	require.Contains(t, sink.types(), events.SessionRevokedAll)

	for _, tok := range []string{laptop.AccessToken, phone.AccessToken} {
		_, err := svc.VerifyAccessToken(ctx, tok)
		require.Error(t, err)
		require.True(t, IsTokenError(err))
	}

	_, err = svc.RefreshSession(ctx, phone.RefreshToken, addr)
	require.ErrorIs(t, err, ErrReuseDetected)

	fresh, err := svc.LoginUser(ctx, "mia@example.com", testPassword, addr)
	require.NoError(t, err)
	_, err = svc.VerifyAccessToken(ctx, fresh.AccessToken)
	require.NoError(t, err)
}

func TestLogout_AllDevices_WithoutIdentity(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newMemSvc(t)
	err := svc.Logout(context.Background(), LogoutRequest{AccessToken: "garbage", AllDevices: true})
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestLockout_NPlusOneAttemptLockedEvenWithCorrectPassword(t *testing.T) {
	t.Parallel()

	svc, _, clock, sink := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "bob@example.com")
	policy := testPolicy()

	for i := 0; i < policy.Threshold; i++ {
		_, err := svc.LoginUser(ctx, "bob@example.com", "Wrong-pass1", addr)
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i+1)
		clock.Advance(time.Minute)
	}
	require.Contains(t, sink.types(), events.AccountLocked)

	_, err := svc.LoginUser(ctx, "bob@example.com", testPassword, addr)
	require.ErrorIs(t, err, ErrAccountLocked)

	var locked *AccountLockedError
	require.True(t, errors.As(err, &locked))
	require.Greater(t, locked.RetryAfter, time.Duration(0))
	require.LessOrEqual(t, locked.RetryAfter, policy.Lockout)

	// Блокирует и другой адрес: счётчик идентичности общий.
	_, err = svc.LoginUser(ctx, "bob@example.com", testPassword, "192.0.2.44")
	require.ErrorIs(t, err, ErrAccountLocked)

	clock.Advance(locked.RetryAfter)

	_, err = svc.LoginUser(ctx, "bob@example.com", testPassword, "192.0.2.44")
	require.NoError(t, err)
}

func TestLockout_SourceDimension(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "nick@example.com")

	// Перебор разных email с одного адреса блокирует адрес.
	for i := 0; i < testPolicy().Threshold; i++ {
		_, err := svc.LoginUser(ctx, "ghost"+string(rune('a'+i))+"@example.com", "x", addr)
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err := svc.LoginUser(ctx, "nick@example.com", testPassword, addr)
	require.ErrorIs(t, err, ErrAccountLocked)

	_, err = svc.LoginUser(ctx, "nick@example.com", testPassword, "192.0.2.1")
	require.NoError(t, err)
}

func TestLockout_SuccessResetsIdentityCounter(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "olga@example.com")

	for round := 0; round < 3; round++ {
		for i := 0; i < testPolicy().Threshold-1; i++ {
			_, err := svc.LoginUser(ctx, "olga@example.com", "nope", "")
			require.ErrorIs(t, err, ErrInvalidCredentials)
		}
		_, err := svc.LoginUser(ctx, "olga@example.com", testPassword, "")
		require.NoError(t, err)
	}
}

func TestScenario_AliceReplay(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "alice@example.com")

	web, err := svc.LoginUser(ctx, "alice@example.com", testPassword, addr)
	require.NoError(t, err)
	mobile, err := svc.LoginUser(ctx, "alice@example.com", testPassword, "203.0.113.50")
	require.NoError(t, err)

	rotated, err := svc.RefreshSession(ctx, web.RefreshToken, addr)
	require.NoError(t, err)

	_, err = svc.RefreshSession(ctx, web.RefreshToken, "203.0.113.66")
	require.ErrorIs(t, err, ErrReuseDetected)

	for _, tok := range []string{web.AccessToken, rotated.AccessToken, mobile.AccessToken} {
		_, err := svc.Authenticate(ctx, tok)
		require.ErrorIs(t, err, ErrStaleVersion)
	}
}

func TestRevokeUserSessions(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := newMemSvc(t)
	ctx := context.Background()
	uid := seedVerified(t, svc, "paul@example.com")

	pair, err := svc.LoginUser(ctx, "paul@example.com", testPassword, addr)
	require.NoError(t, err)

	version, err := svc.RevokeUserSessions(ctx, uid)
	require.NoError(t, err)
	require.Equal(t, int64(1), version)

	_, err = svc.VerifyAccessToken(ctx, pair.AccessToken)
	require.ErrorIs(t, err, ErrStaleVersion)

	_, err = svc.RevokeUserSessions(ctx, uuid.New())
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestPruneExpired(t *testing.T) {
	t.Parallel()

	svc, st, clock, _ := newMemSvc(t)
	ctx := context.Background()
	seedVerified(t, svc, "quinn@example.com")

	pair, err := svc.LoginUser(ctx, "quinn@example.com", testPassword, addr)
	require.NoError(t, err)
	require.NoError(t, svc.Logout(ctx, LogoutRequest{AccessToken: pair.AccessToken}))

	_, err = svc.LoginUser(ctx, "quinn@example.com", "bad", addr)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	clock.Advance(testCfg().RefreshTokenTTL + time.Hour)
	require.NoError(t, svc.PruneExpired(ctx))

	_, err = st.RefreshTokenByHash(ctx, hashRefresh(pair.RefreshToken))
	require.Error(t, err)

	_, err = st.LockoutCounter(ctx, "ip:"+addr)
	require.Error(t, err)
}
