package handlers

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-auth-core/internal/models"
)

func newTestHandlers(secure bool) *Handlers {
	return New(nil, nil, Options{
		BasePath:      "/auth",
		RefreshCookie: "refresh_token",
		CookieSecure:  secure,
		SameSite:      http.SameSiteStrictMode,
	})
}

func TestSecure(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(false)

	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	require.False(t, h.secure(r))

	r.Header.Set("X-Forwarded-Proto", "https")
	require.True(t, h.secure(r))

	r = httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	r.TLS = &tls.ConnectionState{}
	require.True(t, h.secure(r))

	require.True(t, newTestHandlers(true).secure(httptest.NewRequest(http.MethodPost, "/auth/login", nil)))
}

func TestRefreshCookie_SetAndClear(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(false)
	r := httptest.NewRequest(http.MethodPost, "/auth/login", nil)

	w := httptest.NewRecorder()
	h.setRefreshCookie(w, r, &models.TokenPair{
		UserID:           uuid.New(),
		RefreshToken:     "opaque",
		RefreshExpiresAt: time.Now().Add(time.Hour),
	})

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	require.Equal(t, "refresh_token", c.Name)
	require.Equal(t, "opaque", c.Value)
	require.Equal(t, "/auth", c.Path)
	require.True(t, c.HttpOnly)
	require.False(t, c.Secure)
	require.Equal(t, http.SameSiteStrictMode, c.SameSite)
	require.Greater(t, c.MaxAge, 3500)

	w = httptest.NewRecorder()
	h.clearRefreshCookie(w, r)
	cookies = w.Result().Cookies()
	require.Len(t, cookies, 1)
	require.Empty(t, cookies[0].Value)
	require.Equal(t, -1, cookies[0].MaxAge)
}

func TestRefreshFromCookie(t *testing.T) {
	t.Parallel()

	h := newTestHandlers(false)

	r := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	require.Empty(t, h.refreshFromCookie(r))

	r.AddCookie(&http.Cookie{Name: "refresh_token", Value: "abc"})
	require.Equal(t, "abc", h.refreshFromCookie(r))
}

func TestDecodeStrict_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	var body struct {
		Email string `json:"email"`
	}

	r := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.c","extra":1}`))
	require.Error(t, decodeStrict(httptest.NewRecorder(), r, &body))

	r = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"a@b.c"}`))
	require.NoError(t, decodeStrict(httptest.NewRecorder(), r, &body))
	require.Equal(t, "a@b.c", body.Email)
}

func TestStateCookiePath(t *testing.T) {
	t.Parallel()

	require.Equal(t, "/auth/oauth", newTestHandlers(false).stateCookiePath())
}
