package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-auth-core/internal/config"
	"github.com/pribylovaa/go-auth-core/internal/csrf"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/service"
	"github.com/pribylovaa/go-auth-core/internal/storage/memory"
	"github.com/pribylovaa/go-auth-core/internal/transport/http/handlers"
)

const (
	testPassword  = "Abcdef1!"
	webhookSecret = "hook-secret"
)

type stubProvider struct{}

func (stubProvider) AuthCodeURL(state string) string {
	return "https://idp.example.com/authorize?state=" + url.QueryEscape(state)
}

func (stubProvider) Exchange(_ context.Context, code string) (*models.VerifiedIdentity, error) {
	if code != "good-code" {
		return nil, errors.New("invalid_grant")
	}
	return &models.VerifiedIdentity{Provider: "stub", Subject: "42", Email: "sso@example.com", EmailVerified: true}, nil
}

type testEnv struct {
	t   *testing.T
	srv *httptest.Server
	svc *service.Service
	hc  *http.Client
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()

	svc := service.New(memory.New(), config.AuthConfig{
		JWTSecret:       "http-test-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
		Issuer:          "auth-core",
		Audience:        []string{"web"},
		BcryptCost:      4,
	}, models.LockoutPolicy{Threshold: 5, Window: 15 * time.Minute, Lockout: 15 * time.Minute})
	svc.RegisterProvider("stub", stubProvider{})

	guard, err := csrf.New(csrf.Options{
		Secret:      "csrf-secret",
		HeaderNames: []string{"X-CSRF-Token", "X-XSRF-Token"},
		CookieNames: []string{"csrf_token", "XSRF-TOKEN"},
		Exempt:      []string{"POST /auth/webhooks/email-verified"},
		TTL:         time.Hour,
		SameSite:    http.SameSiteLaxMode,
	})
	require.NoError(t, err)

	router := NewRouter(svc, guard, Options{
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		Timeout: 5 * time.Second,
		Handlers: handlers.Options{
			BasePath:      "/auth",
			RefreshCookie: "refresh_token",
			SameSite:      http.SameSiteStrictMode,
			WebhookSecret: webhookSecret,
		},
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testEnv{
		t:   t,
		srv: srv,
		svc: svc,
		hc: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type reqOpts struct {
	bearer  string
	csrf    string
	headers map[string]string
	raw     []byte
}

func (e *testEnv) do(method, path string, body any, o reqOpts) *http.Response {
	e.t.Helper()

	var rdr io.Reader
	switch {
	case o.raw != nil:
		rdr = bytes.NewReader(o.raw)
	case body != nil:
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(e.t, err)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if o.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+o.bearer)
	}
	if o.csrf != "" {
		req.Header.Set("X-CSRF-Token", o.csrf)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.hc.Do(req)
	require.NoError(e.t, err)
	e.t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type tokens struct {
	UserID          string    `json:"user_id"`
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	TokenType       string    `json:"token_type"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type apiErr struct {
	Error struct {
		Code      string `json:"code"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func (e *testEnv) csrfToken() string {
	e.t.Helper()

	resp := e.do(http.MethodGet, "/auth/csrf", nil, reqOpts{})
	require.Equal(e.t, http.StatusOK, resp.StatusCode)

	body := decode[struct {
		CSRFToken string `json:"csrf_token"`
	}](e.t, resp)
	require.NotEmpty(e.t, body.CSRFToken)
	require.Equal(e.t, body.CSRFToken, resp.Header.Get("X-CSRF-Token"))

	return body.CSRFToken
}

func (e *testEnv) seedUser(email string) {
	e.t.Helper()
	ctx := context.Background()

	_, err := e.svc.RegisterUser(ctx, email, testPassword)
	require.NoError(e.t, err)
	_, err = e.svc.MarkEmailVerifiedByEmail(ctx, email)
	require.NoError(e.t, err)
}

func (e *testEnv) login(email, password, csrfTok string) *http.Response {
	e.t.Helper()
	return e.do(http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, reqOpts{csrf: csrfTok})
}

func refreshCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == "refresh_token" {
			return c
		}
	}
	return nil
}

func TestSession_LoginMeRefreshLogout(t *testing.T) {
	env := newEnv(t)
	env.seedUser("alice@example.com")
	tok := env.csrfToken()

	resp := env.login("alice@example.com", testPassword, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	c := refreshCookie(resp)
	require.NotNil(t, c)
	require.True(t, c.HttpOnly)
	require.Equal(t, "/auth", c.Path)
	require.Equal(t, http.SameSiteStrictMode, c.SameSite)

	first := decode[tokens](t, resp)
	require.Equal(t, "Bearer", first.TokenType)
	require.Equal(t, c.Value, first.RefreshToken)

	resp = env.do(http.MethodGet, "/auth/me", nil, reqOpts{bearer: first.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
	}](t, resp)
	require.Equal(t, first.UserID, me.UserID)
	require.Equal(t, "alice@example.com", me.Email)

	// Refresh-токен берётся из cookie.
	resp = env.do(http.MethodPost, "/auth/refresh", nil, reqOpts{csrf: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[tokens](t, resp)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	resp = env.do(http.MethodPost, "/auth/logout", nil, reqOpts{bearer: second.AccessToken, csrf: tok})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	c = refreshCookie(resp)
	require.NotNil(t, c)
	require.Equal(t, -1, c.MaxAge)

	resp = env.do(http.MethodGet, "/auth/me", nil, reqOpts{bearer: second.AccessToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "unauthenticated", decode[apiErr](t, resp).Error.Code)
}

func TestSession_AliceReplay(t *testing.T) {
	env := newEnv(t)
	env.seedUser("alice@example.com")
	tok := env.csrfToken()

	resp := env.login("alice@example.com", testPassword, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	web := decode[tokens](t, resp)

	resp = env.login("alice@example.com", testPassword, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mobile := decode[tokens](t, resp)

	body := map[string]string{"refresh_token": web.RefreshToken}

	resp = env.do(http.MethodPost, "/auth/refresh", body, reqOpts{csrf: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := decode[tokens](t, resp)

	resp = env.do(http.MethodPost, "/auth/refresh", body, reqOpts{csrf: tok})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "invalid_credentials", decode[apiErr](t, resp).Error.Code)
	require.NotNil(t, refreshCookie(resp))

	for _, access := range []string{web.AccessToken, rotated.AccessToken, mobile.AccessToken} {
		resp = env.do(http.MethodGet, "/auth/me", nil, reqOpts{bearer: access})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestSession_BobLockout(t *testing.T) {
	env := newEnv(t)
	env.seedUser("bob@example.com")
	tok := env.csrfToken()

	for i := 0; i < 5; i++ {
		resp := env.login("bob@example.com", "Wrong-pass1", tok)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, "attempt %d", i+1)
		require.Equal(t, "invalid_credentials", decode[apiErr](t, resp).Error.Code)
	}

	resp := env.login("bob@example.com", testPassword, tok)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "account_locked", decode[apiErr](t, resp).Error.Code)

	ra, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	require.NoError(t, err)
	require.Greater(t, ra, 0)
	require.LessOrEqual(t, ra, int((15 * time.Minute).Seconds()))
}

func TestSession_CSRFRequiredEvenWithValidBearer(t *testing.T) {
	env := newEnv(t)
	env.seedUser("carol@example.com")
	tok := env.csrfToken()

	resp := env.login("carol@example.com", testPassword, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decode[tokens](t, resp)

	// Нет заголовка.
	resp = env.do(http.MethodPost, "/auth/logout", nil, reqOpts{bearer: pair.AccessToken})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "csrf_mismatch", decode[apiErr](t, resp).Error.Code)

	// Заголовок не совпадает с cookie.
	resp = env.do(http.MethodPost, "/auth/password",
		map[string]string{"current_password": testPassword, "new_password": "Newpass1!"},
		reqOpts{bearer: pair.AccessToken, csrf: "forged.value"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Невалидный Bearer не влияет на ответ CSRF-проверки.
	resp = env.do(http.MethodPost, "/auth/logout", nil, reqOpts{bearer: "garbage"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Сессия не пострадала.
	resp = env.do(http.MethodGet, "/auth/me", nil, reqOpts{bearer: pair.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSession_LogoutAllDevices(t *testing.T) {
	env := newEnv(t)
	env.seedUser("dave@example.com")
	tok := env.csrfToken()

	resp := env.login("dave@example.com", testPassword, tok)
	laptop := decode[tokens](t, resp)
	resp = env.login("dave@example.com", testPassword, tok)
	phone := decode[tokens](t, resp)

	resp = env.do(http.MethodPost, "/auth/logout", map[string]bool{"all_devices": true}, reqOpts{bearer: laptop.AccessToken, csrf: tok})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	for _, access := range []string{laptop.AccessToken, phone.AccessToken} {
		resp = env.do(http.MethodGet, "/auth/me", nil, reqOpts{bearer: access})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestSession_RegisterAndPassword(t *testing.T) {
	env := newEnv(t)
	tok := env.csrfToken()

	creds := map[string]string{"email": "erin@example.com", "password": testPassword}

	resp := env.do(http.MethodPost, "/auth/register", creds, reqOpts{csrf: tok})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(http.MethodPost, "/auth/register", creds, reqOpts{csrf: tok})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(http.MethodPost, "/auth/register", map[string]string{"email": "x@example.com", "password": "weak"}, reqOpts{csrf: tok})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(http.MethodPost, "/auth/register", map[string]any{"email": "y@example.com", "unknown": 1}, reqOpts{csrf: tok})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.login("erin@example.com", testPassword, tok)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Equal(t, "email_unverified", decode[apiErr](t, resp).Error.Code)

	_, err := env.svc.MarkEmailVerifiedByEmail(context.Background(), "erin@example.com")
	require.NoError(t, err)

	resp = env.login("erin@example.com", testPassword, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decode[tokens](t, resp)

	resp = env.do(http.MethodPost, "/auth/password",
		map[string]string{"current_password": testPassword, "new_password": "Newpass1!"},
		reqOpts{bearer: pair.AccessToken, csrf: tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	next := decode[tokens](t, resp)

	resp = env.do(http.MethodGet, "/auth/me", nil, reqOpts{bearer: pair.AccessToken})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = env.do(http.MethodGet, "/auth/me", nil, reqOpts{bearer: next.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebhook_EmailVerified(t *testing.T) {
	env := newEnv(t)

	_, err := env.svc.RegisterUser(context.Background(), "frank@example.com", testPassword)
	require.NoError(t, err)

	body := []byte(`{"email":"frank@example.com"}`)

	resp := env.do(http.MethodPost, "/auth/webhooks/email-verified", nil, reqOpts{
		raw:     body,
		headers: map[string]string{handlers.SignatureHeader: service.SignWebhook("wrong", body)},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// CSRF не требуется: пара метод+путь освобождена конфигурацией.
	resp = env.do(http.MethodPost, "/auth/webhooks/email-verified", nil, reqOpts{
		raw:     body,
		headers: map[string]string{handlers.SignatureHeader: service.SignWebhook(webhookSecret, body)},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.login("frank@example.com", testPassword, env.csrfToken())
	require.Equal(t, http.StatusOK, resp.StatusCode)

	unknown := []byte(`{"email":"ghost@example.com"}`)
	resp = env.do(http.MethodPost, "/auth/webhooks/email-verified", nil, reqOpts{
		raw:     unknown,
		headers: map[string]string{handlers.SignatureHeader: service.SignWebhook(webhookSecret, unknown)},
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOAuth_StartAndCallback(t *testing.T) {
	env := newEnv(t)

	resp := env.do(http.MethodGet, "/auth/oauth/stub/start", nil, reqOpts{})
	require.Equal(t, http.StatusFound, resp.StatusCode)

	loc, err := url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)

	var stateCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "oauth_state" {
			stateCookie = c
		}
	}
	require.NotNil(t, stateCookie)
	require.True(t, stateCookie.HttpOnly)
	require.Equal(t, "/auth/oauth", stateCookie.Path)

	resp = env.do(http.MethodGet, "/auth/oauth/stub/callback?code=good-code&state=forged", nil, reqOpts{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Неудачный callback очистил state: начинаем заново.
	resp = env.do(http.MethodGet, "/auth/oauth/stub/start", nil, reqOpts{})
	loc, err = url.Parse(resp.Header.Get("Location"))
	require.NoError(t, err)
	state = loc.Query().Get("state")

	resp = env.do(http.MethodGet, "/auth/oauth/stub/callback?code=good-code&state="+url.QueryEscape(state), nil, reqOpts{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	pair := decode[tokens](t, resp)
	require.NotNil(t, refreshCookie(resp))

	resp = env.do(http.MethodGet, "/auth/me", nil, reqOpts{bearer: pair.AccessToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(http.MethodGet, "/auth/oauth/unknown/start", nil, reqOpts{})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestErrors_CarryRequestID(t *testing.T) {
	env := newEnv(t)

	resp := env.do(http.MethodGet, "/auth/me", nil, reqOpts{headers: map[string]string{"X-Request-Id": "rid-42"}})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "rid-42", resp.Header.Get("X-Request-Id"))
	require.Equal(t, "rid-42", decode[apiErr](t, resp).Error.RequestID)
}
