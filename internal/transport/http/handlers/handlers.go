package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/csrf"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/service"
)

const maxBodyBytes = 64 << 10

// SessionService - операции сервисного слоя, которые вызывает HTTP API.
type SessionService interface {
	RegisterUser(ctx context.Context, email, password string) (uuid.UUID, error)
	LoginUser(ctx context.Context, email, password, source string) (*models.TokenPair, error)
	RefreshSession(ctx context.Context, refreshToken, source string) (*models.TokenPair, error)
	Logout(ctx context.Context, req service.LogoutRequest) error
	Authenticate(ctx context.Context, accessToken string) (*models.Identity, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, current, next, source string) (*models.TokenPair, error)
	BeginOAuth(provider string) (string, string, error)
	LoginWithIdentity(ctx context.Context, provider, code, source string) (*models.TokenPair, error)
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error
	MarkEmailVerifiedByEmail(ctx context.Context, email string) (uuid.UUID, error)
}

// Options - параметры cookie и collaborator-путей.
type Options struct {
	BasePath string
	// RefreshCookie - имя HttpOnly cookie с refresh-токеном.
	RefreshCookie string
	CookieDomain  string
	// CookieSecure - всегда ставить Secure (иначе по TLS/X-Forwarded-Proto).
	CookieSecure  bool
	SameSite      http.SameSite
	OAuthRedirect string
	OAuthStateTTL time.Duration
	WebhookSecret string
}

// Handlers агрегирует зависимости обработчиков.
type Handlers struct {
	svc   SessionService
	guard *csrf.Guard
	opts  Options
}

// New создаёт обработчики сессионного API.
func New(svc SessionService, guard *csrf.Guard, opts Options) *Handlers {
	if opts.RefreshCookie == "" {
		opts.RefreshCookie = "refresh_token"
	}
	if opts.BasePath == "" {
		opts.BasePath = "/"
	}
	if opts.OAuthStateTTL <= 0 {
		opts.OAuthStateTTL = 10 * time.Minute
	}

	return &Handlers{svc: svc, guard: guard, opts: opts}
}

// writeJSON - единый ответ JSON. Ответы с токенами не кэшируются.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict - строгий JSON-декодер: запрещаем неизвестные поля.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(value)
}

// decodeOptional - как decodeStrict, но пустое тело допустимо.
func decodeOptional(w http.ResponseWriter, r *http.Request, value any) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	err := decodeStrict(w, r, value)
	if errors.Is(err, io.EOF) {
		return nil
	}

	return err
}

// secure сообщает, ставить ли флаг Secure на cookie.
func (h *Handlers) secure(r *http.Request) bool {
	return h.opts.CookieSecure || r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https"
}

// setRefreshCookie кладёт refresh-токен в HttpOnly cookie, видимую только под base path.
func (h *Handlers) setRefreshCookie(w http.ResponseWriter, r *http.Request, pair *models.TokenPair) {
	maxAge := int(time.Until(pair.RefreshExpiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.opts.RefreshCookie,
		Value:    pair.RefreshToken,
		Path:     h.opts.BasePath,
		Domain:   h.opts.CookieDomain,
		Expires:  pair.RefreshExpiresAt,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.secure(r),
		SameSite: h.opts.SameSite,
	})
}

func (h *Handlers) clearRefreshCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.opts.RefreshCookie,
		Value:    "",
		Path:     h.opts.BasePath,
		Domain:   h.opts.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure(r),
		SameSite: h.opts.SameSite,
	})
}

func (h *Handlers) refreshFromCookie(r *http.Request) string {
	c, err := r.Cookie(h.opts.RefreshCookie)
	if err != nil {
		return ""
	}

	return c.Value
}

// tokenResponse - тело ответа с парой токенов.
type tokenResponse struct {
	UserID          string    `json:"user_id"`
	AccessToken     string    `json:"access_token"`
	RefreshToken    string    `json:"refresh_token"`
	TokenType       string    `json:"token_type"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

func toTokenResponse(p *models.TokenPair) tokenResponse {
	return tokenResponse{
		UserID:          p.UserID.String(),
		AccessToken:     p.AccessToken,
		RefreshToken:    p.RefreshToken,
		TokenType:       "Bearer",
		AccessExpiresAt: p.AccessExpiresAt,
	}
}
