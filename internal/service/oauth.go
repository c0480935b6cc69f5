package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/events"
	"github.com/pribylovaa/go-auth-core/internal/metrics"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/pkg/log"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

// IdentityProvider - внешний провайдер идентичности (OAuth/OIDC).
// Детали обмена кода на токены провайдера остаются на его стороне.
type IdentityProvider interface {
	// AuthCodeURL возвращает адрес, на который перенаправляется браузер.
	AuthCodeURL(state string) string
	// Exchange обменивает код авторизации на подтверждённую личность.
	Exchange(ctx context.Context, code string) (*models.VerifiedIdentity, error)
}

// RegisterProvider регистрирует провайдера под именем name. Вызывается при старте.
func (s *Service) RegisterProvider(name string, p IdentityProvider) {
	s.providers[strings.ToLower(name)] = p
}

// Provider возвращает зарегистрированного провайдера.
func (s *Service) Provider(name string) (IdentityProvider, error) {
	p, ok := s.providers[strings.ToLower(name)]
	if !ok {
		return nil, ErrUnknownProvider
	}

	return p, nil
}

// BeginOAuth возвращает адрес авторизации и случайный state,
// который транспорт сохраняет в cookie и сверяет в callback.
func (s *Service) BeginOAuth(provider string) (string, string, error) {
	const op = "service.oauth.BeginOAuth"

	p, err := s.Provider(provider)
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}

	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", fmt.Errorf("%s: %w", op, err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	return p.AuthCodeURL(state), state, nil
}

// CheckState сравнивает state из callback с выданным (постоянное время).
func CheckState(expected, got string) error {
	if expected == "" || got == "" || !hmac.Equal([]byte(expected), []byte(got)) {
		return ErrInvalidState
	}

	return nil
}

// LoginWithIdentity завершает вход через внешнего провайдера.
//
// Проверка пароля пропускается, но Governor и выпуск токенов - те же, что у
// LoginUser. Неудачный обмен кода считается неудачей адреса источника.
// Личность без подтверждённого email отклоняется. Новый пользователь
// создаётся без пароля и с подтверждённым email.
func (s *Service) LoginWithIdentity(ctx context.Context, provider, code, source string) (*models.TokenPair, error) {
	const op = "service.oauth.LoginWithIdentity"

	lg := log.From(ctx)

	p, err := s.Provider(provider)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	srcKeys := loginKeys("", source)
	if err := s.checkLocked(ctx, srcKeys); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	identity, err := p.Exchange(ctx, code)
	if err != nil {
		lg.Info("oauth_exchange_failed",
			slog.String("provider", provider),
			slog.String("err", err.Error()),
		)
		if err := s.recordLoginFailure(ctx, nil, "", source, srcKeys); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !identity.EmailVerified {
		s.metrics.Login("unverified")
		lg.Info("oauth_email_unverified", slog.String("provider", provider))
		return nil, fmt.Errorf("%s: %w", op, ErrEmailUnverified)
	}

	email, err := validateEmail(identity.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := s.checkLocked(ctx, loginKeys(email, source)); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.userForIdentity(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.recordLoginSuccess(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Login(metrics.ResultSuccess)
	s.emit(ctx, events.New(events.LoginSucceeded, user.ID, user.Email, source, s.clock()).WithReason("oauth:"+strings.ToLower(provider)))
	lg.Info("oauth_login_succeeded",
		slog.String("provider", provider),
		slog.String("user_id", user.ID.String()),
	)

	return pair, nil
}

// userForIdentity находит пользователя по email или создаёт нового.
// Существующему пользователю email помечается подтверждённым.
func (s *Service) userForIdentity(ctx context.Context, email string) (*models.User, error) {
	user, err := s.storage.UserByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.EmailVerified {
			if err := s.storage.SetEmailVerified(ctx, user.ID, true); err != nil {
				return nil, err
			}
			user.EmailVerified = true
		}

		return user, nil
	case !errors.Is(err, storage.ErrNotFound):
		return nil, err
	}

	now := s.clock()
	user = &models.User{
		ID:            uuid.New(),
		Email:         email,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return nil, err
		}

		// Параллельный callback успел создать пользователя.
		return s.storage.UserByEmail(ctx, email)
	}

	return user, nil
}

// CheckWebhookSignature проверяет HMAC-SHA256 тела вебхука (hex, допускается
// префикс "sha256="). Пустой секрет отклоняет любой запрос.
func CheckWebhookSignature(secret string, body []byte, signature string) error {
	if secret == "" {
		return ErrInvalidSignature
	}

	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrInvalidSignature
	}

	return nil
}

// SignWebhook вычисляет подпись тела в формате заголовка X-Webhook-Signature.
func SignWebhook(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

