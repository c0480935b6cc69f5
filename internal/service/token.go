package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/pkg/log"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

const (
	refreshTokenBytes     = 32
	maxRefreshGenAttempts = 5
)

type accessClaims struct {
	UserID  string `json:"uid"`
	Email   string `json:"email"`
	Version int64  `json:"ver"`
	jwt.RegisteredClaims
}

// mintAccessToken выпускает access-токен с новым jti и текущей token_version пользователя.
// exp усечён до секунд, как его хранит JWT.
func (s *Service) mintAccessToken(ctx context.Context, user *models.User, now time.Time) (string, string, time.Time, error) {
	const op = "service.token.mintAccessToken"

	jti := uuid.NewString()
	expiresAt := now.Add(s.cfg.AccessTokenTTL).Truncate(time.Second)

	claims := accessClaims{
		UserID:  user.ID.String(),
		Email:   user.Email,
		Version: user.TokenVersion,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID.String(),
			Audience:  jwt.ClaimStrings(s.cfg.Audience),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		log.From(ctx).Error("access_token_sign_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return "", "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, jti, expiresAt, nil
}

// parseAccessToken проверяет подпись, алгоритм, issuer, audience и срок (exp - без leeway).
func (s *Service) parseAccessToken(tokenStr string) (*accessClaims, error) {
	const op = "service.token.parseAccessToken"

	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
			}

			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(s.cfg.Leeway),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithAudience(s.cfg.Audience...),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
	}

	if !token.Valid || claims.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
	}

	// Leeway смягчает только nbf/iat: запись denylist живёт ровно до exp,
	// поэтому сам exp проверяется строго.
	if !s.clock().Before(claims.ExpiresAt.Time) {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	return claims, nil
}

// VerifyAccessToken проверяет access-токен: подпись и срок, затем denylist по jti,
// затем совпадение token_version. Первая же неудача окончательна.
func (s *Service) VerifyAccessToken(ctx context.Context, tokenStr string) (*models.Identity, error) {
	const op = "service.token.VerifyAccessToken"

	lg := log.From(ctx)

	claims, err := s.parseAccessToken(tokenStr)
	if err != nil {
		s.rejectToken(ctx, err)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		s.rejectToken(ctx, ErrTokenMalformed)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
	}

	revoked, err := s.storage.IsJTIRevoked(ctx, claims.ID, s.clock())
	if err != nil {
		lg.Error("revocation_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if revoked {
		s.rejectToken(ctx, ErrTokenRevoked)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenRevoked)
	}

	version, err := s.storage.TokenVersion(ctx, uid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.rejectToken(ctx, ErrTokenMalformed)
			return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
		}

		lg.Error("token_version_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if version != claims.Version {
		s.rejectToken(ctx, ErrStaleVersion)
		return nil, fmt.Errorf("%s: %w", op, ErrStaleVersion)
	}

	id := &models.Identity{
		UserID:       uid,
		Email:        claims.Email,
		TokenVersion: claims.Version,
		JTI:          claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time.UTC(),
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time.UTC()
	}

	return id, nil
}

// Authenticate - точка входа сессионного API для запросов с Bearer-токеном.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*models.Identity, error) {
	const op = "service.token.Authenticate"

	if accessToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
	}

	id, err := s.VerifyAccessToken(ctx, accessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// rejectToken учитывает отказ в метриках; причина пишется только в лог.
func (s *Service) rejectToken(ctx context.Context, err error) {
	reason := "malformed"
	switch {
	case errors.Is(err, ErrTokenExpired):
		reason = "expired"
	case errors.Is(err, ErrTokenRevoked):
		reason = "revoked"
	case errors.Is(err, ErrStaleVersion):
		reason = "stale_version"
	}

	s.metrics.TokenRejected(reason)
	log.From(ctx).Debug("access_token_rejected", slog.String("reason", reason))
}

// newRefreshValue генерирует открытое значение refresh-токена и его хэш.
func newRefreshValue() (plain, hash string, err error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}

	plain = base64.RawURLEncoding.EncodeToString(b)
	return plain, hashRefresh(plain), nil
}

// hashRefresh - sha256 открытого значения в base64url.
func hashRefresh(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// mintRefreshToken создаёт и сохраняет refresh-токен в семействе family.
func (s *Service) mintRefreshToken(ctx context.Context, userID, family uuid.UUID, now time.Time) (string, time.Time, error) {
	const op = "service.token.mintRefreshToken"

	lg := log.From(ctx)

	for attempt := 0; attempt < maxRefreshGenAttempts; attempt++ {
		plain, hash, err := newRefreshValue()
		if err != nil {
			lg.Error("refresh_rand_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
		}

		token := &models.RefreshToken{
			TokenHash: hash,
			UserID:    userID,
			FamilyID:  family,
			Status:    models.RefreshActive,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		}

		if err := s.storage.SaveRefreshToken(ctx, token); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				// Редкая коллизия - пробуем сгенерировать заново.
				continue
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
		}

		return plain, token.ExpiresAt, nil
	}

	lg.Error("refresh_collision_exceeded", slog.String("op", op))

	return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// issueTokenPair выпускает access-токен и refresh-токен нового семейства.
func (s *Service) issueTokenPair(ctx context.Context, user *models.User) (*models.TokenPair, error) {
	const op = "service.token.issueTokenPair"

	now := s.clock()

	access, _, accessExp, err := s.mintAccessToken(ctx, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	refresh, refreshExp, err := s.mintRefreshToken(ctx, user.ID, uuid.New(), now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &models.TokenPair{
		UserID:           user.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
