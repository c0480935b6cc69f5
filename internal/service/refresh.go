package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/events"
	"github.com/pribylovaa/go-auth-core/internal/metrics"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/pkg/log"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

// RefreshSession обменивает refresh-токен на новую пару.
//
// Переходы: Active → Rotated (успех, ровно один конкурентный вызов);
// Rotated/Revoked или проигрыш гонки → обнаружение повторного использования:
// token_version растёт, все refresh-токены пользователя отзываются,
// возвращается ErrReuseDetected. Истёкший токен - ErrTokenExpired,
// неизвестный - ErrTokenMalformed.
func (s *Service) RefreshSession(ctx context.Context, refreshToken, source string) (*models.TokenPair, error) {
	const op = "service.refresh.RefreshSession"

	lg := log.From(ctx)

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
	}

	hash := hashRefresh(refreshToken)
	now := s.clock()

	current, err := s.storage.RefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.Refresh(metrics.ResultFailure)
			lg.Warn("refresh_lookup_not_found", slog.String("op", op))
			return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if current.Status != models.RefreshActive {
		return nil, fmt.Errorf("%s: %w", op, s.handleReuse(ctx, current, source))
	}

	if !now.Before(current.ExpiresAt) {
		s.metrics.Refresh("expired")
		lg.Info("refresh_expired", slog.String("user_id", current.UserID.String()))
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	user, err := s.storage.UserByID(ctx, current.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	plain, next, err := s.rotate(ctx, current, now)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrRevoked):
			// Конкурентный запрос обменял токен раньше нас.
			return nil, fmt.Errorf("%s: %w", op, s.handleReuse(ctx, current, source))
		case errors.Is(err, storage.ErrExpired):
			s.metrics.Refresh("expired")
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		case errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("%s: %w", op, ErrTokenMalformed)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	access, _, accessExp, err := s.mintAccessToken(ctx, user, now)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Refresh(metrics.ResultSuccess)
	s.emit(ctx, events.New(events.SessionRefreshed, user.ID, "", source, now))
	lg.Debug("refresh_rotated", slog.String("user_id", user.ID.String()))

	return &models.TokenPair{
		UserID:           user.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     plain,
		RefreshExpiresAt: next.ExpiresAt,
	}, nil
}

// rotate генерирует преемника в том же семействе и атомарно обменивает токен.
func (s *Service) rotate(ctx context.Context, current *models.RefreshToken, now time.Time) (string, *models.RefreshToken, error) {
	const op = "service.refresh.rotate"

	for attempt := 0; attempt < maxRefreshGenAttempts; attempt++ {
		plain, hash, err := newRefreshValue()
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", op, err)
		}

		next := &models.RefreshToken{
			TokenHash: hash,
			UserID:    current.UserID,
			FamilyID:  current.FamilyID,
			Status:    models.RefreshActive,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
		}

		err = s.storage.RotateRefreshToken(ctx, current.TokenHash, next)
		if err == nil {
			return plain, next, nil
		}
		if errors.Is(err, storage.ErrAlreadyExists) {
			continue
		}

		return "", nil, fmt.Errorf("%s: %w", op, err)
	}

	return "", nil, fmt.Errorf("%s: %w", op, ErrRefreshTokenCollision)
}

// handleReuse инвалидирует все сессии владельца повторно предъявленного токена.
func (s *Service) handleReuse(ctx context.Context, token *models.RefreshToken, source string) error {
	const op = "service.refresh.handleReuse"

	lg := log.From(ctx)
	lg.Warn("refresh_reuse_detected",
		slog.String("user_id", token.UserID.String()),
		slog.String("family_id", token.FamilyID.String()),
		slog.String("status", string(token.Status)),
	)

	if _, err := s.revokeAll(ctx, token.UserID); err != nil {
		lg.Error("reuse_revoke_failed",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Refresh(metrics.ResultReuse)
	s.emit(ctx, events.New(events.SessionReuseDetected, token.UserID, "", source, s.clock()).
		WithReason(string(token.Status)))

	return ErrReuseDetected
}

// revokeAll увеличивает token_version и отзывает все refresh-токены пользователя.
func (s *Service) revokeAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	return s.storage.RevokeAllSessions(ctx, userID, s.clock())
}
