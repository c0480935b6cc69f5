package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/events"
	"github.com/pribylovaa/go-auth-core/internal/pkg/log"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

// LogoutRequest - что предъявил клиент при выходе.
type LogoutRequest struct {
	AccessToken  string
	RefreshToken string
	AllDevices   bool
	Source       string
}

// Logout завершает сессию: отзывает предъявленный refresh-токен и вносит jti
// текущего access-токена в denylist. Отсутствующий или уже недействительный
// access-токен не ошибка. AllDevices дополнительно увеличивает token_version
// и отзывает все refresh-токены пользователя; для этого пользователь должен
// быть установлен хотя бы по одному из токенов.
func (s *Service) Logout(ctx context.Context, req LogoutRequest) error {
	const op = "service.revocation.Logout"

	lg := log.From(ctx)
	now := s.clock()

	var userID uuid.UUID

	if req.AccessToken != "" {
		id, err := s.VerifyAccessToken(ctx, req.AccessToken)
		switch {
		case err == nil:
			userID = id.UserID
			if err := s.RevokeAccessToken(ctx, id.JTI, id.UserID, id.ExpiresAt); err != nil {
				return fmt.Errorf("%s: %w", op, err)
			}
		case isTokenError(err):
			lg.Debug("logout_access_token_ignored", slog.String("err", err.Error()))
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if req.RefreshToken != "" {
		hash := hashRefresh(req.RefreshToken)

		token, err := s.storage.RefreshTokenByHash(ctx, hash)
		switch {
		case err == nil:
			if userID == uuid.Nil {
				userID = token.UserID
			}
			if _, err := s.storage.RevokeRefreshToken(ctx, hash, now); err != nil && !errors.Is(err, storage.ErrNotFound) {
				return fmt.Errorf("%s: %w", op, err)
			}
		case errors.Is(err, storage.ErrNotFound):
			lg.Debug("logout_refresh_token_unknown")
		default:
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	if req.AllDevices {
		if userID == uuid.Nil {
			return fmt.Errorf("%s: %w", op, ErrTokenMalformed)
		}

		if _, err := s.revokeAll(ctx, userID); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		s.emit(ctx, events.New(events.SessionRevokedAll, userID, "", req.Source, now).WithReason("logout_all_devices"))
		lg.Info("logout_all_devices", slog.String("user_id", userID.String()))
		return nil
	}

	if userID != uuid.Nil {
		s.emit(ctx, events.New(events.SessionLogout, userID, "", req.Source, now))
		lg.Info("logout", slog.String("user_id", userID.String()))
	}

	return nil
}

// RevokeUserSessions - административная инвалидация всех сессий пользователя.
// Возвращает новую token_version.
func (s *Service) RevokeUserSessions(ctx context.Context, userID uuid.UUID) (int64, error) {
	const op = "service.revocation.RevokeUserSessions"

	version, err := s.revokeAll(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return 0, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.emit(ctx, events.New(events.SessionRevokedAll, userID, "", "", s.clock()).WithReason("admin"))
	log.From(ctx).Info("sessions_revoked",
		slog.String("user_id", userID.String()),
		slog.Int64("token_version", version),
	)

	return version, nil
}

// RevokeAccessToken вносит jti в denylist до истечения самого токена.
// Уже истёкший токен не записывается: он и так недействителен.
func (s *Service) RevokeAccessToken(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error {
	const op = "service.revocation.RevokeAccessToken"

	if !s.clock().Before(expiresAt) {
		return nil
	}

	if err := s.storage.RevokeJTI(ctx, jti, userID, expiresAt); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// IsRevoked сообщает, находится ли jti в denylist.
func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	const op = "service.revocation.IsRevoked"

	revoked, err := s.storage.IsJTIRevoked(ctx, jti, s.clock())
	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return revoked, nil
}

// PruneExpired удаляет просроченные refresh-токены, записи denylist и
// устаревшие счётчики блокировок. Вызывается периодически.
func (s *Service) PruneExpired(ctx context.Context) error {
	const op = "service.revocation.PruneExpired"

	now := s.clock()
	var errs []error

	if err := s.storage.DeleteExpiredTokens(ctx, now); err != nil {
		errs = append(errs, err)
	}
	if err := s.storage.DeleteExpiredRevocations(ctx, now); err != nil {
		errs = append(errs, err)
	}
	if err := s.governor.Prune(ctx); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// isTokenError - ошибка относится к самому токену, а не к инфраструктуре.
func isTokenError(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrTokenMalformed) ||
		errors.Is(err, ErrStaleVersion)
}

// IsTokenError экспортирует классификацию для транспорта.
func IsTokenError(err error) bool {
	return isTokenError(err)
}
