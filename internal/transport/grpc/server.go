// Package grpc - внутренний gRPC API auth-core для соседних сервисов
// (проверка токенов, административный отзыв сессий, подтверждение email).
//
// Ошибки сервиса транслируются в коды gRPC:
//   - ErrUserNotFound -> codes.NotFound;
//   - отмена и дедлайн контекста -> codes.Canceled/codes.DeadlineExceeded;
//   - иные ошибки -> codes.Internal с безопасным сообщением.
//
// ValidateToken на невалидный токен отвечает {valid:false}, а не ошибкой RPC.
package grpc

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	authcorev1 "github.com/pribylovaa/go-auth-core/gen/go/authcore"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/pkg/log"
	"github.com/pribylovaa/go-auth-core/internal/service"
)

// SessionAPI - часть сервисного слоя, доступная внутренним вызывающим.
type SessionAPI interface {
	VerifyAccessToken(ctx context.Context, token string) (*models.Identity, error)
	RevokeUserSessions(ctx context.Context, userID uuid.UUID) (int64, error)
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error
}

// Server - gRPC-адаптер над сервисным слоем.
type Server struct {
	authcorev1.UnimplementedSessionServiceServer
	svc SessionAPI
}

// NewServer создаёт gRPC-сервер поверх сервисного слоя.
func NewServer(svc SessionAPI) *Server {
	return &Server{svc: svc}
}

// ValidateToken проверяет access-токен. Невалидный, истёкший, отозванный и
// устаревший по token_version токен - это Valid=false, а не ошибка RPC.
func (s *Server) ValidateToken(ctx context.Context, req *authcorev1.ValidateTokenRequest) (*authcorev1.ValidateTokenResponse, error) {
	if req.GetAccessToken() == "" {
		return &authcorev1.ValidateTokenResponse{Valid: false}, nil
	}

	id, err := s.svc.VerifyAccessToken(ctx, req.GetAccessToken())
	if err != nil {
		if service.IsTokenError(err) {
			return &authcorev1.ValidateTokenResponse{Valid: false}, nil
		}

		return nil, toStatus(ctx, err)
	}

	return &authcorev1.ValidateTokenResponse{
		Valid:        true,
		UserId:       id.UserID.String(),
		Email:        id.Email,
		TokenVersion: id.TokenVersion,
		ExpiresAt:    id.ExpiresAt.Unix(),
	}, nil
}

// RevokeUserSessions - административный отзыв всех сессий пользователя.
func (s *Server) RevokeUserSessions(ctx context.Context, req *authcorev1.RevokeUserSessionsRequest) (*authcorev1.RevokeUserSessionsResponse, error) {
	userID, err := uuid.Parse(req.GetUserId())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid user_id")
	}

	version, err := s.svc.RevokeUserSessions(ctx, userID)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return &authcorev1.RevokeUserSessionsResponse{TokenVersion: version}, nil
}

// MarkEmailVerified отмечает email пользователя подтверждённым.
func (s *Server) MarkEmailVerified(ctx context.Context, req *authcorev1.MarkEmailVerifiedRequest) (*authcorev1.MarkEmailVerifiedResponse, error) {
	userID, err := uuid.Parse(req.GetUserId())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "invalid user_id")
	}

	if err := s.svc.MarkEmailVerified(ctx, userID); err != nil {
		return nil, toStatus(ctx, err)
	}

	return &authcorev1.MarkEmailVerifiedResponse{}, nil
}

// toStatus переводит ошибки сервисного слоя в коды gRPC.
func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return status.Error(codes.NotFound, "user not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		log.From(ctx).Error("grpc_internal_error", slog.String("err", err.Error()))
		return status.Error(codes.Internal, "internal error")
	}
}
