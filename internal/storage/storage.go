// Package storage задаёт контракты хранилищ auth-core: учётные данные,
// refresh-токены, denylist отозванных access-токенов и счётчики блокировок.
//
// Все операции чтения-изменения-записи в реализациях атомарны (один SQL-оператор,
// одна транзакция или Lua-скрипт), чтобы сервис можно было горизонтально реплицировать.
package storage

//go:generate mockgen -destination=../../mocks/mock_storage.go -package=mocks github.com/pribylovaa/go-auth-core/internal/storage Storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/models"
)

var (
	// ErrNotFound - запись не найдена (пользователь/токен/счётчик).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists - нарушение уникальности (email/refresh-token).
	ErrAlreadyExists = errors.New("already exists")
	// ErrExpired - сущность просрочена (refresh-token).
	ErrExpired = errors.New("expired")
	// ErrRevoked - сущность больше не активна (refresh-token отозван или уже обменян).
	ErrRevoked = errors.New("revoked")
)

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email.
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// SetEmailVerified выставляет признак подтверждённого email.
	SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error
	// UpdatePassword меняет хэш пароля, увеличивает token_version и отзывает все
	// активные refresh-токены атомарно; возвращает новую token_version.
	UpdatePassword(ctx context.Context, id uuid.UUID, hash string, now time.Time) (int64, error)
	// SetLockoutUntil сохраняет (или очищает при nil) отметку блокировки.
	SetLockoutUntil(ctx context.Context, id uuid.UUID, until *time.Time) error
	// TokenVersion возвращает текущую token_version пользователя.
	TokenVersion(ctx context.Context, id uuid.UUID) (int64, error)
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByHash находит refresh-токен по его хэшу.
	RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// RotateRefreshToken одной транзакцией переводит активный токен oldHash
	// в rotated и сохраняет next. Ровно один конкурентный вызов выигрывает;
	// остальные получают ErrRevoked. Просроченный токен - ErrExpired,
	// отсутствующий - ErrNotFound.
	RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error
	// RevokeRefreshToken отзывает активный токен:
	// (true, nil) - отозван сейчас; (false, nil) - уже не был активен; ErrNotFound - нет такого.
	RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error)
	// RevokeAllSessions атомарно увеличивает token_version и отзывает все активные
	// токены пользователя. Конкурентная ротация либо завершается до отзыва (и её
	// преемник отзывается), либо видит уже отозванный токен.
	RevokeAllSessions(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	// DeleteExpiredTokens удаляет все просроченные токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) error
}

// RevocationStorage - denylist идентификаторов access-токенов (jti).
// Запись живёт не дольше самого токена.
type RevocationStorage interface {
	// RevokeJTI вносит jti в denylist до expiresAt. Повторный вызов не ошибка.
	RevokeJTI(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error
	// IsJTIRevoked сообщает, отозван ли jti (просроченные записи не учитываются).
	IsJTIRevoked(ctx context.Context, jti string, now time.Time) (bool, error)
	// DeleteExpiredRevocations удаляет записи, чей срок истёк.
	DeleteExpiredRevocations(ctx context.Context, now time.Time) error
}

// LockoutStorage - атомарные счётчики неудачных попыток.
type LockoutStorage interface {
	// LockoutCounter возвращает текущее состояние счётчика или ErrNotFound.
	LockoutCounter(ctx context.Context, key string) (*models.LockoutCounter, error)
	// RecordFailure атомарно учитывает неудачу по политике и возвращает новое состояние.
	RecordFailure(ctx context.Context, key string, policy models.LockoutPolicy, now time.Time) (*models.LockoutCounter, error)
	// ResetLockout удаляет счётчик ключа.
	ResetLockout(ctx context.Context, key string) error
	// DeleteStaleLockouts удаляет счётчики, у которых закончились и окно, и блокировка.
	DeleteStaleLockouts(ctx context.Context, windowStartBefore, now time.Time) error
}

// Storage задаёт полный контракт основного хранилища.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	RevocationStorage
	LockoutStorage
	Close()
}
