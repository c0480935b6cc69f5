// service содержит бизнес-логику auth-core:
// вход и регистрацию, выпуск и проверку токенов, ротацию refresh-токенов
// с обнаружением повторного использования, отзыв сессий и интеграцию
// с внешним провайдером идентичности.
//
// Основные аспекты:
//   - Service не хранит состояние запроса; всё разделяемое состояние
//     (denylist, цепочки refresh-токенов, счётчики блокировок) живёт в
//     storage.Storage, поэтому экземпляры сервиса можно реплицировать.
//   - Ошибки-сентинелы ниже различимы внутри сервиса (логи, метрики),
//     транспорт схлопывает ошибки токенов в один ответ 401.
package service

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-auth-core/internal/config"
	"github.com/pribylovaa/go-auth-core/internal/events"
	"github.com/pribylovaa/go-auth-core/internal/lockout"
	"github.com/pribylovaa/go-auth-core/internal/metrics"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

var (
	// ErrInvalidCredentials - пара логин/пароль неверна или пользователь не найден.
	// Транспорт: HTTP 401 invalid_credentials.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked - идентичность или адрес источника временно заблокированы.
	// Конкретная ошибка - *AccountLockedError с RetryAfter. Транспорт: HTTP 429.
	ErrAccountLocked = errors.New("account locked")

	// ErrEmailUnverified - вход с неподтверждённым email запрещён. Транспорт: HTTP 403.
	ErrEmailUnverified = errors.New("email is not verified")

	// ErrTokenExpired - срок действия токена истёк.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked - jti access-токена в denylist.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrTokenMalformed - токен не разбирается, подпись/алгоритм/issuer/audience
	// неверны или токен неизвестен хранилищу.
	ErrTokenMalformed = errors.New("token malformed")

	// ErrStaleVersion - token_version в токене не совпадает с текущей версией пользователя.
	ErrStaleVersion = errors.New("token version is stale")

	// ErrReuseDetected - предъявлен уже обменянный или отозванный refresh-токен.
	// Все сессии пользователя инвалидированы. Транспорт: HTTP 401 invalid_credentials.
	ErrReuseDetected = errors.New("refresh token reuse detected")

	// ErrEmailTaken - email уже занят. Транспорт: HTTP 409.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail - email некорректен. Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword - пароль не удовлетворяет политике сложности. Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrEmptyPassword - пароль пустой. Транспорт: HTTP 400.
	ErrEmptyPassword = errors.New("password is empty")

	// ErrRefreshTokenCollision - исчерпаны попытки сгенерировать уникальный refresh-токен.
	ErrRefreshTokenCollision = errors.New("refresh token collision")

	// ErrUserNotFound - пользователь не найден (административные операции). Транспорт: HTTP 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrUnknownProvider - провайдер идентичности не зарегистрирован. Транспорт: HTTP 404.
	ErrUnknownProvider = errors.New("unknown identity provider")

	// ErrInvalidState - state OAuth-callback не совпадает с выданным. Транспорт: HTTP 400.
	ErrInvalidState = errors.New("invalid oauth state")

	// ErrInvalidSignature - подпись вебхука неверна. Транспорт: HTTP 401.
	ErrInvalidSignature = errors.New("invalid signature")
)

// AccountLockedError несёт подсказку, через сколько можно повторить попытку.
type AccountLockedError struct {
	RetryAfter time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *AccountLockedError) Unwrap() error { return ErrAccountLocked }

// Service описывает бизнес-логику auth-core.
type Service struct {
	storage   storage.Storage
	cfg       config.AuthConfig
	governor  *lockout.Governor
	events    events.Publisher
	metrics   *metrics.Metrics
	providers map[string]IdentityProvider
	now       func() time.Time
	dummyHash []byte
}

// New создаёт новый экземпляр Service. Счётчики блокировок берутся из того же хранилища.
func New(st storage.Storage, cfg config.AuthConfig, policy models.LockoutPolicy) *Service {
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	// Хэш-заглушка: вход с неизвестным email тратит столько же времени, сколько с известным.
	dummy, err := bcrypt.GenerateFromPassword([]byte("auth-core-dummy-password"), cfg.BcryptCost)
	if err != nil {
		panic(fmt.Sprintf("service.New: dummy hash: %v", err))
	}

	return &Service{
		storage:   st,
		cfg:       cfg,
		governor:  lockout.New(st, policy),
		events:    events.Nop{},
		providers: make(map[string]IdentityProvider),
		now:       time.Now,
		dummyHash: dummy,
	}
}

// SetEvents устанавливает приёмник событий безопасности.
func (s *Service) SetEvents(p events.Publisher) {
	if p == nil {
		p = events.Nop{}
	}
	s.events = p
}

// SetMetrics устанавливает счётчики Prometheus (nil - без метрик).
func (s *Service) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// SetClock подменяет источник времени сервиса и Governor (тесты).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.governor.SetClock(now)
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}
