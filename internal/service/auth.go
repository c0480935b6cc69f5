package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/pribylovaa/go-auth-core/internal/events"
	"github.com/pribylovaa/go-auth-core/internal/lockout"
	"github.com/pribylovaa/go-auth-core/internal/metrics"
	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/pkg/log"
	"github.com/pribylovaa/go-auth-core/internal/pkg/redact"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

// RegisterUser создаёт пользователя с неподтверждённым email. Токены не выдаются:
// войти можно только после подтверждения email.
func (s *Service) RegisterUser(ctx context.Context, email, password string) (uuid.UUID, error) {
	const op = "service.auth.RegisterUser"

	normEmail, err := validateEmail(email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	if err := validatePassword(password); err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	_, err = s.storage.UserByEmail(ctx, normEmail)
	if err == nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	now := s.clock()
	user := &models.User{
		ID:           uuid.New(),
		Email:        normEmail,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.storage.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return uuid.Nil, fmt.Errorf("%s: %w", op, ErrEmailTaken)
		}

		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_registered",
		slog.String("user_id", user.ID.String()),
		slog.String("email", redact.Email(normEmail)),
	)

	return user.ID, nil
}

// LoginUser выполняет вход по email и паролю с адреса source.
//
// Порядок: проверка блокировок (идентичность и источник) → поиск и bcrypt
// (для неизвестного email сравнение идёт с хэшем-заглушкой) → учёт неудачи
// или сброс счётчика идентичности → запрет неподтверждённого email → выпуск пары.
func (s *Service) LoginUser(ctx context.Context, email, password, source string) (*models.TokenPair, error) {
	const op = "service.auth.LoginUser"

	lg := log.From(ctx)

	normEmail, err := validateEmail(email)
	if err != nil {
		normEmail = ""
	}

	keys := loginKeys(normEmail, source)
	if err := s.checkLocked(ctx, keys); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var user *models.User
	if normEmail != "" {
		user, err = s.storage.UserByEmail(ctx, normEmail)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			lg.Error("user_lookup_failed",
				slog.String("op", op),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}

	if !s.verifyPassword(user, password) {
		if err := s.recordLoginFailure(ctx, user, normEmail, source, keys); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := s.recordLoginSuccess(ctx, user); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !user.EmailVerified {
		s.metrics.Login("unverified")
		lg.Info("login_email_unverified", slog.String("user_id", user.ID.String()))
		return nil, fmt.Errorf("%s: %w", op, ErrEmailUnverified)
	}

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.Login(metrics.ResultSuccess)
	s.emit(ctx, events.New(events.LoginSucceeded, user.ID, user.Email, source, s.clock()))
	lg.Info("login_succeeded", slog.String("user_id", user.ID.String()))

	return pair, nil
}

// ChangePassword меняет пароль пользователя, предъявившего текущий пароль.
// token_version растёт, все refresh-токены отзываются, текущему устройству
// выдаётся новая пара.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next, source string) (*models.TokenPair, error) {
	const op = "service.auth.ChangePassword"

	user, err := s.storage.UserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	keys := loginKeys(user.Email, source)
	if err := s.checkLocked(ctx, keys); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.verifyPassword(user, current) {
		if err := s.recordLoginFailure(ctx, user, user.Email, source, keys); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if err := validatePassword(next); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hashPassword(next)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	version, err := s.storage.UpdatePassword(ctx, user.ID, hash, s.clock())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user.TokenVersion = version

	pair, err := s.issueTokenPair(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.emit(ctx, events.New(events.SessionRevokedAll, user.ID, user.Email, source, s.clock()).WithReason("password_changed"))
	log.From(ctx).Info("password_changed", slog.String("user_id", user.ID.String()))

	return pair, nil
}

// MarkEmailVerified отмечает email пользователя подтверждённым.
func (s *Service) MarkEmailVerified(ctx context.Context, userID uuid.UUID) error {
	const op = "service.auth.MarkEmailVerified"

	if err := s.storage.SetEmailVerified(ctx, userID, true); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	s.emit(ctx, events.New(events.EmailVerified, userID, "", "", s.clock()))
	log.From(ctx).Info("email_verified", slog.String("user_id", userID.String()))

	return nil
}

// MarkEmailVerifiedByEmail - то же по email; возвращает ID пользователя.
func (s *Service) MarkEmailVerifiedByEmail(ctx context.Context, email string) (uuid.UUID, error) {
	const op = "service.auth.MarkEmailVerifiedByEmail"

	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.MarkEmailVerified(ctx, user.ID); err != nil {
		return uuid.Nil, fmt.Errorf("%s: %w", op, err)
	}

	return user.ID, nil
}

// Unlock снимает блокировку идентичности (счётчик и отметку lockout_until).
func (s *Service) Unlock(ctx context.Context, email string) error {
	const op = "service.auth.Unlock"

	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.governor.RecordSuccess(ctx, lockout.IdentityKey(user.Email)); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.storage.SetLockoutUntil(ctx, user.ID, nil); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// UserByEmail возвращает пользователя для административных операций.
func (s *Service) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "service.auth.UserByEmail"

	user, err := s.userByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (s *Service) userByEmail(ctx context.Context, email string) (*models.User, error) {
	normEmail, err := validateEmail(email)
	if err != nil {
		return nil, ErrInvalidEmail
	}

	user, err := s.storage.UserByEmail(ctx, normEmail)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}

		return nil, err
	}

	return user, nil
}

// checkLocked возвращает *AccountLockedError, если заблокирован любой из ключей.
func (s *Service) checkLocked(ctx context.Context, keys []string) error {
	d, err := s.governor.Check(ctx, keys...)
	if err != nil {
		return err
	}

	if d.Locked {
		s.metrics.Login(metrics.ResultLocked)
		log.From(ctx).Info("login_rejected_locked",
			slog.Duration("retry_after", d.RetryAfter),
		)
		return &AccountLockedError{RetryAfter: d.RetryAfter}
	}

	return nil
}

// recordLoginFailure учитывает неудачу по всем ключам и отражает блокировку
// идентичности в lockout_until пользователя.
func (s *Service) recordLoginFailure(ctx context.Context, user *models.User, email, source string, keys []string) error {
	lg := log.From(ctx)

	d, err := s.governor.RecordFailure(ctx, keys...)
	if err != nil {
		return err
	}

	s.metrics.Login(metrics.ResultFailure)

	var userID uuid.UUID
	if user != nil {
		userID = user.ID
	}

	now := s.clock()
	s.emit(ctx, events.New(events.LoginFailed, userID, email, source, now))
	lg.Info("login_failed",
		slog.String("email", redact.Email(email)),
		slog.String("source", redact.IP(source)),
	)

	for _, key := range d.Tripped {
		dim := lockout.Dimension(key)
		s.metrics.Lockout(dim)
		s.emit(ctx, events.New(events.AccountLocked, userID, email, source, now).WithReason(dim))
		lg.Warn("account_locked",
			slog.String("dimension", dim),
			slog.Duration("lockout", s.governor.Policy().Lockout),
		)

		if dim == lockout.DimensionIdentity && user != nil {
			until := now.Add(s.governor.Policy().Lockout)
			if err := s.storage.SetLockoutUntil(ctx, user.ID, &until); err != nil {
				lg.Error("set_lockout_until_failed", slog.String("err", err.Error()))
			}
		}
	}

	return nil
}

// recordLoginSuccess сбрасывает только счётчик идентичности: бюджет адреса
// источника успешным входом не восстанавливается.
func (s *Service) recordLoginSuccess(ctx context.Context, user *models.User) error {
	if err := s.governor.RecordSuccess(ctx, lockout.IdentityKey(user.Email)); err != nil {
		return err
	}

	if user.LockoutUntil != nil {
		if err := s.storage.SetLockoutUntil(ctx, user.ID, nil); err != nil {
			return err
		}
		user.LockoutUntil = nil
	}

	return nil
}

func loginKeys(email, source string) []string {
	keys := make([]string, 0, 2)
	if email != "" {
		keys = append(keys, lockout.IdentityKey(email))
	}
	if source != "" {
		keys = append(keys, lockout.SourceKey(source))
	}

	return keys
}

// verifyPassword сравнивает пароль с хэшем. Для отсутствующего пользователя
// и аккаунта без пароля сравнение идёт с заглушкой, результат всегда false.
func (s *Service) verifyPassword(user *models.User, password string) bool {
	if user == nil || user.PasswordHash == "" || password == "" {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return false
	}

	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// hashPassword хэширует пароль с помощью bcrypt.
func (s *Service) hashPassword(password string) (string, error) {
	const op = "service.auth.hashPassword"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

// emit публикует событие; ошибка доставки не влияет на запрос.
func (s *Service) emit(ctx context.Context, ev events.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		log.From(ctx).Warn("event_publish_failed",
			slog.String("type", string(ev.Type)),
			slog.String("err", err.Error()),
		)
	}
}

// validateEmail проверяет базовый формат email и приводит его к нижнему регистру.
func validateEmail(raw string) (string, error) {
	const op = "service.auth.validateEmail"

	email := strings.TrimSpace(raw)
	if email == "" {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%s: %w", op, ErrInvalidEmail)
	}

	return strings.ToLower(email), nil
}

// validatePassword проверяет минимальные требования к паролю.
// Политика: длина >= 8 рун, хотя бы одна строчная, заглавная, цифра и спецсимвол.
func validatePassword(pw string) error {
	const op = "service.auth.validatePassword"

	if len(pw) == 0 {
		return fmt.Errorf("%s: %w", op, ErrEmptyPassword)
	}

	if len([]rune(pw)) < 8 {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	var hasLower, hasUpper, hasDigit, hasSpecial bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if !(hasLower && hasUpper && hasDigit && hasSpecial) {
		return fmt.Errorf("%s: %w", op, ErrWeakPassword)
	}

	return nil
}
