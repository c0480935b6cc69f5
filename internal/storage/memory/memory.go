// Package memory - потокобезопасная реализация storage.Storage в памяти процесса.
// Подходит для разработки и тестов; состояние не переживает рестарт.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

type revocation struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// Storage хранит все сущности под одним мьютексом: каждая операция
// чтения-изменения-записи выполняется целиком под блокировкой.
type Storage struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*models.User
	byEmail  map[string]uuid.UUID
	tokens   map[string]*models.RefreshToken
	revoked  map[string]revocation
	counters map[string]*models.LockoutCounter
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		users:    make(map[uuid.UUID]*models.User),
		byEmail:  make(map[string]uuid.UUID),
		tokens:   make(map[string]*models.RefreshToken),
		revoked:  make(map[string]revocation),
		counters: make(map[string]*models.LockoutCounter),
	}
}

// Close ничего не освобождает.
func (s *Storage) Close() {}

func emailKey(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return storage.ErrAlreadyExists
	}
	if _, ok := s.byEmail[emailKey(user.Email)]; ok {
		return storage.ErrAlreadyExists
	}

	u := *user
	s.users[u.ID] = &u
	s.byEmail[emailKey(u.Email)] = u.ID

	return nil
}

func (s *Storage) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, storage.ErrNotFound
	}

	u := *s.users[id]
	return &u, nil
}

func (s *Storage) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *u
	return &cp, nil
}

func (s *Storage) SetEmailVerified(ctx context.Context, id uuid.UUID, verified bool) error {
	return s.updateUser(ctx, id, func(u *models.User) {
		u.EmailVerified = verified
	})
}

// UpdatePassword меняет хэш, увеличивает token_version и отзывает refresh-токены
// под одной блокировкой.
func (s *Storage) UpdatePassword(ctx context.Context, id uuid.UUID, hash string, now time.Time) (int64, error) {
	return s.revokeSessionsLocked(ctx, id, now, func(u *models.User) {
		u.PasswordHash = hash
	})
}

func (s *Storage) SetLockoutUntil(ctx context.Context, id uuid.UUID, until *time.Time) error {
	return s.updateUser(ctx, id, func(u *models.User) {
		if until == nil {
			u.LockoutUntil = nil
			return
		}
		t := *until
		u.LockoutUntil = &t
	})
}

func (s *Storage) TokenVersion(ctx context.Context, id uuid.UUID) (int64, error) {
	u, err := s.UserByID(ctx, id)
	if err != nil {
		return 0, err
	}

	return u.TokenVersion, nil
}

func (s *Storage) updateUser(ctx context.Context, id uuid.UUID, fn func(u *models.User)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return storage.ErrNotFound
	}

	fn(u)
	u.UpdatedAt = time.Now().UTC()

	return nil
}

func (s *Storage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.TokenHash]; ok {
		return storage.ErrAlreadyExists
	}

	t := *token
	s.tokens[t.TokenHash] = &t

	return nil
}

func (s *Storage) RefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *t
	return &cp, nil
}

func (s *Storage) RotateRefreshToken(ctx context.Context, oldHash string, next *models.RefreshToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.tokens[oldHash]
	if !ok {
		return storage.ErrNotFound
	}

	now := next.CreatedAt
	switch {
	case old.Status != models.RefreshActive:
		return storage.ErrRevoked
	case !now.Before(old.ExpiresAt):
		return storage.ErrExpired
	}

	if _, ok := s.tokens[next.TokenHash]; ok {
		return storage.ErrAlreadyExists
	}

	old.Status = models.RefreshRotated
	old.ReplacedBy = next.TokenHash
	old.RevokedAt = &now

	t := *next
	s.tokens[t.TokenHash] = &t

	return nil
}

func (s *Storage) RevokeRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[hash]
	if !ok {
		return false, storage.ErrNotFound
	}

	if t.Status != models.RefreshActive {
		return false, nil
	}

	t.Status = models.RefreshRevoked
	t.RevokedAt = &now

	return true, nil
}

// RevokeAllSessions увеличивает token_version и отзывает все активные
// refresh-токены пользователя под одной блокировкой.
func (s *Storage) RevokeAllSessions(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	return s.revokeSessionsLocked(ctx, userID, now, nil)
}

func (s *Storage) revokeSessionsLocked(ctx context.Context, userID uuid.UUID, now time.Time, fn func(u *models.User)) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return 0, storage.ErrNotFound
	}

	if fn != nil {
		fn(u)
	}
	u.TokenVersion++
	u.UpdatedAt = now

	for _, t := range s.tokens {
		if t.UserID == userID && t.Status == models.RefreshActive {
			t.Status = models.RefreshRevoked
			at := now
			t.RevokedAt = &at
		}
	}

	return u.TokenVersion, nil
}

func (s *Storage) DeleteExpiredTokens(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for h, t := range s.tokens {
		if !now.Before(t.ExpiresAt) {
			delete(s.tokens, h)
		}
	}

	return nil
}

func (s *Storage) RevokeJTI(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.revoked[jti]; ok && cur.expiresAt.After(expiresAt) {
		return nil
	}
	s.revoked[jti] = revocation{userID: userID, expiresAt: expiresAt}

	return nil
}

func (s *Storage) IsJTIRevoked(ctx context.Context, jti string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.revoked[jti]
	return ok && now.Before(r.expiresAt), nil
}

func (s *Storage) DeleteExpiredRevocations(ctx context.Context, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for jti, r := range s.revoked {
		if !now.Before(r.expiresAt) {
			delete(s.revoked, jti)
		}
	}

	return nil
}

func (s *Storage) LockoutCounter(ctx context.Context, key string) (*models.LockoutCounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *c
	return &cp, nil
}

func (s *Storage) RecordFailure(ctx context.Context, key string, policy models.LockoutPolicy, now time.Time) (*models.LockoutCounter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &models.LockoutCounter{Key: key}
		s.counters[key] = c
	}

	if c.Attempts == 0 || now.Sub(c.WindowStart) >= policy.Window {
		c.Attempts = 1
		c.WindowStart = now
	} else {
		c.Attempts++
	}

	if c.Attempts >= policy.Threshold {
		c.LockedUntil = now.Add(policy.Lockout)
	}

	cp := *c
	return &cp, nil
}

func (s *Storage) ResetLockout(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.counters, key)
	return nil
}

func (s *Storage) DeleteStaleLockouts(ctx context.Context, windowStartBefore, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, c := range s.counters {
		if !c.WindowStart.After(windowStartBefore) && !c.Locked(now) {
			delete(s.counters, k)
		}
	}

	return nil
}

var _ storage.Storage = (*Storage)(nil)
