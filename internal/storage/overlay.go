package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/models"
)

// Overlay - основное хранилище, у которого denylist и счётчики блокировок
// вынесены в отдельный бэкенд (например, Redis).
type Overlay struct {
	Storage
	Revocations RevocationStorage
	Lockouts    LockoutStorage
}

// WithOverlay подменяет denylist и/или счётчики блокировок; nil оставляет base.
func WithOverlay(base Storage, rev RevocationStorage, lock LockoutStorage) *Overlay {
	if rev == nil {
		rev = base
	}
	if lock == nil {
		lock = base
	}

	return &Overlay{Storage: base, Revocations: rev, Lockouts: lock}
}

func (o *Overlay) RevokeJTI(ctx context.Context, jti string, userID uuid.UUID, expiresAt time.Time) error {
	return o.Revocations.RevokeJTI(ctx, jti, userID, expiresAt)
}

func (o *Overlay) IsJTIRevoked(ctx context.Context, jti string, now time.Time) (bool, error) {
	return o.Revocations.IsJTIRevoked(ctx, jti, now)
}

func (o *Overlay) DeleteExpiredRevocations(ctx context.Context, now time.Time) error {
	return o.Revocations.DeleteExpiredRevocations(ctx, now)
}

func (o *Overlay) LockoutCounter(ctx context.Context, key string) (*models.LockoutCounter, error) {
	return o.Lockouts.LockoutCounter(ctx, key)
}

func (o *Overlay) RecordFailure(ctx context.Context, key string, policy models.LockoutPolicy, now time.Time) (*models.LockoutCounter, error) {
	return o.Lockouts.RecordFailure(ctx, key, policy, now)
}

func (o *Overlay) ResetLockout(ctx context.Context, key string) error {
	return o.Lockouts.ResetLockout(ctx, key)
}

func (o *Overlay) DeleteStaleLockouts(ctx context.Context, windowStartBefore, now time.Time) error {
	return o.Lockouts.DeleteStaleLockouts(ctx, windowStartBefore, now)
}

var _ Storage = (*Overlay)(nil)
