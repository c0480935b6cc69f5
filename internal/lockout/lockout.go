// Package lockout ограничивает перебор паролей: считает неудачные попытки
// отдельно по идентичности (email) и по адресу источника и временно блокирует
// ключи, превысившие порог в фиксированном окне.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pribylovaa/go-auth-core/internal/models"
	"github.com/pribylovaa/go-auth-core/internal/storage"
)

const (
	identityPrefix = "id:"
	sourcePrefix   = "ip:"

	// DimensionIdentity и DimensionSource - измерения для метрик блокировок.
	DimensionIdentity = "identity"
	DimensionSource   = "source"
)

// IdentityKey возвращает ключ счётчика для email.
func IdentityKey(email string) string {
	return identityPrefix + strings.ToLower(strings.TrimSpace(email))
}

// SourceKey возвращает ключ счётчика для адреса источника.
func SourceKey(addr string) string {
	return sourcePrefix + addr
}

// Dimension определяет измерение ключа.
func Dimension(key string) string {
	if strings.HasPrefix(key, sourcePrefix) {
		return DimensionSource
	}

	return DimensionIdentity
}

// Decision - итог проверки или учёта неудачи.
type Decision struct {
	// Locked - хотя бы один из ключей заблокирован.
	Locked bool
	// RetryAfter - максимальное оставшееся время блокировки среди ключей.
	RetryAfter time.Duration
	// Tripped - ключи, достигшие порога именно этой неудачей.
	Tripped []string
	// LockedUntil - момент окончания самой долгой блокировки.
	LockedUntil time.Time
}

// Governor применяет политику блокировок поверх атомарных счётчиков хранилища.
type Governor struct {
	store  storage.LockoutStorage
	policy models.LockoutPolicy
	now    func() time.Time
}

// New создаёт Governor. Пустые ключи в вызовах игнорируются.
func New(store storage.LockoutStorage, policy models.LockoutPolicy) *Governor {
	return &Governor{store: store, policy: policy, now: time.Now}
}

// SetClock подменяет источник времени (тесты).
func (g *Governor) SetClock(now func() time.Time) {
	g.now = now
}

// Policy возвращает действующую политику.
func (g *Governor) Policy() models.LockoutPolicy {
	return g.policy
}

// Check сообщает, заблокирован ли какой-либо из ключей. Счётчики не меняются.
func (g *Governor) Check(ctx context.Context, keys ...string) (Decision, error) {
	const op = "lockout.Check"

	now := g.now().UTC()
	var d Decision
	for _, key := range keys {
		if key == "" {
			continue
		}

		c, err := g.store.LockoutCounter(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}

			return Decision{}, fmt.Errorf("%s: %w", op, err)
		}

		d.merge(c, now)
	}

	return d, nil
}

// RecordFailure учитывает неудачу по каждому ключу независимо.
func (g *Governor) RecordFailure(ctx context.Context, keys ...string) (Decision, error) {
	const op = "lockout.RecordFailure"

	now := g.now().UTC()
	var d Decision
	for _, key := range keys {
		if key == "" {
			continue
		}

		c, err := g.store.RecordFailure(ctx, key, g.policy, now)
		if err != nil {
			return Decision{}, fmt.Errorf("%s: %w", op, err)
		}

		if c.Attempts == g.policy.Threshold {
			d.Tripped = append(d.Tripped, key)
		}
		d.merge(c, now)
	}

	return d, nil
}

// RecordSuccess сбрасывает счётчик ключа. Вызывается только для ключа
// идентичности: успешный вход не должен обнулять бюджет адреса источника.
func (g *Governor) RecordSuccess(ctx context.Context, key string) error {
	const op = "lockout.RecordSuccess"

	if key == "" {
		return nil
	}

	if err := g.store.ResetLockout(ctx, key); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Prune удаляет счётчики, у которых закончились окно и блокировка.
func (g *Governor) Prune(ctx context.Context) error {
	const op = "lockout.Prune"

	now := g.now().UTC()
	if err := g.store.DeleteStaleLockouts(ctx, now.Add(-g.policy.Window), now); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (d *Decision) merge(c *models.LockoutCounter, now time.Time) {
	if !c.Locked(now) {
		return
	}

	d.Locked = true
	if left := c.LockedUntil.Sub(now); left > d.RetryAfter {
		d.RetryAfter = left
		d.LockedUntil = c.LockedUntil
	}
}
