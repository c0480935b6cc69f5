// Package events описывает события безопасности (входы, блокировки, ротации,
// отзывы сессий) и их доставку во внешние приёмники.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/go-auth-core/internal/pkg/redact"
)

// Type - вид события.
type Type string

const (
	LoginSucceeded       Type = "login.succeeded"
	LoginFailed          Type = "login.failed"
	AccountLocked        Type = "account.locked"
	SessionRefreshed     Type = "session.refreshed"
	SessionReuseDetected Type = "session.reuse_detected"
	SessionLogout        Type = "session.logout"
	SessionRevokedAll    Type = "session.revoked_all"
	EmailVerified        Type = "email.verified"
)

// Event - запись о событии. Email хранится только в замаскированном виде.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	UserID     uuid.UUID `json:"user_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Source     string    `json:"source,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New создаёт событие с новым ID; email и адрес источника маскируются.
func New(t Type, userID uuid.UUID, email, source string, at time.Time) Event {
	ev := Event{
		ID:         uuid.New(),
		Type:       t,
		UserID:     userID,
		OccurredAt: at.UTC(),
	}
	if email != "" {
		ev.Email = redact.Email(email)
	}
	if source != "" {
		ev.Source = redact.IP(source)
	}

	return ev
}

// WithReason возвращает копию события с причиной.
func (e Event) WithReason(reason string) Event {
	e.Reason = reason
	return e
}

// Publisher доставляет событие в приёмник.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop отбрасывает события.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi рассылает событие во все приёмники и объединяет ошибки.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
