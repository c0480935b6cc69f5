package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshStatus - состояние refresh-токена в цепочке ротации.
type RefreshStatus string

const (
	// RefreshActive - токен можно предъявить ровно один раз.
	RefreshActive RefreshStatus = "active"
	// RefreshRotated - токен уже обменян на преемника; повторное предъявление - признак кражи.
	RefreshRotated RefreshStatus = "rotated"
	// RefreshRevoked - токен отозван logout-ом или принудительной инвалидацией.
	RefreshRevoked RefreshStatus = "revoked"
)

// RefreshToken - серверная запись refresh-токена. Открытое значение
// никогда не хранится: только sha256-хэш в base64url.
type RefreshToken struct {
	TokenHash  string
	UserID     uuid.UUID
	FamilyID   uuid.UUID
	Status     RefreshStatus
	ReplacedBy string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// Active сообщает, можно ли обменять токен в момент now.
func (t *RefreshToken) Active(now time.Time) bool {
	return t.Status == RefreshActive && now.Before(t.ExpiresAt)
}
