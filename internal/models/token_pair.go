package models

import (
	"time"

	"github.com/google/uuid"
)

// TokenPair - пара токенов, выдаваемая при входе и ротации.
//
// Описание:
//   - AccessToken - подписанный JWT с uid, jti и token_version;
//   - RefreshToken - случайный секрет, на сервере хранится только его хэш;
//   - AccessExpiresAt / RefreshExpiresAt - моменты истечения (UTC).
type TokenPair struct {
	UserID           uuid.UUID
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Identity - результат успешной проверки access-токена.
type Identity struct {
	UserID       uuid.UUID
	Email        string
	TokenVersion int64
	JTI          string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// VerifiedIdentity - личность, подтверждённая внешним провайдером (OAuth).
type VerifiedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
}
