package models

import (
	"time"

	"github.com/google/uuid"
)

// User - учётная запись в хранилище учётных данных.
//
// TokenVersion только растёт: любой access-токен, выпущенный с другой версией,
// недействителен. PasswordHash пуст у аккаунтов, созданных через внешний
// провайдер идентичности, - такой аккаунт не проходит проверку пароля.
type User struct {
	ID            uuid.UUID
	Email         string
	PasswordHash  string
	EmailVerified bool
	TokenVersion  int64
	LockoutUntil  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
