package models

import "time"

// LockoutPolicy - параметры фиксированного окна блокировки.
type LockoutPolicy struct {
	// Threshold - число неудач в окне, после которого ключ блокируется.
	Threshold int
	// Window - длина окна подсчёта неудач.
	Window time.Duration
	// Lockout - длительность блокировки после достижения порога.
	Lockout time.Duration
}

// LockoutCounter - состояние счётчика неудач для одного ключа
// (идентичность или адрес источника).
type LockoutCounter struct {
	Key         string
	Attempts    int
	WindowStart time.Time
	LockedUntil time.Time
}

// Locked сообщает, действует ли блокировка в момент now.
func (c *LockoutCounter) Locked(now time.Time) bool {
	return !c.LockedUntil.IsZero() && now.Before(c.LockedUntil)
}
