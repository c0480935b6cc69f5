// Package migrations встраивает SQL-миграции схемы auth-core (формат goose).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
