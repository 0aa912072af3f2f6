package migrations

import "embed"

// FS содержит sql миграции, чтобы бинарник и тесты не зависели от рабочей директории
//
//go:embed *.sql
var FS embed.FS
