package migrations

import "embed"

// FS contains embedded SQLite migrations for scenario and session storage.
//
//go:embed *.sql
var FS embed.FS
