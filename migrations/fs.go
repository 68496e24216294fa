// Package migrations embeds SQL migrations applied by internal/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
