// Package migrations embeds the ordered SQL migrations for PostgreSQL.
// Each migration is an up/down pair applied by golang-migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
