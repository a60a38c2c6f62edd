package migrations

import "embed"

// FS holds the SQL migrations in golang-migrate file naming.
//
//go:embed *.sql
var FS embed.FS
