// Package migrations embeds the PostgreSQL schema migrations so the binary can migrate a
// database without the source tree at hand.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql files.
//
//go:embed *.sql
var FS embed.FS
