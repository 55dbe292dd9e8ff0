// Package migrations embeds the Postgres schema for settings and accounts.
package migrations

import "embed"

// FS contains the versioned migrations ({version}_{name}.sql).
//
//go:embed sql/*.sql
var FS embed.FS

// Dir is the directory within FS where migrations live.
const Dir = "sql"
