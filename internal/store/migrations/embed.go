// Package migrations embeds the SQL migration files goose applies to the
// store. Go-coded migrations (enum-widening rebuilds) live in the
// sibling gomigrations package and register themselves with goose via
// init(); callers must blank-import gomigrations before running Up.
package migrations

import "embed"

//go:embed sql/*.sql
var FS embed.FS
