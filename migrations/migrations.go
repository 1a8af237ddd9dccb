// Package migrations embeds the autoflow schema files for both supported
// drivers. internal/store applies them in filename order and verifies a
// per-file checksum before each apply.
package migrations

import "embed"

//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
