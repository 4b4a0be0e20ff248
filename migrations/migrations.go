// Package migrations embeds the weave journal schema for each driver.
package migrations

import "embed"

// Embedded migration files bundled at compile time so the journal needs no
// files next to the binary.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
