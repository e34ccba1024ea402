// Package migrations embeds the versioned schema for each supported database.
package migrations

import "embed"

// Bundled at compile time so the binary migrates without external files.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
