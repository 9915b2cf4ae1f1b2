// Package db carries the schema migrations compiled into the binary, so a
// deployment never depends on a migrations directory being present on disk.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrations is the migration file tree, rooted at the directory holding the
// numbered .up.sql/.down.sql pairs.
var Migrations fs.FS

func init() {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		panic(err)
	}
	Migrations = sub
}
