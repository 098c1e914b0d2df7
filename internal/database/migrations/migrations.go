// Package migrations contains all database schema migrations.
// Each migration file registers itself in init(), so importing this package
// is enough to make the full set available to the migrator.
package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry all migration files register into.
var Migrations = migrate.NewMigrations()
