package billing

import "embed"

// Migrations holds the goose migrations of the subscriptions schema.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory of Migrations passed to goose.
const MigrationsDir = "migrations"
