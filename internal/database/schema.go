package database

import _ "embed"

// Schema is the current schema as generated from the migrations. Tests use it
// to build a database without running golang-migrate.
//
//go:embed sqlc/schema.sql
var Schema string
