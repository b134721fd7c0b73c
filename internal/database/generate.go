package database

// Schema changes start as a new pair of files in migrations/files. Then run
//
//	go generate ./internal/database
//
// to apply the migrations to a scratch database, dump the result into
// sqlc/schema.sql (embedded as Schema) and regenerate the sqlc query code.

//go:generate sh -c "cd ../.. && go run internal/database/tools/generate_schema.go"
//go:generate sh -c "cd ../.. && sqlc generate -f internal/database/sqlc/sqlc.yaml"
