// Package migrations embeds the instrument store schema for each engine.
package migrations

import "embed"

//go:embed postgres/*.sql oracle/*.sql
var FS embed.FS

// PostgresDir holds goose migrations; OracleInit is split and run statement by statement.
const (
	PostgresDir = "postgres"
	OracleInit  = "oracle/20240101000000_init.sql"
)
