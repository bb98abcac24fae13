// Package migrations embeds the SQL schema scripts applied by cmd/migrate and
// by the server on startup.
package migrations

import "embed"

// FS holds the *.up.sql and *.down.sql scripts.
//
//go:embed *.sql
var FS embed.FS

// Up and Down name the scripts for each direction.
const (
	Up   = "001_create_schema.up.sql"
	Down = "001_create_schema.down.sql"
)
