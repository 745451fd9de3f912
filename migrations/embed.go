// Package migrations embeds the goose SQL migrations so the server binary
// can apply them without the source tree.
package migrations

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS

// TableName is the table goose records applied versions in.
const TableName = "schema_migrations"
