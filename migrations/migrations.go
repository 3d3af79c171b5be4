// Package migrations carries the schema migration files compiled into the
// binary, so a deployment never depends on the working directory containing
// loose SQL files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
