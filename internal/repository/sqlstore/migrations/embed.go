// Package migrations contains the embedded goose migrations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
