// Package migrations embeds the goose SQL migrations so binaries need no files on disk.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
