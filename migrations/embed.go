// Package migrations embeds the store schema so the binary can migrate
// without a migrations directory on disk.
package migrations

import "embed"

// FS holds the versioned *.up.sql / *.down.sql pairs.
//
//go:embed *.sql
var FS embed.FS
