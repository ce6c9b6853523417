// Package migrations embeds the SQL schema migrations.
package migrations

import "embed"

// FS holds the numbered up and down migrations
//
//go:embed *.sql
var FS embed.FS
