// Package migrations embeds the SQLite schema for durable sessions and
// accounts.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
