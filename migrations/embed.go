// Package migrations embeds the SQL schema migrations for the migrate
// command and test harnesses.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
