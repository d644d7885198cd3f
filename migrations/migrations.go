// Package migrations embeds the SQL schema so the migrate command and the
// test suites apply exactly the same files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
