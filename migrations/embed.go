// Package migrations embeds the SQL schema so binaries run without the
// source tree.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
