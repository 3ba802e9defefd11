// Package migrations holds the SQL schema applied at startup.
package migrations

import "embed"

// FS contains every migration file, applied in name order.
//
//go:embed *.sql
var FS embed.FS
