// Package migrations embeds the local backend's schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
