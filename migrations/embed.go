// Package migrations embeds the goose SQL migrations for the features table
// so the seed tool and integration tests can apply them without a
// filesystem path at runtime.
package migrations

import "embed"

// FS holds all *.sql migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
