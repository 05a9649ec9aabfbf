// Package migrations embeds the SQL schema for the dispatch log and the
// provider configuration store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
