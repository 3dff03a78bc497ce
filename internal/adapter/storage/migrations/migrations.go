// Package migrations embeds the schema for the SQL document collection.
package migrations

import "embed"

//go:embed mysql/*.sql sqlite/*.sql
var FS embed.FS
