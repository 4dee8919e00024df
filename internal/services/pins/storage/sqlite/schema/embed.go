package schema

import "embed"

// FS contains the embedded SQLite DDL for pins and rates.
//
//go:embed *.sql
var FS embed.FS
