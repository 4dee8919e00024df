package schema

import _ "embed"

// DDL creates the pins and rates tables when they are missing.
//
//go:embed 001_pins.sql
var DDL string
