// Package domain translates MCP tool calls into pin store operations.
//
// Each tool maps to one storage.PinStore operation and returns a structured
// result; failures carry their error kind (VALIDATION, NOT_FOUND, ...) in the
// tool error text.
package domain
