// Package service runs the pins MCP server over stdio or streamable HTTP.
//
// Tool meaning lives in the domain package; this package owns registration
// and transport lifecycle.
package service
