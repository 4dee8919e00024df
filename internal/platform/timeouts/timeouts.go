// Package timeouts defines shared timeout constants used across pinmap
// processes so the HTTP, gRPC health, MCP, and storage layers agree.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second

// StorageOperation caps a single storage call, including the time spent
// waiting for a pooled connection.
const StorageOperation = 5 * time.Second

// StorageConnect caps the initial connectivity check against a database.
const StorageConnect = 10 * time.Second

// TelemetryShutdown caps flushing pending spans on exit.
const TelemetryShutdown = 5 * time.Second
