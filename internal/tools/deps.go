// Package tools provides MCP tool handlers and registration for the voxtools
// server.
package tools

import (
	"log/slog"
)

// Dependencies holds shared services for tool handlers.
// Passed to handler factories via closure capture.
type Dependencies struct {
	Store  *Store
	Logger *slog.Logger
}
