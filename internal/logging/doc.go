// Package logging provides structured logging utilities for mcp-caldav.
//
// All logging goes through the standard library's slog package. The helpers
// here keep attribute names consistent between the CalDAV client, the MCP
// tools and the HTTP server.
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "create")
//	logger.Info("created event", logging.EventUID(uid), logging.Calendar(cal.Name))
//
// CalDAV usernames are hashed with UserHash before they are logged, and
// passwords or bearer tokens only ever appear through SanitizeSecret.
package logging
