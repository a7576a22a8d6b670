// Package server provides the shared MCP server state and the HTTP
// transports of mcp-caldav.
//
// ServerContext carries the CalDAV client, the read-only flag and the
// instrumentation hooks used by the tool handlers. When the CalDAV settings
// are incomplete the context has no client and CalendarClient returns a
// NotConfiguredError naming the missing variables.
//
// HTTPServer exposes the MCP server over SSE (/sse and /message) or
// streamable HTTP (/mcp), next to the Kubernetes health endpoints
// /healthz, /readyz and /healthz/detailed. MetricsServer serves Prometheus
// metrics on a separate port. Streamable HTTP sessions are tracked by a
// SessionIDManager that expires idle sessions.
package server
