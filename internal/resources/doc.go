// Package resources provides MCP resources describing the CalDAV account.
// Resources are read-only data sources that MCP clients can fetch without
// calling a tool, such as the connection status and the calendar list.
package resources
