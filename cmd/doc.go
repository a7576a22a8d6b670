// Package cmd implements the command-line interface for mcp-caldav.
//
// This package provides the following commands:
//   - serve: Start the MCP server with the CalDAV tools
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
// Its settings come from flags, the environment and an optional .env file,
// in that order of precedence.
package cmd
