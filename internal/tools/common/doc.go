// Package common provides the helpers shared by the MCP tool packages:
// the instrumented handler wrapper, argument parsing and result rendering.
package common
