package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mcp-caldav application
var rootCmd = &cobra.Command{
	Use:   "mcp-caldav",
	Short: "MCP server for CalDAV calendars",
	Long: `mcp-caldav exposes a CalDAV calendar account (Nextcloud, iCloud, Yandex,
Fastmail, Radicale, ...) to AI assistants as Model Context Protocol tools.

The tools list calendars, read the agenda, search events and create, update
or delete events including reminders, attendees and recurrence rules.`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "mcp-caldav version %s\n" .Version}}`)

	// MCP clients launch the binary without arguments
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
}
