package main

import (
	"os"

	"github.com/balco-dev/balco/internal/errors"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		errors.PrintError(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balco",
		Short: "Real-time collaborative whiteboard server",
		Long: `Balco keeps whiteboard rooms in sync between browsers.

Clients connect over WebSocket, join a room, and exchange sticky
note, connection and cursor events. Room state is kept in memory
and written through to a file, SQLite database or S3 object.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		serveCmd(),
		roomsCmd(),
		versionCmd(),
	)
	return cmd
}
