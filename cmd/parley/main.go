package main

import (
	"fmt"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "parley",
		Short: "A presence-aware broadcast chat room",
		Long: `Parley is a single-room chat server.

Everyone who joins picks a unique name and every message is broadcast
to every connected chatter, including the sender. The server ships a
browser page, a websocket endpoint, and operational probes; the same
binary doubles as a terminal client.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		chatCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", color.Red.Render("error:"), err)
		os.Exit(1)
	}
}
