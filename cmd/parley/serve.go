package main

import (
	"github.com/spf13/cobra"

	"parley/cmd/internal/app"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the chat server",
		Long: `Start the chat server.

Configuration comes from PARLEY_* environment variables, with a .env
file in the working directory read first if present.

Examples:
  parley serve
  PARLEY_ADDR=0.0.0.0:9000 PARLEY_LOG_FORMAT=pretty parley serve`,
		RunE: func(_ *cobra.Command, _ []string) error {
			return app.Run()
		},
	}
}
