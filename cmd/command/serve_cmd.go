package main

import (
	"github.com/spf13/cobra"

	"github.com/iota-uz/workflow-console/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := loadConfig()
			defer conf.Unload()
			defer withTracing(cmd.Context(), conf)()
			return server.Serve(cmd.Context(), conf)
		},
	}
}
