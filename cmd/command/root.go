package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iota-uz/workflow-console/pkg/configuration"
	"github.com/iota-uz/workflow-console/pkg/logging"
)

// loadConfig is swapped in tests.
var loadConfig = configuration.Use

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "workflow-console",
		Short:         "Workflow console: serve the assignment editor, migrate and seed the database",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newSeedCmd())
	return cmd
}

// withTracing enables the OTLP exporter for the duration of a command.
func withTracing(ctx context.Context, conf *configuration.Configuration) func() {
	if !conf.OpenTelemetry.Enabled {
		return func() {}
	}
	conf.Logger().Info("OpenTelemetry tracing enabled, exporting to Tempo at " + conf.OpenTelemetry.TempoURL)
	return logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL)
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
