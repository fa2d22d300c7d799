package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iota-uz/workflow-console/modules/workflow"
	"github.com/iota-uz/workflow-console/pkg/migrations"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply, roll back or inspect the database schema",
	}
	cmd.AddCommand(
		newMigrateDirectionCmd("up", "Apply all pending migrations"),
		newMigrateDirectionCmd("down", "Roll back the latest migration"),
		newMigrateStatusCmd(),
	)
	return cmd
}

func openRunner() (*migrations.Runner, error) {
	conf := loadConfig()
	schemas, err := workflow.Schemas()
	if err != nil {
		return nil, err
	}
	runner, err := migrations.NewRunner(conf.Database.Opts, migrations.Overlay(schemas))
	if err != nil {
		return nil, withCode(exitDB, err)
	}
	return runner, nil
}

func newMigrateDirectionCmd(direction, short string) *cobra.Command {
	return &cobra.Command{
		Use:   direction,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := openRunner()
			if err != nil {
				return err
			}
			defer runner.Close()

			var n int
			if direction == "up" {
				n, err = runner.Up(cmd.Context())
			} else {
				n, err = runner.Down(cmd.Context())
			}
			if err != nil {
				return withCode(exitDB, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "migrate %s: %d migration(s) applied\n", direction, n)
			return nil
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := openRunner()
			if err != nil {
				return err
			}
			defer runner.Close()

			statuses, err := runner.Status(cmd.Context())
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeStatus(cmd.OutOrStdout(), statuses)
		},
	}
}

func writeStatus(out io.Writer, statuses []migrations.Status) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tAPPLIED\tPATH")
	for _, s := range statuses {
		applied := "no"
		if s.Applied {
			applied = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", s.Version, applied, s.Path)
	}
	return tw.Flush()
}
