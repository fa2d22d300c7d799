package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/iota-uz/workflow-console/modules/workflow"
	"github.com/iota-uz/workflow-console/modules/workflow/seed"
	"github.com/iota-uz/workflow-console/pkg/composables"
	"github.com/iota-uz/workflow-console/pkg/configuration"
)

type seedOptions struct {
	file   string
	dryRun bool
}

func newSeedCmd() *cobra.Command {
	var opts seedOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load clients, billable entities and workflows from a YAML fixture",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, loadConfig(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "Fixture file (default: WORKFLOW_FIXTURES_PATH)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Validate the fixture without writing")
	return cmd
}

func runSeed(cmd *cobra.Command, conf *configuration.Configuration, opts seedOptions) error {
	path := opts.file
	if path == "" {
		path = conf.Workflow.FixturesPath
	}
	fx, err := seed.LoadFile(path)
	if err != nil {
		if errors.Is(err, seed.ErrFixtureNotFound) {
			return withCode(exitUsage, err)
		}
		return withCode(exitValidation, err)
	}

	entities, steps := 0, 0
	for _, c := range fx.Clients {
		entities += len(c.Entities)
		steps += len(c.Workflow)
	}
	if opts.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "fixture ok: %d client(s), %d entities, %d workflow step(s)\n", len(fx.Clients), entities, steps)
		return nil
	}
	if conf.Workflow.Storage != configuration.StoragePostgres {
		return withCode(exitUsage, fmt.Errorf("seed writes to postgres; WORKFLOW_STORAGE is %q", conf.Workflow.Storage))
	}

	ctx := cmd.Context()
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := pgxpool.New(connectCtx, conf.Database.Opts)
	cancel()
	if err != nil {
		return withCode(exitDB, err)
	}
	defer pool.Close()

	logger := conf.Logger()
	backend, err := workflow.NewBackend(conf.Workflow, conf.RedisURL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	ctx = composables.WithPool(ctx, pool)
	var stats seed.Stats
	err = composables.InTx(ctx, func(txCtx context.Context) error {
		var applyErr error
		stats, applyErr = seed.Apply(txCtx, fx, backend.Writer, backend.Gateway, logger.WithField("component", "workflow_seed"))
		return applyErr
	})
	if err != nil {
		return withCode(exitDB, err)
	}

	ids := make([]string, 0, len(fx.Clients))
	for _, c := range fx.Clients {
		ids = append(ids, c.ID)
	}
	if err := backend.Invalidate(ctx, ids...); err != nil {
		logger.WithError(err).Warn("failed to invalidate cached catalogs after seeding")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d client(s), %d entities, %d workflow step(s)\n", stats.Clients, stats.Entities, stats.Steps)
	return nil
}
