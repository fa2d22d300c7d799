package server

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/iota-uz/workflow-console/modules"
	"github.com/iota-uz/workflow-console/modules/workflow/services"
	"github.com/iota-uz/workflow-console/pkg/application"
	"github.com/iota-uz/workflow-console/pkg/configuration"
	"github.com/iota-uz/workflow-console/pkg/eventbus"
	"github.com/iota-uz/workflow-console/pkg/metrics"
)

const (
	sessionSweepInterval = time.Minute
	shutdownTimeout      = 10 * time.Second
)

// NewApplication connects to the database when the workflow storage needs it
// and loads every built-in module. The returned pool is nil in memory mode.
func NewApplication(ctx context.Context, conf *configuration.Configuration) (application.Application, *pgxpool.Pool, error) {
	logger := conf.Logger()

	var pool *pgxpool.Pool
	if conf.Workflow.Storage == configuration.StoragePostgres {
		connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		p, err := pgxpool.New(connectCtx, conf.Database.Opts)
		if err != nil {
			return nil, nil, err
		}
		pool = p
	}

	app := application.New(&application.ApplicationOptions{
		Pool:        pool,
		EventBus:    eventbus.NewEventPublisher(logger),
		Logger:      logger,
		DatabaseDSN: conf.Database.Opts,
	})
	if err := modules.Load(app, modules.BuiltInModules(conf)...); err != nil {
		if pool != nil {
			pool.Close()
		}
		return nil, nil, err
	}
	return app, pool, nil
}

// Serve runs the HTTP server until ctx is done.
func Serve(ctx context.Context, conf *configuration.Configuration) error {
	logger := conf.Logger()

	app, pool, err := NewApplication(ctx, conf)
	if err != nil {
		return err
	}
	if pool != nil {
		defer pool.Close()
	}

	if conf.Workflow.SchemaMigrateAuto && pool != nil {
		if err := app.Migrations().Run(ctx, application.DirectionUp); err != nil {
			return err
		}
	}
	if conf.Prometheus.Enabled {
		app.RegisterControllers(metrics.NewPrometheusController(conf.Prometheus.Path))
	}

	registry := app.Service(services.SessionRegistry{}).(*services.SessionRegistry)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	sweepDone := make(chan struct{})
	go func() {
		defer close(sweepDone)
		registry.Run(sweepCtx, sessionSweepInterval)
	}()
	defer func() {
		stopSweep()
		<-sweepDone
	}()

	srv, err := Default(&DefaultOptions{
		Logger:        logger,
		Configuration: conf,
		Application:   app,
		Pool:          pool,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on: %s", conf.Origin)
		errCh <- srv.Start(conf.SocketAddress)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
