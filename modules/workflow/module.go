package workflow

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/workflow-console/modules/workflow/presentation/controllers"
	"github.com/iota-uz/workflow-console/modules/workflow/seed"
	"github.com/iota-uz/workflow-console/modules/workflow/services"
	"github.com/iota-uz/workflow-console/pkg/application"
	"github.com/iota-uz/workflow-console/pkg/composables"
	"github.com/iota-uz/workflow-console/pkg/configuration"
)

//go:embed infrastructure/persistence/schema/*.sql
var MigrationFiles embed.FS

// Schemas returns the goose migrations of the module rooted at the schema
// directory.
func Schemas() (fs.FS, error) {
	return fs.Sub(MigrationFiles, "infrastructure/persistence/schema")
}

type ModuleOptions struct {
	Workflow      configuration.WorkflowOptions
	RedisURL      string
	SessionHeader string
	BasePath      string
}

func NewModule(opts *ModuleOptions) application.Module {
	return &Module{options: opts}
}

type Module struct {
	options *ModuleOptions
}

func (m *Module) Register(app application.Application) error {
	opts := m.options.Workflow
	logger := app.Logger()

	schema, err := Schemas()
	if err != nil {
		return err
	}
	app.Migrations().RegisterSchema(schema)

	backend, err := NewBackend(opts, m.options.RedisURL, logger)
	if err != nil {
		return err
	}
	if opts.Storage == configuration.StorageMemory {
		if err := seedMemory(backend, opts.FixturesPath, logger); err != nil {
			return err
		}
	}

	// Scope searches outlive the request that typed them.
	searchCtx := context.Background()
	if pool := app.DB(); pool != nil {
		searchCtx = composables.WithPool(searchCtx, pool)
	}

	registry := services.NewSessionRegistry(services.SessionRegistryConfig{
		Factory: func(_ uuid.UUID, log *logrus.Entry) (*services.AssignmentController, *services.ScopeSearch) {
			controller := services.NewAssignmentController(services.AssignmentControllerConfig{
				Catalog:        backend.Catalog,
				Reader:         backend.Reader,
				Gateway:        backend.Gateway,
				Publisher:      app.EventPublisher(),
				Logger:         log,
				SavePolicy:     opts.SavePolicy,
				RequestTimeout: opts.RequestTimeout,
			})
			search := services.NewScopeSearch(services.ScopeSearchConfig{
				Service:     backend.Search,
				MinLength:   opts.SearchMinLength,
				Debounce:    opts.SearchDebounce,
				Timeout:     opts.RequestTimeout,
				Logger:      log,
				BaseContext: searchCtx,
			})
			return controller, search
		},
		IdleTTL:     opts.SessionIdleTTL,
		MaxSessions: opts.MaxSessions,
		Logger:      logger.WithField("component", "workflow_sessions"),
	})

	app.RegisterServices(
		backend,
		registry,
		services.NewScopeLookupService(backend.Search),
	)
	services.NewEventLogHandler(logger).Register(app.EventPublisher())

	app.RegisterControllers(
		controllers.NewAssignmentAPIController(controllers.AssignmentAPIControllerConfig{
			BasePath:      m.options.BasePath,
			App:           app,
			SessionHeader: m.options.SessionHeader,
		}),
	)
	return nil
}

func (m *Module) Name() string {
	return "workflow"
}

// seedMemory fills a fresh in-memory backend from the fixture file, if any.
func seedMemory(backend *Backend, path string, logger *logrus.Logger) error {
	if path == "" {
		return nil
	}
	fx, err := seed.LoadFile(path)
	if errors.Is(err, seed.ErrFixtureNotFound) {
		logger.WithField("path", path).Warn("workflow fixtures not found; starting with an empty catalog")
		return nil
	}
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = seed.Apply(ctx, fx, backend.Writer, backend.Gateway, logger.WithField("component", "workflow_seed"))
	return err
}
