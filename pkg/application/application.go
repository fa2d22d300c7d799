package application

import (
	"context"
	"fmt"
	"io/fs"
	"reflect"
	"sort"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/workflow-console/pkg/eventbus"
	"github.com/iota-uz/workflow-console/pkg/migrations"
)

type ApplicationOptions struct {
	Pool     *pgxpool.Pool
	EventBus eventbus.EventBus
	Logger   *logrus.Logger
	// DatabaseDSN is handed to the migration runner, which talks to postgres
	// through database/sql rather than the pgx pool.
	DatabaseDSN string
}

func New(opts *ApplicationOptions) Application {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	bus := opts.EventBus
	if bus == nil {
		bus = eventbus.NewEventPublisher(logger)
	}
	return &application{
		pool:           opts.Pool,
		eventPublisher: bus,
		logger:         logger,
		controllers:    make(map[string]Controller),
		services:       make(map[reflect.Type]interface{}),
		migrations:     NewMigrationManager(opts.DatabaseDSN, logger),
	}
}

// application with a dynamically extendable service registry
type application struct {
	pool           *pgxpool.Pool
	eventPublisher eventbus.EventBus
	logger         *logrus.Logger
	services       map[reflect.Type]interface{}
	controllers    map[string]Controller
	middleware     []mux.MiddlewareFunc
	migrations     MigrationManager
}

func (app *application) DB() *pgxpool.Pool {
	return app.pool
}

func (app *application) EventPublisher() eventbus.EventBus {
	return app.eventPublisher
}

func (app *application) Logger() *logrus.Logger {
	return app.logger
}

func (app *application) Middleware() []mux.MiddlewareFunc {
	return app.middleware
}

// Controllers are returned sorted by key so routes register in a stable order.
func (app *application) Controllers() []Controller {
	keys := make([]string, 0, len(app.controllers))
	for k := range app.controllers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	controllers := make([]Controller, 0, len(keys))
	for _, k := range keys {
		controllers = append(controllers, app.controllers[k])
	}
	return controllers
}

func (app *application) Migrations() MigrationManager {
	return app.migrations
}

func (app *application) RegisterControllers(controllers ...Controller) {
	for _, c := range controllers {
		app.controllers[c.Key()] = c
	}
}

func (app *application) RegisterMiddleware(middleware ...mux.MiddlewareFunc) {
	app.middleware = append(app.middleware, middleware...)
}

// RegisterServices registers a new service in the application by its type
func (app *application) RegisterServices(services ...interface{}) {
	for _, service := range services {
		serviceType := reflect.TypeOf(service).Elem()
		app.services[serviceType] = service
	}
}

// Service retrieves a service by its type
func (app *application) Service(service interface{}) interface{} {
	serviceType := reflect.TypeOf(service)
	svc, exists := app.services[serviceType]
	if !exists {
		panic(fmt.Sprintf("service %s not found", serviceType.Name()))
	}
	return svc
}

func (app *application) Services() map[reflect.Type]interface{} {
	return app.services
}

// ---- MigrationManager implementation ----

func NewMigrationManager(dsn string, logger *logrus.Logger) MigrationManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &migrationManager{dsn: dsn, logger: logger}
}

type migrationManager struct {
	dsn     string
	logger  *logrus.Logger
	schemas []fs.FS
}

func (m *migrationManager) RegisterSchema(fsys ...fs.FS) {
	m.schemas = append(m.schemas, fsys...)
}

func (m *migrationManager) Schemas() fs.FS {
	return migrations.Overlay(m.schemas...)
}

func (m *migrationManager) Run(ctx context.Context, direction Direction) error {
	if m.dsn == "" {
		return fmt.Errorf("migrations: database dsn is not configured")
	}
	runner, err := migrations.NewRunner(m.dsn, m.Schemas())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := runner.Close(); cerr != nil {
			m.logger.WithError(cerr).Warn("failed to close migration runner")
		}
	}()

	switch direction {
	case DirectionUp:
		applied, err := runner.Up(ctx)
		if err != nil {
			return err
		}
		m.logger.WithField("applied", applied).Info("migrations applied")
	case DirectionDown:
		reverted, err := runner.Down(ctx)
		if err != nil {
			return err
		}
		m.logger.WithField("reverted", reverted).Info("migration rolled back")
	default:
		return fmt.Errorf("migrations: unknown direction %q", direction)
	}
	return nil
}
