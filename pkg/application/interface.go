package application

import (
	"context"
	"io/fs"
	"reflect"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/workflow-console/pkg/eventbus"
)

// Controller mounts a group of routes under its own key.
type Controller interface {
	Register(r *mux.Router)
	Key() string
}

// Module wires its repositories, services and controllers into the application.
type Module interface {
	Register(app Application) error
	Name() string
}

// MigrationManager applies the SQL schemas registered by modules.
type MigrationManager interface {
	RegisterSchema(fsys ...fs.FS)
	Schemas() fs.FS
	Run(ctx context.Context, direction Direction) error
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Application is the registry every module registers into.
type Application interface {
	DB() *pgxpool.Pool
	EventPublisher() eventbus.EventBus
	Logger() *logrus.Logger
	Controllers() []Controller
	Middleware() []mux.MiddlewareFunc
	Migrations() MigrationManager
	RegisterControllers(controllers ...Controller)
	RegisterMiddleware(middleware ...mux.MiddlewareFunc)
	RegisterServices(services ...interface{})
	Service(service interface{}) interface{}
	Services() map[reflect.Type]interface{}
}
