package application

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
)

type stubController struct {
	key string
}

func (c *stubController) Register(*mux.Router) {}
func (c *stubController) Key() string          { return c.key }

type greeter struct{ name string }

func TestApplication_ControllersSortedAndDeduplicated(t *testing.T) {
	app := New(&ApplicationOptions{})
	app.RegisterControllers(
		&stubController{key: "/workflows/api"},
		&stubController{key: "/debug/prometheus"},
		&stubController{key: "/workflows/api"},
	)

	controllers := app.Controllers()
	require.Len(t, controllers, 2)
	require.Equal(t, "/debug/prometheus", controllers[0].Key())
	require.Equal(t, "/workflows/api", controllers[1].Key())
}

func TestApplication_ServiceLookupByType(t *testing.T) {
	app := New(&ApplicationOptions{})
	svc := &greeter{name: "hi"}
	app.RegisterServices(svc)

	got, ok := app.Service(greeter{}).(*greeter)
	require.True(t, ok)
	require.Same(t, svc, got)

	require.Panics(t, func() {
		app.Service(stubController{})
	})
}

func TestApplication_DefaultsEventBusAndLogger(t *testing.T) {
	app := New(&ApplicationOptions{})
	require.NotNil(t, app.EventPublisher())
	require.NotNil(t, app.Logger())
}

func TestMigrationManager_SchemasOverlay(t *testing.T) {
	m := NewMigrationManager("", nil)
	m.RegisterSchema(
		fstest.MapFS{"00001_a.sql": {Data: []byte("-- +goose Up\n")}},
		fstest.MapFS{"00002_b.sql": {Data: []byte("-- +goose Up\n")}},
	)

	matches, err := fs.Glob(m.Schemas(), "*.sql")
	require.NoError(t, err)
	require.Equal(t, []string{"00001_a.sql", "00002_b.sql"}, matches)
}

func TestMigrationManager_RunWithoutDSN(t *testing.T) {
	m := NewMigrationManager("", nil)
	require.Error(t, m.Run(context.Background(), DirectionUp))
}
