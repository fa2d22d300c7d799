package migrations

import (
	"context"
	"database/sql"
	"io/fs"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

// Runner applies goose-annotated SQL files ("-- +goose Up" / "-- +goose Down")
// found at the root of a file system.
type Runner struct {
	db       *sql.DB
	provider *goose.Provider
}

func NewRunner(dsn string, schemas fs.FS) (*Runner, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open migration connection")
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, schemas)
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "build migration provider")
	}
	return &Runner{db: db, provider: provider}, nil
}

// Up applies every pending migration and returns how many ran.
func (r *Runner) Up(ctx context.Context) (int, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return len(results), errors.Wrap(err, "apply migrations")
	}
	return len(results), nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) (int, error) {
	if _, err := r.provider.Down(ctx); err != nil {
		if errors.Is(err, goose.ErrNoNextVersion) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "roll back migration")
	}
	return 1, nil
}

type Status struct {
	Version int64
	Path    string
	Applied bool
}

func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	list, err := r.provider.Status(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read migration status")
	}
	out := make([]Status, 0, len(list))
	for _, s := range list {
		out = append(out, Status{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}

func (r *Runner) Close() error {
	return r.db.Close()
}
