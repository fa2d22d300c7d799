package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/infrastructure/persistence/models"
)

var ErrFixtureNotFound = errors.New("workflow fixture not found")

type Entity struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Kind  string `yaml:"kind"`
	Phone string `yaml:"phone"`
}

// Step is one entry of an initial workflow. Active defaults to true.
type Step struct {
	Entity string `yaml:"entity"`
	Active *bool  `yaml:"active"`
}

type Client struct {
	ID       string   `yaml:"id"`
	Name     string   `yaml:"name"`
	Phone    string   `yaml:"phone"`
	Entities []Entity `yaml:"entities"`
	Workflow []Step   `yaml:"workflow"`
}

type Fixture struct {
	Version int      `yaml:"version"`
	Clients []Client `yaml:"clients"`
}

// Writer is implemented by the client repositories.
type Writer interface {
	UpsertClient(ctx context.Context, c models.Client) error
	UpsertBillableEntity(ctx context.Context, e models.BillableEntity) error
}

func LoadFile(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrFixtureNotFound, path)
		}
		return nil, err
	}
	defer f.Close()
	return Load(f)
}

func Load(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("decode workflow fixture: %w", err)
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// Validate checks ids are present and unique and that every workflow step
// references an entity of its own client at most once.
func (f *Fixture) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("unsupported workflow fixture version: %d", f.Version)
	}
	clients := make(map[string]struct{}, len(f.Clients))
	entities := make(map[string]struct{})
	for i, c := range f.Clients {
		if strings.TrimSpace(c.ID) == "" || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("clients[%d]: id and name are required", i)
		}
		if _, dup := clients[c.ID]; dup {
			return fmt.Errorf("clients[%d]: duplicate client id %s", i, c.ID)
		}
		clients[c.ID] = struct{}{}

		own := make(map[string]struct{}, len(c.Entities))
		for j, e := range c.Entities {
			if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.Name) == "" {
				return fmt.Errorf("clients[%d].entities[%d]: id and name are required", i, j)
			}
			if _, dup := entities[e.ID]; dup {
				return fmt.Errorf("clients[%d].entities[%d]: duplicate entity id %s", i, j, e.ID)
			}
			entities[e.ID] = struct{}{}
			own[e.ID] = struct{}{}
		}

		used := make(map[string]struct{}, len(c.Workflow))
		for j, s := range c.Workflow {
			if _, ok := own[s.Entity]; !ok {
				return fmt.Errorf("clients[%d].workflow[%d]: entity %s is not an entity of client %s", i, j, s.Entity, c.ID)
			}
			if _, dup := used[s.Entity]; dup {
				return fmt.Errorf("clients[%d].workflow[%d]: %w: %s", i, j, assignment.ErrDuplicateItem, s.Entity)
			}
			used[s.Entity] = struct{}{}
		}
	}
	return nil
}

// Records returns the workflow of c in persisted form.
func (c Client) Records() []assignment.StepRecord {
	out := make([]assignment.StepRecord, 0, len(c.Workflow))
	for i, s := range c.Workflow {
		active := true
		if s.Active != nil {
			active = *s.Active
		}
		out = append(out, assignment.StepRecord{ItemID: s.Entity, Order: i, Active: active})
	}
	return out
}

type Stats struct {
	Clients  int
	Entities int
	Steps    int
}

// Apply upserts every client and entity of f. Workflows are written through
// gateway when it is non-nil; clients without a workflow keep whatever is
// stored.
func Apply(ctx context.Context, f *Fixture, w Writer, gateway assignment.PersistenceGateway, log *logrus.Entry) (Stats, error) {
	var stats Stats
	for _, c := range f.Clients {
		if err := w.UpsertClient(ctx, models.Client{ID: c.ID, Name: c.Name, Phone: c.Phone}); err != nil {
			return stats, fmt.Errorf("upsert client %s: %w", c.ID, err)
		}
		stats.Clients++
		for _, e := range c.Entities {
			if err := w.UpsertBillableEntity(ctx, models.BillableEntity{
				ID:       e.ID,
				ClientID: c.ID,
				Name:     e.Name,
				Kind:     e.Kind,
				Phone:    e.Phone,
			}); err != nil {
				return stats, fmt.Errorf("upsert entity %s: %w", e.ID, err)
			}
			stats.Entities++
		}
		if gateway == nil || len(c.Workflow) == 0 {
			continue
		}
		saved, err := gateway.SaveSequence(ctx, c.ID, c.Records())
		if err != nil {
			return stats, fmt.Errorf("save workflow of client %s: %w", c.ID, err)
		}
		stats.Steps += len(saved)
	}
	if log != nil {
		log.WithFields(logrus.Fields{
			"clients":  stats.Clients,
			"entities": stats.Entities,
			"steps":    stats.Steps,
		}).Info("workflow fixtures applied")
	}
	return stats, nil
}
