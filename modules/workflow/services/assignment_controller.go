package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/pkg/configuration"
	"github.com/iota-uz/workflow-console/pkg/eventbus"
	"github.com/iota-uz/workflow-console/pkg/logging"
)

var tracer = otel.Tracer("workflow-console/workflow")

// now is swapped in tests.
var now = time.Now

type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateErrored State = "errored"
)

type AssignmentControllerConfig struct {
	Catalog   assignment.ItemCatalog
	Reader    assignment.SequenceReader
	Gateway   assignment.PersistenceGateway
	Publisher eventbus.EventBus
	Logger    *logrus.Entry
	// SavePolicy is configuration.SavePolicyExplicit (default) or
	// configuration.SavePolicyImmediate.
	SavePolicy     string
	RequestTimeout time.Duration
}

// View is a consistent read of the controller for rendering.
type View struct {
	State    State
	ScopeID  string
	Snapshot *assignment.Snapshot
	Dirty    bool
	Saving   bool
	// LoadErr is set in StateErrored; SaveErr holds the failure of the latest
	// save, if it failed.
	LoadErr error
	SaveErr error
	Dropped []string
}

type saveJob struct {
	ctx      context.Context
	gen      uint64
	store    *assignment.Store
	marks    *saveMarks
	snapshot assignment.Snapshot
}

// saveMarks tracks the save generations of one loaded store: the latest
// issued and the latest written through the gateway. Guarded by
// AssignmentController.mu.
type saveMarks struct {
	issued  uint64
	written uint64
}

// stale reports whether a newer save of the same store was issued or written
// after gen, in which case writing gen would overwrite a newer snapshot.
func (m *saveMarks) stale(gen uint64) bool {
	return gen < m.issued || gen <= m.written
}

// AssignmentController binds one scope at a time to an assignment store and
// mediates loading and saving it. It is safe for concurrent use; store
// operations are serialized and run to completion one at a time.
type AssignmentController struct {
	catalog   assignment.ItemCatalog
	reader    assignment.SequenceReader
	gateway   assignment.PersistenceGateway
	publisher eventbus.EventBus
	log       *logrus.Entry
	immediate bool
	timeout   time.Duration
	queue     *saveQueue

	// ioMu serializes gateway calls. Together with saveMarks, checked after
	// ioMu is taken, an older snapshot is never written after a newer one.
	ioMu sync.Mutex

	mu            sync.Mutex
	state         State
	scopeID       string
	store         *assignment.Store
	marks         *saveMarks
	loadErr       error
	saveErr       error
	dropped       []string
	loadGen       uint64
	saveGen       uint64
	cleanRevision uint64
	saving        int
}

func NewAssignmentController(cfg AssignmentControllerConfig) *AssignmentController {
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	c := &AssignmentController{
		catalog:   cfg.Catalog,
		reader:    cfg.Reader,
		gateway:   cfg.Gateway,
		publisher: cfg.Publisher,
		log:       log,
		immediate: cfg.SavePolicy == configuration.SavePolicyImmediate,
		timeout:   cfg.RequestTimeout,
		state:     StateIdle,
	}
	if c.immediate {
		c.queue = newSaveQueue(func(job saveJob) {
			// failures are logged and kept in the view by persist
			_, _ = c.persist(job)
		})
	}
	return c
}

func (c *AssignmentController) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// classify tags a collaborator failure with its I/O kind. A missing scope is
// passed through so callers can tell it apart from an outage.
func classify(kind error, err error) error {
	if errors.Is(err, assignment.ErrScopeNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// SelectScope discards the current store and loads scopeID: the catalog and
// the saved sequence are read concurrently and the pool is derived as every
// catalog item not in the sequence. If either read fails the controller is
// left in StateErrored without a store. When another SelectScope starts
// before this one finishes, this one returns ErrLoadSuperseded and installs
// nothing.
func (c *AssignmentController) SelectScope(ctx context.Context, scopeID string) (assignment.Snapshot, error) {
	ctx, span := tracer.Start(ctx, "workflow.SelectScope", trace.WithAttributes(
		attribute.String("workflow.scope_id", scopeID),
	))
	defer span.End()

	c.mu.Lock()
	c.loadGen++
	gen := c.loadGen
	if c.dirtyLocked() {
		c.log.WithFields(logrus.Fields{
			"scope_id":      c.scopeID,
			"next_scope_id": scopeID,
			"revision":      c.store.Revision(),
		}).Warn("discarding unsaved changes on scope switch")
	}
	c.state = StateLoading
	c.scopeID = scopeID
	c.store = nil
	c.marks = nil
	c.loadErr = nil
	c.saveErr = nil
	c.dropped = nil
	c.mu.Unlock()

	readCtx, cancel := c.withTimeout(ctx)
	defer cancel()

	var (
		items     []assignment.Item
		persisted []assignment.AssignedStep
	)
	g, gctx := errgroup.WithContext(readCtx)
	g.Go(func() error {
		list, err := c.catalog.ListItems(gctx, scopeID)
		if err != nil {
			return classify(assignment.ErrCatalogUnavailable, err)
		}
		items = list
		return nil
	})
	g.Go(func() error {
		seq, err := c.reader.GetSequence(gctx, scopeID)
		if err != nil {
			return classify(assignment.ErrReadUnavailable, err)
		}
		persisted = seq
		return nil
	})
	err := g.Wait()

	var (
		store   *assignment.Store
		dropped []string
	)
	if err == nil {
		store, dropped, err = assignment.Load(scopeID, items, persisted)
		if err != nil {
			err = classify(assignment.ErrCatalogUnavailable, err)
		}
	}

	c.mu.Lock()
	if gen != c.loadGen {
		c.mu.Unlock()
		getMetrics().loadsTotal.WithLabelValues("superseded").Inc()
		return assignment.Snapshot{}, ErrLoadSuperseded
	}
	if err != nil {
		c.state = StateErrored
		c.loadErr = err
		c.mu.Unlock()
		getMetrics().loadsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.WithError(err).WithField("scope_id", scopeID).Error("failed to load scope")
		return assignment.Snapshot{}, err
	}
	c.store = store
	c.marks = &saveMarks{}
	c.state = StateReady
	c.cleanRevision = store.Revision()
	c.dropped = dropped
	snap := store.Snapshot()
	c.mu.Unlock()

	getMetrics().loadsTotal.WithLabelValues("ok").Inc()
	if len(dropped) > 0 {
		c.log.WithFields(logrus.Fields{
			"scope_id": scopeID,
			"dropped":  dropped,
		}).Warn("saved steps reference items missing from the catalog")
	}
	span.SetAttributes(
		attribute.Int("workflow.pool_size", len(snap.Pool)),
		attribute.Int("workflow.sequence_size", len(snap.Sequence)),
	)
	c.publish(&assignment.ScopeSelectedEvent{
		ScopeID:      scopeID,
		PoolSize:     len(snap.Pool),
		SequenceSize: len(snap.Sequence),
		Dropped:      dropped,
		At:           now(),
	})
	return snap, nil
}

func (c *AssignmentController) MoveToSequence(ctx context.Context, itemID string, targetIndex int) (assignment.Snapshot, error) {
	return c.mutate(ctx, "move_to_sequence", itemID, func(s *assignment.Store) (assignment.Snapshot, error) {
		return s.MoveToSequence(itemID, targetIndex)
	})
}

func (c *AssignmentController) MoveToPool(ctx context.Context, itemID string) (assignment.Snapshot, error) {
	return c.mutate(ctx, "move_to_pool", itemID, func(s *assignment.Store) (assignment.Snapshot, error) {
		return s.MoveToPool(itemID)
	})
}

func (c *AssignmentController) Reorder(ctx context.Context, itemID string, targetIndex int) (assignment.Snapshot, error) {
	return c.mutate(ctx, "reorder", itemID, func(s *assignment.Store) (assignment.Snapshot, error) {
		return s.Reorder(itemID, targetIndex)
	})
}

func (c *AssignmentController) ToggleActive(ctx context.Context, itemID string) (assignment.Snapshot, error) {
	return c.mutate(ctx, "toggle_active", itemID, func(s *assignment.Store) (assignment.Snapshot, error) {
		return s.ToggleActive(itemID)
	})
}

func (c *AssignmentController) mutate(
	ctx context.Context,
	op, itemID string,
	fn func(*assignment.Store) (assignment.Snapshot, error),
) (assignment.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil || c.state != StateReady {
		getMetrics().operationsTotal.WithLabelValues(op, "no_scope").Inc()
		return assignment.Snapshot{}, assignment.ErrNoActiveScope
	}
	before := c.store.Revision()
	snap, err := fn(c.store)
	if err != nil {
		getMetrics().operationsTotal.WithLabelValues(op, "rejected").Inc()
		c.log.WithError(err).WithFields(logrus.Fields{
			"op":       op,
			"item_id":  itemID,
			"scope_id": c.scopeID,
		}).Warn("rejected store operation")
		return assignment.Snapshot{}, err
	}
	getMetrics().operationsTotal.WithLabelValues(op, "ok").Inc()

	// Enqueued under c.mu so queue order matches issue order.
	if c.immediate && snap.Revision != before {
		c.queue.Enqueue(c.issueSaveLocked(ctx))
	}
	return snap, nil
}

func (c *AssignmentController) issueSaveLocked(ctx context.Context) saveJob {
	c.saveGen++
	c.marks.issued = c.saveGen
	return saveJob{
		ctx:      context.WithoutCancel(ctx),
		gen:      c.saveGen,
		store:    c.store,
		marks:    c.marks,
		snapshot: c.store.Snapshot(),
	}
}

// Save writes the current sequence through the gateway. On success the
// controller is clean again, unless the store changed while the save was in
// flight or a newer save was issued meanwhile; a superseded save returns
// ErrSaveSuperseded and leaves the outcome to the newer one. A save that a
// newer one overtakes before reaching the gateway is not written at all. On
// failure the in-memory state is kept as is and the error wraps
// ErrPersistenceFailure.
func (c *AssignmentController) Save(ctx context.Context) (assignment.Snapshot, error) {
	c.mu.Lock()
	if c.store == nil || c.state != StateReady {
		c.mu.Unlock()
		return assignment.Snapshot{}, assignment.ErrNoActiveScope
	}
	job := c.issueSaveLocked(ctx)
	c.mu.Unlock()
	return c.persist(job)
}

func (c *AssignmentController) persist(job saveJob) (assignment.Snapshot, error) {
	ctx, span := tracer.Start(job.ctx, "workflow.Save", trace.WithAttributes(
		attribute.String("workflow.scope_id", job.snapshot.ScopeID),
		attribute.Int64("workflow.revision", int64(job.snapshot.Revision)),
		attribute.Int("workflow.steps", len(job.snapshot.Sequence)),
	))
	defer span.End()

	c.mu.Lock()
	c.saving++
	c.mu.Unlock()

	c.ioMu.Lock()
	c.mu.Lock()
	if job.marks.stale(job.gen) {
		c.saving--
		c.mu.Unlock()
		c.ioMu.Unlock()
		getMetrics().savesTotal.WithLabelValues("superseded").Inc()
		c.log.WithFields(logrus.Fields{
			"scope_id": job.snapshot.ScopeID,
			"revision": job.snapshot.Revision,
		}).Debug("skipping save superseded before it was written")
		return assignment.Snapshot{}, ErrSaveSuperseded
	}
	c.mu.Unlock()
	saveCtx, cancel := c.withTimeout(ctx)
	start := time.Now()
	saved, err := c.gateway.SaveSequence(saveCtx, job.snapshot.ScopeID, job.snapshot.Records())
	elapsed := time.Since(start)
	cancel()
	c.ioMu.Unlock()

	result := "ok"
	if err != nil {
		result = "error"
	}
	getMetrics().savesTotal.WithLabelValues(result).Inc()
	getMetrics().saveLatency.WithLabelValues(result).Observe(elapsed.Seconds())

	c.mu.Lock()
	c.saving--
	latest := job.gen == c.saveGen && job.store == c.store

	log := c.log.WithFields(logrus.Fields{
		"scope_id": job.snapshot.ScopeID,
		"revision": job.snapshot.Revision,
		"duration": elapsed,
	})

	if err != nil {
		err = fmt.Errorf("%w: %w", assignment.ErrPersistenceFailure, err)
		if latest {
			c.saveErr = err
		}
		c.mu.Unlock()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Error("failed to save sequence")
		c.publish(&assignment.SaveFailedEvent{
			ScopeID:  job.snapshot.ScopeID,
			Revision: job.snapshot.Revision,
			Err:      err,
			At:       now(),
		})
		if !latest {
			return assignment.Snapshot{}, fmt.Errorf("%w: %w", ErrSaveSuperseded, err)
		}
		return assignment.Snapshot{}, err
	}

	job.marks.written = job.gen
	if !latest {
		c.mu.Unlock()
		log.Debug("save superseded by a newer one")
		return assignment.Snapshot{}, ErrSaveSuperseded
	}
	c.store.ConfirmSaved(saved)
	c.cleanRevision = job.snapshot.Revision
	c.saveErr = nil
	snap := c.store.Snapshot()
	c.mu.Unlock()

	log.WithField("steps", len(saved)).Info("sequence saved")
	c.publish(&assignment.SequenceSavedEvent{
		ScopeID:  job.snapshot.ScopeID,
		Steps:    job.snapshot.Records(),
		Revision: job.snapshot.Revision,
		At:       now(),
	})
	return snap, nil
}

func (c *AssignmentController) dirtyLocked() bool {
	return c.store != nil && c.store.Revision() != c.cleanRevision
}

// IsDirty reports whether the store has changes no successful save covers.
func (c *AssignmentController) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirtyLocked()
}

func (c *AssignmentController) Snapshot() (assignment.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return assignment.Snapshot{}, assignment.ErrNoActiveScope
	}
	return c.store.Snapshot(), nil
}

func (c *AssignmentController) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{
		State:   c.state,
		ScopeID: c.scopeID,
		Dirty:   c.dirtyLocked(),
		Saving:  c.saving > 0,
		LoadErr: c.loadErr,
		SaveErr: c.saveErr,
		Dropped: append([]string(nil), c.dropped...),
	}
	if c.store != nil {
		snap := c.store.Snapshot()
		v.Snapshot = &snap
	}
	return v
}

// Close waits for queued saves to finish.
func (c *AssignmentController) Close() {
	if c.queue != nil {
		c.queue.Wait()
	}
}

func (c *AssignmentController) publish(event any) {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(event)
}
