package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/pkg/configuration"
	"github.com/iota-uz/workflow-console/pkg/eventbus"
)

type controllerFixture struct {
	catalog *fakeCatalog
	reader  *fakeReader
	gateway *fakeGateway
	hook    interface{ AllEntries() []*logrus.Entry }
	c       *AssignmentController
}

func newControllerFixture(t *testing.T, policy string) *controllerFixture {
	t.Helper()
	log, hook := newTestLogger()
	f := &controllerFixture{
		catalog: &fakeCatalog{byScope: map[string][]assignment.Item{
			"acme": items("A", "B", "C"),
			"beta": items("X", "Y"),
		}},
		reader:  &fakeReader{byScope: map[string][]assignment.AssignedStep{}},
		gateway: &fakeGateway{},
		hook:    hook,
	}
	f.c = NewAssignmentController(AssignmentControllerConfig{
		Catalog:        f.catalog,
		Reader:         f.reader,
		Gateway:        f.gateway,
		Logger:         log,
		SavePolicy:     policy,
		RequestTimeout: time.Second,
	})
	t.Cleanup(f.c.Close)
	return f
}

func sequenceIDs(s assignment.Snapshot) []string {
	out := make([]string, 0, len(s.Sequence))
	for _, st := range s.Sequence {
		out = append(out, st.ID)
	}
	return out
}

func poolIDs(s assignment.Snapshot) []string {
	out := make([]string, 0, len(s.Pool))
	for _, it := range s.Pool {
		out = append(out, it.ID)
	}
	return out
}

func (f *controllerFixture) warnings(msg string) int {
	n := 0
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == msg {
			n++
		}
	}
	return n
}

func TestAssignmentController_SelectScopeDerivesPool(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	f.reader.byScope["acme"] = []assignment.AssignedStep{
		{Item: assignment.Item{ID: "C"}, StepID: "s-c", Order: 1, Active: false},
		{Item: assignment.Item{ID: "A"}, StepID: "s-a", Order: 0, Active: true},
	}

	snap, err := f.c.SelectScope(context.Background(), "acme")
	require.NoError(t, err)

	require.Equal(t, []string{"A", "C"}, sequenceIDs(snap))
	require.Equal(t, []string{"B"}, poolIDs(snap))
	require.Equal(t, "item C", snap.Sequence[1].Name)
	require.False(t, snap.Sequence[1].Active)
	require.False(t, snap.Sequence[0].Pending)

	v := f.c.View()
	require.Equal(t, StateReady, v.State)
	require.Equal(t, "acme", v.ScopeID)
	require.False(t, v.Dirty)
}

func TestAssignmentController_SelectScopeDropsUnknownSteps(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	f.reader.byScope["acme"] = []assignment.AssignedStep{
		{Item: assignment.Item{ID: "GONE"}, StepID: "s-g", Order: 0},
		{Item: assignment.Item{ID: "B"}, StepID: "s-b", Order: 1},
	}

	snap, err := f.c.SelectScope(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, sequenceIDs(snap))
	require.Equal(t, 0, snap.Sequence[0].Order)
	require.Equal(t, []string{"GONE"}, f.c.View().Dropped)
	require.Equal(t, 1, f.warnings("saved steps reference items missing from the catalog"))
}

func TestAssignmentController_SelectScopeFailures(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *controllerFixture)
		scopeID string
		want    error
	}{
		{
			name:    "catalog unavailable",
			setup:   func(f *controllerFixture) { f.catalog.err = errors.New("connection reset") },
			scopeID: "acme",
			want:    assignment.ErrCatalogUnavailable,
		},
		{
			name:    "read unavailable",
			setup:   func(f *controllerFixture) { f.reader.err = errors.New("timeout") },
			scopeID: "acme",
			want:    assignment.ErrReadUnavailable,
		},
		{
			name:    "unknown scope",
			setup:   func(*controllerFixture) {},
			scopeID: "missing",
			want:    assignment.ErrScopeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture(t, configuration.SavePolicyExplicit)
			tt.setup(f)

			_, err := f.c.SelectScope(context.Background(), tt.scopeID)
			require.ErrorIs(t, err, tt.want)

			v := f.c.View()
			require.Equal(t, StateErrored, v.State)
			require.Nil(t, v.Snapshot)
			require.ErrorIs(t, v.LoadErr, tt.want)

			_, err = f.c.Snapshot()
			require.ErrorIs(t, err, assignment.ErrNoActiveScope)
			_, err = f.c.MoveToSequence(context.Background(), "A", 0)
			require.ErrorIs(t, err, assignment.ErrNoActiveScope)
			_, err = f.c.Save(context.Background())
			require.ErrorIs(t, err, assignment.ErrNoActiveScope)
		})
	}
}

func TestAssignmentController_RetryAfterLoadFailure(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	f.catalog.err = errors.New("down")
	_, err := f.c.SelectScope(context.Background(), "acme")
	require.Error(t, err)

	f.catalog.mu.Lock()
	f.catalog.err = nil
	f.catalog.mu.Unlock()
	_, err = f.c.SelectScope(context.Background(), "acme")
	require.NoError(t, err)
	require.Equal(t, StateReady, f.c.View().State)
	require.Nil(t, f.c.View().LoadErr)
}

func TestAssignmentController_OverlappingSelectScope(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	gate := make(chan struct{})
	f.catalog.gate = map[string]chan struct{}{"acme": gate}
	f.catalog.entered = make(chan string, 4)

	errCh := make(chan error, 1)
	go func() {
		_, err := f.c.SelectScope(context.Background(), "acme")
		errCh <- err
	}()
	require.Equal(t, "acme", <-f.catalog.entered)

	snap, err := f.c.SelectScope(context.Background(), "beta")
	require.NoError(t, err)
	require.Equal(t, []string{"X", "Y"}, poolIDs(snap))

	close(gate)
	require.ErrorIs(t, <-errCh, ErrLoadSuperseded)

	v := f.c.View()
	require.Equal(t, "beta", v.ScopeID)
	require.Equal(t, StateReady, v.State)
	require.Equal(t, []string{"X", "Y"}, poolIDs(*v.Snapshot))
}

func TestAssignmentController_DirtyTrackingAndSave(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	ctx := context.Background()
	_, err := f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)

	snap, err := f.c.MoveToSequence(ctx, "B", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, sequenceIDs(snap))
	require.Equal(t, []string{"A", "C"}, poolIDs(snap))
	require.True(t, snap.Sequence[0].Pending)
	require.True(t, f.c.IsDirty())

	snap, err = f.c.Save(ctx)
	require.NoError(t, err)
	require.False(t, f.c.IsDirty())
	require.False(t, snap.Sequence[0].Pending)
	require.Equal(t, "step-B", snap.Sequence[0].StepID)
	require.Equal(t, []assignment.StepRecord{{ItemID: "B", Order: 0, Active: true}}, f.gateway.lastCall().steps)

	// Same-position reorder changes nothing, so the controller stays clean.
	_, err = f.c.Reorder(ctx, "B", 0)
	require.NoError(t, err)
	require.False(t, f.c.IsDirty())

	_, err = f.c.ToggleActive(ctx, "B")
	require.NoError(t, err)
	require.True(t, f.c.IsDirty())
}

func TestAssignmentController_ContractViolationLeavesStateUntouched(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	ctx := context.Background()
	_, err := f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)
	before, err := f.c.Snapshot()
	require.NoError(t, err)

	_, err = f.c.MoveToPool(ctx, "A")
	require.ErrorIs(t, err, assignment.ErrItemNotInSequence)
	_, err = f.c.ToggleActive(ctx, "Z")
	require.ErrorIs(t, err, assignment.ErrItemNotInSequence)

	after, err := f.c.Snapshot()
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.False(t, f.c.IsDirty())
	require.Equal(t, 2, f.warnings("rejected store operation"))
}

func TestAssignmentController_FailedSaveKeepsDirtySnapshot(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	ctx := context.Background()
	_, err := f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)
	_, err = f.c.MoveToSequence(ctx, "A", 0)
	require.NoError(t, err)
	_, err = f.c.MoveToSequence(ctx, "C", 5)
	require.NoError(t, err)

	f.gateway.handlers = []func(int) error{
		func(int) error { return errors.New("deadlock detected") },
		func(int) error { return nil },
	}

	_, err = f.c.Save(ctx)
	require.ErrorIs(t, err, assignment.ErrPersistenceFailure)
	v := f.c.View()
	require.True(t, v.Dirty)
	require.ErrorIs(t, v.SaveErr, assignment.ErrPersistenceFailure)
	require.Equal(t, []string{"A", "C"}, sequenceIDs(*v.Snapshot))

	// Retrying is just saving again; nothing has to be re-dragged.
	_, err = f.c.Save(ctx)
	require.NoError(t, err)
	v = f.c.View()
	require.False(t, v.Dirty)
	require.Nil(t, v.SaveErr)
	require.Equal(t, 2, f.gateway.callCount())
}

func TestAssignmentController_OnlyLatestSaveDecidesDirty(t *testing.T) {
	tests := []struct {
		name      string
		first     error
		second    error
		wantDirty bool
	}{
		{name: "earlier succeeds later fails", first: nil, second: errors.New("boom"), wantDirty: true},
		{name: "earlier fails later succeeds", first: errors.New("boom"), second: nil, wantDirty: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newControllerFixture(t, configuration.SavePolicyExplicit)
			ctx := context.Background()
			_, err := f.c.SelectScope(ctx, "acme")
			require.NoError(t, err)
			_, err = f.c.MoveToSequence(ctx, "A", 0)
			require.NoError(t, err)

			release := make(chan struct{})
			entered := make(chan struct{}, 1)
			f.gateway.handlers = []func(int) error{
				func(int) error {
					entered <- struct{}{}
					<-release
					return tt.first
				},
				func(int) error { return tt.second },
			}

			var wg sync.WaitGroup
			var firstErr, secondErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, firstErr = f.c.Save(ctx)
			}()
			<-entered
			go func() {
				defer wg.Done()
				_, secondErr = f.c.Save(ctx)
			}()
			require.Eventually(t, func() bool {
				f.c.mu.Lock()
				defer f.c.mu.Unlock()
				return f.c.saveGen == 2
			}, time.Second, time.Millisecond)

			close(release)
			wg.Wait()

			require.ErrorIs(t, firstErr, ErrSaveSuperseded)
			if tt.second != nil {
				require.ErrorIs(t, secondErr, assignment.ErrPersistenceFailure)
			} else {
				require.NoError(t, secondErr)
			}
			require.Equal(t, tt.wantDirty, f.c.IsDirty())
			require.Equal(t, 2, f.gateway.callCount())
		})
	}
}

func TestAssignmentController_OvertakenSaveIsNotWritten(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	ctx := context.Background()
	_, err := f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)
	_, err = f.c.MoveToSequence(ctx, "A", 0)
	require.NoError(t, err)

	gate := holdSaves(t, 1)
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.c.Save(ctx)
		firstErr <- err
	}()
	<-gate.entered

	_, err = f.c.MoveToSequence(ctx, "B", 1)
	require.NoError(t, err)
	_, err = f.c.Save(ctx)
	require.NoError(t, err)
	require.False(t, f.c.IsDirty())

	close(gate.release)
	require.ErrorIs(t, <-firstErr, ErrSaveSuperseded)

	require.Equal(t, 1, f.gateway.callCount())
	require.Equal(t, []assignment.StepRecord{
		{ItemID: "A", Order: 0, Active: true},
		{ItemID: "B", Order: 1, Active: true},
	}, f.gateway.lastCall().steps)
	require.False(t, f.c.IsDirty())
}

func TestAssignmentController_QueuedSaveOvertakenByExplicitSave(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyImmediate)
	ctx := context.Background()
	_, err := f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)

	gate := holdSaves(t, 1)
	_, err = f.c.MoveToSequence(ctx, "C", 0)
	require.NoError(t, err)
	<-gate.entered

	_, err = f.c.ToggleActive(ctx, "C")
	require.NoError(t, err)
	close(gate.release)
	f.c.Close()

	// the queued toggle save runs after the first one is skipped
	require.Equal(t, 1, f.gateway.callCount())
	require.Equal(t, []assignment.StepRecord{
		{ItemID: "C", Order: 0, Active: false},
	}, f.gateway.lastCall().steps)
	require.False(t, f.c.IsDirty())

	_, err = f.c.MoveToSequence(ctx, "A", 1)
	require.NoError(t, err)
	f.c.Close()
	gate2 := holdSaves(t, 1)
	_, err = f.c.MoveToSequence(ctx, "B", 2)
	require.NoError(t, err)
	<-gate2.entered
	snap, err := f.c.Save(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"C", "A", "B"}, sequenceIDs(snap))
	close(gate2.release)
	f.c.Close()

	require.Equal(t, 3, f.gateway.callCount())
	require.Len(t, f.gateway.lastCall().steps, 3)
	require.False(t, f.c.IsDirty())
}

func TestAssignmentController_EditDuringSaveStaysDirty(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	ctx := context.Background()
	_, err := f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)
	_, err = f.c.MoveToSequence(ctx, "A", 0)
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.gateway.handlers = []func(int) error{func(int) error {
		entered <- struct{}{}
		<-release
		return nil
	}}

	done := make(chan error, 1)
	go func() {
		_, err := f.c.Save(ctx)
		done <- err
	}()
	<-entered
	_, err = f.c.MoveToSequence(ctx, "B", 1)
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	require.True(t, f.c.IsDirty())
	snap, err := f.c.Snapshot()
	require.NoError(t, err)
	require.False(t, snap.Sequence[0].Pending)
	require.True(t, snap.Sequence[1].Pending)
}

func TestAssignmentController_ScopeSwitchDiscardsUnsavedChanges(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyExplicit)
	ctx := context.Background()
	_, err := f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)
	_, err = f.c.MoveToSequence(ctx, "A", 0)
	require.NoError(t, err)

	_, err = f.c.SelectScope(ctx, "beta")
	require.NoError(t, err)
	require.False(t, f.c.IsDirty())
	require.Equal(t, 1, f.warnings("discarding unsaved changes on scope switch"))
	require.Zero(t, f.gateway.callCount())

	_, err = f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)
	snap, err := f.c.Snapshot()
	require.NoError(t, err)
	require.Empty(t, snap.Sequence)
}

func TestAssignmentController_ImmediatePolicyCoalescesSaves(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyImmediate)
	ctx := context.Background()
	_, err := f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)

	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	f.gateway.handlers = []func(int) error{
		func(int) error {
			entered <- struct{}{}
			<-release
			return nil
		},
		func(int) error { return nil },
	}

	_, err = f.c.MoveToSequence(ctx, "A", 0)
	require.NoError(t, err)
	<-entered

	_, err = f.c.MoveToSequence(ctx, "B", 1)
	require.NoError(t, err)
	_, err = f.c.MoveToSequence(ctx, "C", 0)
	require.NoError(t, err)
	_, err = f.c.ToggleActive(ctx, "A")
	require.NoError(t, err)
	require.True(t, f.c.IsDirty())

	close(release)
	f.c.Close()

	require.Equal(t, 2, f.gateway.callCount())
	require.Equal(t, []assignment.StepRecord{
		{ItemID: "C", Order: 0, Active: true},
		{ItemID: "A", Order: 1, Active: false},
		{ItemID: "B", Order: 2, Active: true},
	}, f.gateway.lastCall().steps)
	require.False(t, f.c.IsDirty())
}

func TestAssignmentController_ImmediatePolicyIgnoresNoops(t *testing.T) {
	f := newControllerFixture(t, configuration.SavePolicyImmediate)
	ctx := context.Background()
	_, err := f.c.SelectScope(ctx, "acme")
	require.NoError(t, err)

	_, err = f.c.MoveToPool(ctx, "A")
	require.Error(t, err)
	f.c.Close()
	require.Zero(t, f.gateway.callCount())
}

func TestAssignmentController_PublishesEvents(t *testing.T) {
	log, _ := newTestLogger()
	bus := eventbus.NewEventPublisher(log.Logger)
	var (
		mu       sync.Mutex
		selected []*assignment.ScopeSelectedEvent
		saved    []*assignment.SequenceSavedEvent
		failed   []*assignment.SaveFailedEvent
	)
	bus.Subscribe(func(e *assignment.ScopeSelectedEvent) { mu.Lock(); selected = append(selected, e); mu.Unlock() })
	bus.Subscribe(func(e *assignment.SequenceSavedEvent) { mu.Lock(); saved = append(saved, e); mu.Unlock() })
	bus.Subscribe(func(e *assignment.SaveFailedEvent) { mu.Lock(); failed = append(failed, e); mu.Unlock() })

	fixedNow := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	prev := now
	now = func() time.Time { return fixedNow }
	t.Cleanup(func() { now = prev })

	gateway := &fakeGateway{handlers: []func(int) error{
		func(int) error { return errors.New("boom") },
		func(int) error { return nil },
	}}
	c := NewAssignmentController(AssignmentControllerConfig{
		Catalog:   &fakeCatalog{byScope: map[string][]assignment.Item{"acme": items("A", "B")}},
		Reader:    &fakeReader{},
		Gateway:   gateway,
		Publisher: bus,
		Logger:    log,
	})
	ctx := context.Background()
	_, err := c.SelectScope(ctx, "acme")
	require.NoError(t, err)
	_, err = c.MoveToSequence(ctx, "B", 0)
	require.NoError(t, err)
	_, err = c.Save(ctx)
	require.Error(t, err)
	_, err = c.Save(ctx)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, selected, 1)
	require.Equal(t, 2, selected[0].PoolSize)
	require.Equal(t, fixedNow, selected[0].At)
	require.Len(t, failed, 1)
	require.ErrorIs(t, failed[0].Err, assignment.ErrPersistenceFailure)
	require.Len(t, saved, 1)
	require.Equal(t, uint64(1), saved[0].Revision)
	require.Equal(t, []assignment.StepRecord{{ItemID: "B", Order: 0, Active: true}}, saved[0].Steps)
}
