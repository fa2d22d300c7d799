package assignment

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

func items(ids ...string) []Item {
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, Item{ID: id, Name: "Entity " + id, Kind: "billable"})
	}
	return out
}

func steps(ids ...string) []AssignedStep {
	out := make([]AssignedStep, 0, len(ids))
	for i, id := range ids {
		out = append(out, AssignedStep{Item: Item{ID: id, Name: "Entity " + id}, StepID: "s-" + id, Order: i, Active: true})
	}
	return out
}

func seqIDs(s Snapshot) []string {
	out := make([]string, 0, len(s.Sequence))
	for _, st := range s.Sequence {
		out = append(out, st.ID)
	}
	return out
}

func poolIDs(s Snapshot) []string {
	out := make([]string, 0, len(s.Pool))
	for _, it := range s.Pool {
		out = append(out, it.ID)
	}
	return out
}

func orders(s Snapshot) []int {
	out := make([]int, 0, len(s.Sequence))
	for _, st := range s.Sequence {
		out = append(out, st.Order)
	}
	return out
}

func newTestStore(t *testing.T, pool []Item, seq []AssignedStep) *Store {
	t.Helper()
	s, err := NewStore("client-1", pool, seq)
	require.NoError(t, err)
	return s
}

func TestStore_MoveToSequence_IntoEmpty(t *testing.T) {
	s := newTestStore(t, items("A", "B", "C"), nil)

	snap, err := s.MoveToSequence("B", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, seqIDs(snap))
	require.Equal(t, []int{0}, orders(snap))
	require.Equal(t, []string{"A", "C"}, poolIDs(snap))
	require.True(t, snap.Sequence[0].Active)
	require.True(t, snap.Sequence[0].Pending)
	require.Empty(t, snap.Sequence[0].StepID)
	require.Equal(t, uint64(1), snap.Revision)
}

func TestStore_MoveToSequence_ClampsTarget(t *testing.T) {
	s := newTestStore(t, items("X", "Y"), steps("A", "B"))

	snap, err := s.MoveToSequence("X", 99)
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "X"}, seqIDs(snap))

	snap, err = s.MoveToSequence("Y", -4)
	require.NoError(t, err)
	require.Equal(t, []string{"Y", "A", "B", "X"}, seqIDs(snap))
	require.Equal(t, []int{0, 1, 2, 3}, orders(snap))
}

func TestStore_Reorder_LastToFirst(t *testing.T) {
	s := newTestStore(t, nil, steps("A", "B", "C"))

	snap, err := s.Reorder("C", 0)
	require.NoError(t, err)
	require.Equal(t, []string{"C", "A", "B"}, seqIDs(snap))
	require.Equal(t, []int{0, 1, 2}, orders(snap))
}

func TestStore_Reorder_SamePositionIsIdempotent(t *testing.T) {
	s := newTestStore(t, items("P"), steps("A", "B", "C"))
	before := s.Snapshot()

	after, err := s.Reorder("B", before.IndexOf("B"))
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, before.Revision, s.Revision())
}

func TestStore_MoveToPool(t *testing.T) {
	s := newTestStore(t, nil, steps("A", "B"))

	snap, err := s.MoveToPool("A")
	require.NoError(t, err)
	require.Equal(t, []string{"B"}, seqIDs(snap))
	require.Equal(t, []int{0}, orders(snap))
	require.Equal(t, []string{"A"}, poolIDs(snap))
	require.Equal(t, "Entity A", snap.Pool[0].Name)
	require.True(t, snap.InPool("A"))
	require.False(t, snap.InPool("B"))
	require.Equal(t, -1, snap.IndexOf("A"))
}

func TestStore_ToggleActive_KeepsOrder(t *testing.T) {
	s := newTestStore(t, nil, steps("A", "B", "C"))

	snap, err := s.ToggleActive("B")
	require.NoError(t, err)
	require.False(t, snap.Sequence[1].Active)
	require.Equal(t, []int{0, 1, 2}, orders(snap))
	require.Equal(t, []string{"A", "B", "C"}, seqIDs(snap))

	snap, err = s.ToggleActive("B")
	require.NoError(t, err)
	require.True(t, snap.Sequence[1].Active)
}

func TestStore_ContractErrorsLeaveStateUntouched(t *testing.T) {
	s := newTestStore(t, items("P"), steps("A", "B"))
	before := s.Snapshot()

	_, err := s.MoveToSequence("A", 0)
	require.ErrorIs(t, err, ErrItemNotInPool)

	_, err = s.MoveToPool("P")
	require.ErrorIs(t, err, ErrItemNotInSequence)

	_, err = s.Reorder("missing", 0)
	require.ErrorIs(t, err, ErrItemNotInSequence)

	_, err = s.ToggleActive("P")
	require.ErrorIs(t, err, ErrItemNotInSequence)

	require.Equal(t, before, s.Snapshot())
}

func TestStore_SnapshotIsDetached(t *testing.T) {
	pool := []Item{{ID: "P", Metadata: map[string]string{"phone": "1"}}}
	s := newTestStore(t, pool, steps("A"))

	snap := s.Snapshot()
	snap.Pool[0].Metadata["phone"] = "changed"
	snap.Sequence[0].Active = false
	snap.Sequence = append(snap.Sequence, AssignedStep{Item: Item{ID: "Z"}})

	fresh := s.Snapshot()
	require.Equal(t, "1", fresh.Pool[0].Metadata["phone"])
	require.True(t, fresh.Sequence[0].Active)
	require.Len(t, fresh.Sequence, 1)
	require.Equal(t, "1", pool[0].Metadata["phone"])
}

func TestNewStore_RejectsDuplicates(t *testing.T) {
	_, err := NewStore("c", items("A"), steps("A"))
	require.ErrorIs(t, err, ErrDuplicateItem)

	_, err = NewStore("c", items("A", "A"), nil)
	require.ErrorIs(t, err, ErrDuplicateItem)
}

func TestStore_RoundTripKeepsOthersRelativeOrder(t *testing.T) {
	s := newTestStore(t, items("X"), steps("A", "B", "C"))
	before := seqIDs(s.Snapshot())

	for _, target := range []int{0, 1, 2, 3, 10} {
		_, err := s.MoveToSequence("X", target)
		require.NoError(t, err)
		snap, err := s.MoveToPool("X")
		require.NoError(t, err)
		require.Equal(t, before, seqIDs(snap), "target %d", target)
		require.Equal(t, []int{0, 1, 2}, orders(snap))
	}
}

func TestStore_ConfirmSaved(t *testing.T) {
	s := newTestStore(t, items("A", "B"), nil)
	_, err := s.MoveToSequence("A", 0)
	require.NoError(t, err)
	_, err = s.MoveToSequence("B", 1)
	require.NoError(t, err)
	rev := s.Revision()

	n := s.ConfirmSaved([]SavedStep{{ItemID: "A", StepID: "step-a"}, {ItemID: "gone", StepID: "x"}})
	require.Equal(t, 1, n)
	require.Equal(t, rev, s.Revision())

	snap := s.Snapshot()
	require.Equal(t, "step-a", snap.Sequence[0].StepID)
	require.False(t, snap.Sequence[0].Pending)
	require.True(t, snap.Sequence[1].Pending)
}

func TestLoad_DerivesPoolAndHydratesSequence(t *testing.T) {
	catalog := items("A", "B", "C", "D")
	persisted := []AssignedStep{
		{Item: Item{ID: "C"}, StepID: "s-c", Order: 5, Active: false},
		{Item: Item{ID: "gone"}, StepID: "s-gone", Order: 0, Active: true},
		{Item: Item{ID: "A"}, StepID: "s-a", Order: 2, Active: true},
		{Item: Item{ID: "A"}, StepID: "s-a2", Order: 9, Active: true},
	}

	s, dropped, err := Load("client-1", catalog, persisted)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"gone", "A"}, dropped)

	snap := s.Snapshot()
	require.Equal(t, []string{"A", "C"}, seqIDs(snap))
	require.Equal(t, []int{0, 1}, orders(snap))
	require.Equal(t, "Entity C", snap.Sequence[1].Name)
	require.False(t, snap.Sequence[1].Active)
	require.False(t, snap.Sequence[1].Pending)
	require.Equal(t, []string{"B", "D"}, poolIDs(snap))
	require.NoError(t, s.Verify())
}

func TestLoad_RejectsDuplicateCatalog(t *testing.T) {
	_, _, err := Load("c", items("A", "A"), nil)
	require.ErrorIs(t, err, ErrDuplicateItem)
}

// TestStore_RandomOperationsKeepInvariants drives the store with random
// operations, including invalid ones, and checks the invariants after each.
func TestStore_RandomOperationsKeepInvariants(t *testing.T) {
	all := []string{"A", "B", "C", "D", "E", "F", "G"}
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		s := newTestStore(t, items(all...), nil)

		for op := 0; op < 200; op++ {
			id := all[r.Intn(len(all))]
			target := r.Intn(len(all)+4) - 2
			before := s.Snapshot()

			var err error
			switch r.Intn(4) {
			case 0:
				_, err = s.MoveToSequence(id, target)
			case 1:
				_, err = s.MoveToPool(id)
			case 2:
				_, err = s.Reorder(id, target)
			case 3:
				var snap Snapshot
				snap, err = s.ToggleActive(id)
				if err == nil {
					require.Equal(t, orders(before), orders(snap))
					require.Equal(t, seqIDs(before), seqIDs(snap))
				}
			}
			if err != nil {
				require.Equal(t, before, s.Snapshot(), "failed op must not change state")
			}

			require.NoError(t, s.Verify())
			got := s.Snapshot().ItemIDs()
			sort.Strings(got)
			require.Equal(t, all, got)
		}
	}
}
