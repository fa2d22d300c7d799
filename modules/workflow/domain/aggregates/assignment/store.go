package assignment

import (
	"fmt"
	"slices"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/ordering"
)

// Store holds the pool and the ordered sequence of one scope. Every
// operation either applies completely or returns an error and leaves the
// store untouched. Store is not safe for concurrent use; its owner
// serializes access.
type Store struct {
	scopeID  string
	pool     []Item
	sequence []AssignedStep
	revision uint64
}

// NewStore builds a store from a pool and a sequence given in list order.
// Sequence orders are reassigned densely.
func NewStore(scopeID string, pool []Item, sequence []AssignedStep) (*Store, error) {
	seen := make(map[string]struct{}, len(pool)+len(sequence))
	check := func(id string) error {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateItem, id)
		}
		seen[id] = struct{}{}
		return nil
	}

	s := &Store{
		scopeID:  scopeID,
		pool:     make([]Item, 0, len(pool)),
		sequence: make([]AssignedStep, 0, len(sequence)),
	}
	for _, it := range pool {
		if err := check(it.ID); err != nil {
			return nil, err
		}
		s.pool = append(s.pool, it.clone())
	}
	for _, st := range sequence {
		if err := check(st.ID); err != nil {
			return nil, err
		}
		s.sequence = append(s.sequence, st.clone())
	}
	renumber(s.sequence)
	return s, nil
}

func (s *Store) ScopeID() string  { return s.scopeID }
func (s *Store) Revision() uint64 { return s.revision }

// MoveToSequence takes itemID out of the pool and inserts it as an active,
// pending step at targetIndex, clamped to [0, len(sequence)].
func (s *Store) MoveToSequence(itemID string, targetIndex int) (Snapshot, error) {
	from := ordering.IndexOf(s.pool, itemID, itemKey)
	if from < 0 {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrItemNotInPool, itemID)
	}
	pool, seq, err := ordering.Transfer(s.pool, s.sequence, ordering.Move{
		ItemID:           itemID,
		SourceIndex:      from,
		DestinationIndex: targetIndex,
	}, itemKey, newStep)
	if err != nil {
		return Snapshot{}, err
	}
	s.commit(pool, seq)
	return s.Snapshot(), nil
}

// MoveToPool removes itemID from the sequence and appends the bare item to
// the pool. Any durable step id is forgotten.
func (s *Store) MoveToPool(itemID string) (Snapshot, error) {
	from := ordering.IndexOf(s.sequence, itemID, stepKey)
	if from < 0 {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrItemNotInSequence, itemID)
	}
	seq, pool, err := ordering.Transfer(s.sequence, s.pool, ordering.Move{
		ItemID:           itemID,
		SourceIndex:      from,
		DestinationIndex: len(s.pool),
	}, stepKey, bareItem)
	if err != nil {
		return Snapshot{}, err
	}
	s.commit(pool, seq)
	return s.Snapshot(), nil
}

// Reorder moves itemID to targetIndex within the sequence. Dropping an item
// on its own position is a no-op and does not bump the revision.
func (s *Store) Reorder(itemID string, targetIndex int) (Snapshot, error) {
	from := ordering.IndexOf(s.sequence, itemID, stepKey)
	if from < 0 {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrItemNotInSequence, itemID)
	}
	seq, changed, err := ordering.Reorder(s.sequence, ordering.Move{
		ItemID:           itemID,
		SourceIndex:      from,
		DestinationIndex: targetIndex,
	}, stepKey)
	if err != nil {
		return Snapshot{}, err
	}
	if changed {
		s.commit(s.pool, seq)
	}
	return s.Snapshot(), nil
}

// ToggleActive flips the active flag of itemID. Order is never touched.
func (s *Store) ToggleActive(itemID string) (Snapshot, error) {
	i := ordering.IndexOf(s.sequence, itemID, stepKey)
	if i < 0 {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrItemNotInSequence, itemID)
	}
	s.sequence[i].Active = !s.sequence[i].Active
	s.revision++
	return s.Snapshot(), nil
}

// ConfirmSaved records durable step ids returned by a save and clears the
// pending flag of the matching steps. Items no longer in the sequence are
// ignored. It returns how many steps were confirmed. The revision is kept:
// confirmation is bookkeeping, not an edit.
func (s *Store) ConfirmSaved(saved []SavedStep) int {
	byItem := make(map[string]string, len(saved))
	for _, st := range saved {
		byItem[st.ItemID] = st.StepID
	}
	n := 0
	for i := range s.sequence {
		stepID, ok := byItem[s.sequence[i].ID]
		if !ok || stepID == "" {
			continue
		}
		s.sequence[i].StepID = stepID
		s.sequence[i].Pending = false
		n++
	}
	return n
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		ScopeID:  s.scopeID,
		Pool:     make([]Item, 0, len(s.pool)),
		Sequence: make([]AssignedStep, 0, len(s.sequence)),
		Revision: s.revision,
	}
	for _, it := range s.pool {
		snap.Pool = append(snap.Pool, it.clone())
	}
	for _, st := range s.sequence {
		snap.Sequence = append(snap.Sequence, st.clone())
	}
	return snap
}

// Verify checks the structural invariants: dense zero-based orders and each
// item id present exactly once across pool and sequence.
func (s *Store) Verify() error {
	seen := make(map[string]struct{}, len(s.pool)+len(s.sequence))
	for _, it := range s.pool {
		if _, ok := seen[it.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateItem, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	for i, st := range s.sequence {
		if _, ok := seen[st.ID]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateItem, st.ID)
		}
		seen[st.ID] = struct{}{}
		if st.Order != i {
			return fmt.Errorf("step %q has order %d at position %d", st.ID, st.Order, i)
		}
	}
	return nil
}

func (s *Store) commit(pool []Item, seq []AssignedStep) {
	renumber(seq)
	s.pool = pool
	s.sequence = seq
	s.revision++
}

// renumber assigns 0..n-1 in list order.
func renumber(seq []AssignedStep) {
	for i := range seq {
		seq[i].Order = i
	}
}

// Load builds the store for a freshly selected scope: persisted steps are
// hydrated from the catalog, sorted by their stored order and renumbered;
// the pool is every catalog item not in the sequence, in catalog order.
// Persisted steps whose item is missing from the catalog, or that repeat an
// item, are dropped and their ids returned.
func Load(scopeID string, catalog []Item, persisted []AssignedStep) (*Store, []string, error) {
	byID := make(map[string]Item, len(catalog))
	for _, it := range catalog {
		if _, ok := byID[it.ID]; ok {
			return nil, nil, fmt.Errorf("%w: %q in catalog", ErrDuplicateItem, it.ID)
		}
		byID[it.ID] = it
	}

	sorted := slices.Clone(persisted)
	slices.SortStableFunc(sorted, func(a, b AssignedStep) int { return a.Order - b.Order })

	var dropped []string
	assigned := make(map[string]struct{}, len(sorted))
	seq := make([]AssignedStep, 0, len(sorted))
	for _, st := range sorted {
		it, ok := byID[st.ID]
		if !ok {
			dropped = append(dropped, st.ID)
			continue
		}
		if _, dup := assigned[st.ID]; dup {
			dropped = append(dropped, st.ID)
			continue
		}
		assigned[st.ID] = struct{}{}
		seq = append(seq, AssignedStep{
			Item:    it,
			StepID:  st.StepID,
			Active:  st.Active,
			Pending: st.StepID == "",
		})
	}

	pool := make([]Item, 0, len(catalog)-len(seq))
	for _, it := range catalog {
		if _, ok := assigned[it.ID]; !ok {
			pool = append(pool, it)
		}
	}

	s, err := NewStore(scopeID, pool, seq)
	if err != nil {
		return nil, nil, err
	}
	return s, dropped, nil
}
