package assignment

// Snapshot is a detached copy of a Store's state. Mutating it has no effect
// on the store it came from.
type Snapshot struct {
	ScopeID  string
	Pool     []Item
	Sequence []AssignedStep
	Revision uint64
}

// Records returns the persisted form of the sequence.
func (s Snapshot) Records() []StepRecord {
	out := make([]StepRecord, 0, len(s.Sequence))
	for _, st := range s.Sequence {
		out = append(out, StepRecord{
			ItemID: st.ID,
			StepID: st.StepID,
			Order:  st.Order,
			Active: st.Active,
		})
	}
	return out
}

// IndexOf returns the sequence position of itemID, or -1.
func (s Snapshot) IndexOf(itemID string) int {
	for i, st := range s.Sequence {
		if st.ID == itemID {
			return i
		}
	}
	return -1
}

func (s Snapshot) InPool(itemID string) bool {
	for _, it := range s.Pool {
		if it.ID == itemID {
			return true
		}
	}
	return false
}

// ItemIDs lists every item id of the scope, pool first.
func (s Snapshot) ItemIDs() []string {
	out := make([]string, 0, len(s.Pool)+len(s.Sequence))
	for _, it := range s.Pool {
		out = append(out, it.ID)
	}
	for _, st := range s.Sequence {
		out = append(out, st.ID)
	}
	return out
}
