package mappers

import (
	"errors"

	"github.com/google/uuid"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/presentation/viewmodels"
	"github.com/iota-uz/workflow-console/modules/workflow/services"
	"github.com/iota-uz/workflow-console/pkg/serrors"
)

func ItemToViewModel(i assignment.Item) viewmodels.Item {
	return viewmodels.Item{
		ID:       i.ID,
		Name:     i.Name,
		Kind:     i.Kind,
		Metadata: i.Metadata,
	}
}

func SnapshotToViewModel(s assignment.Snapshot) *viewmodels.Snapshot {
	vm := &viewmodels.Snapshot{
		ScopeID:  s.ScopeID,
		Pool:     make([]viewmodels.Item, 0, len(s.Pool)),
		Sequence: make([]viewmodels.Step, 0, len(s.Sequence)),
		Revision: s.Revision,
	}
	for _, it := range s.Pool {
		vm.Pool = append(vm.Pool, ItemToViewModel(it))
	}
	for _, st := range s.Sequence {
		vm.Sequence = append(vm.Sequence, viewmodels.Step{
			Item:    ItemToViewModel(st.Item),
			StepID:  st.StepID,
			Order:   st.Order,
			Active:  st.Active,
			Pending: st.Pending,
		})
	}
	return vm
}

// ErrorToProblem keeps the code of coded errors and hides everything else.
func ErrorToProblem(err error) *viewmodels.Problem {
	if err == nil {
		return nil
	}
	var base *serrors.BaseError
	if errors.As(err, &base) {
		return &viewmodels.Problem{Code: base.Code, Message: err.Error()}
	}
	return &viewmodels.Problem{Code: "INTERNAL_ERROR", Message: "internal error"}
}

func ViewToEditor(id uuid.UUID, v services.View) *viewmodels.Editor {
	vm := &viewmodels.Editor{
		SessionID: id.String(),
		State:     string(v.State),
		ScopeID:   v.ScopeID,
		Dirty:     v.Dirty,
		Saving:    v.Saving,
		LoadError: ErrorToProblem(v.LoadErr),
		SaveError: ErrorToProblem(v.SaveErr),
		Dropped:   v.Dropped,
	}
	if v.Snapshot != nil {
		vm.Snapshot = SnapshotToViewModel(*v.Snapshot)
	}
	return vm
}

func ScopeToViewModel(s assignment.Scope) viewmodels.Scope {
	return viewmodels.Scope{ID: s.ID, Name: s.Name, Metadata: s.Metadata}
}

func ScopesToViewModels(scopes []assignment.Scope) []viewmodels.Scope {
	out := make([]viewmodels.Scope, 0, len(scopes))
	for _, s := range scopes {
		out = append(out, ScopeToViewModel(s))
	}
	return out
}

func SearchToViewModel(v services.SearchView) *viewmodels.Search {
	return &viewmodels.Search{
		Term:       v.Term,
		State:      string(v.State),
		Generation: v.Generation,
		Results:    ScopesToViewModels(v.Results),
		Error:      ErrorToProblem(v.Err),
	}
}
