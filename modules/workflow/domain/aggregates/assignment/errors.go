package assignment

import "github.com/iota-uz/workflow-console/pkg/serrors"

// Contract errors: the caller referenced an item inconsistent with the
// current state. The operation is rejected and state is left untouched.
var (
	ErrItemNotInPool     = serrors.NewError("ITEM_NOT_IN_POOL", "item is not in the pool", "Workflow.Errors.ItemNotInPool")
	ErrItemNotInSequence = serrors.NewError("ITEM_NOT_IN_SEQUENCE", "item is not in the sequence", "Workflow.Errors.ItemNotInSequence")
	ErrDuplicateItem     = serrors.NewError("DUPLICATE_ITEM", "item appears more than once", "Workflow.Errors.DuplicateItem")
)

// I/O errors: surfaced to the controller and retryable by the user.
var (
	ErrCatalogUnavailable = serrors.NewError("CATALOG_UNAVAILABLE", "item catalog unavailable", "Workflow.Errors.CatalogUnavailable")
	ErrReadUnavailable    = serrors.NewError("READ_UNAVAILABLE", "saved sequence unavailable", "Workflow.Errors.ReadUnavailable")
	ErrPersistenceFailure = serrors.NewError("PERSISTENCE_FAILURE", "saving the sequence failed", "Workflow.Errors.PersistenceFailure")
	ErrSearchUnavailable  = serrors.NewError("SEARCH_UNAVAILABLE", "scope search unavailable", "Workflow.Errors.SearchUnavailable")
)

var (
	ErrScopeNotFound = serrors.NewError("SCOPE_NOT_FOUND", "scope not found", "Workflow.Errors.ScopeNotFound")
	ErrNoActiveScope = serrors.NewError("NO_ACTIVE_SCOPE", "no scope is selected", "Workflow.Errors.NoActiveScope")
)
