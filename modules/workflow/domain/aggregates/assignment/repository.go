package assignment

import "context"

// ItemCatalog lists the assignable items of a scope. Any error means no
// items; a partial list is never returned.
type ItemCatalog interface {
	ListItems(ctx context.Context, scopeID string) ([]Item, error)
}

// SequenceReader returns the previously saved sequence of a scope, ordered
// by Order, or an empty slice. Only ID is required on the embedded Item.
type SequenceReader interface {
	GetSequence(ctx context.Context, scopeID string) ([]AssignedStep, error)
}

// PersistenceGateway overwrites the stored sequence of a scope with steps.
type PersistenceGateway interface {
	SaveSequence(ctx context.Context, scopeID string, steps []StepRecord) ([]SavedStep, error)
}

type ScopeSearchService interface {
	Search(ctx context.Context, term string) ([]Scope, error)
}
