package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
)

// ScopeLookupService answers one-shot scope queries outside an editor
// session, e.g. for deep links into a specific client.
type ScopeLookupService struct {
	search assignment.ScopeSearchService
}

func NewScopeLookupService(search assignment.ScopeSearchService) *ScopeLookupService {
	return &ScopeLookupService{search: search}
}

// Lookup returns at most limit scopes matching term. A non-positive limit
// keeps whatever the search service returned.
func (s *ScopeLookupService) Lookup(ctx context.Context, term string, limit int) ([]assignment.Scope, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return []assignment.Scope{}, nil
	}
	scopes, err := s.search.Search(ctx, term)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", assignment.ErrSearchUnavailable, err)
	}
	if limit > 0 && len(scopes) > limit {
		scopes = scopes[:limit]
	}
	return scopes, nil
}

// Search lets the lookup stand in wherever a ScopeSearchService is expected.
func (s *ScopeLookupService) Search(ctx context.Context, term string) ([]assignment.Scope, error) {
	return s.Lookup(ctx, term, 0)
}
