package persistence

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
)

// RankScopes keeps the scopes whose name (or phone) fuzzily contains term and
// orders them by match distance. Equal distances keep their input order.
// A blank term returns scopes unchanged.
func RankScopes(term string, scopes []assignment.Scope, limit int) []assignment.Scope {
	term = strings.TrimSpace(term)
	if term == "" {
		return truncateScopes(scopes, limit)
	}

	best := make(map[int]int, len(scopes))
	consider := func(words []string, index []int) {
		for _, r := range fuzzy.RankFindNormalizedFold(term, words) {
			i := index[r.OriginalIndex]
			if d, ok := best[i]; !ok || r.Distance < d {
				best[i] = r.Distance
			}
		}
	}

	names := make([]string, len(scopes))
	nameIdx := make([]int, len(scopes))
	var phones []string
	var phoneIdx []int
	for i, s := range scopes {
		names[i] = s.Name
		nameIdx[i] = i
		if p := s.Metadata["phone"]; p != "" {
			phones = append(phones, p)
			phoneIdx = append(phoneIdx, i)
		}
	}
	consider(names, nameIdx)
	consider(phones, phoneIdx)

	hits := make([]int, 0, len(best))
	for i := range best {
		hits = append(hits, i)
	}
	sort.Slice(hits, func(a, b int) bool {
		da, db := best[hits[a]], best[hits[b]]
		if da != db {
			return da < db
		}
		return hits[a] < hits[b]
	})

	out := make([]assignment.Scope, 0, len(hits))
	for _, i := range hits {
		out = append(out, scopes[i])
	}
	return truncateScopes(out, limit)
}

func truncateScopes(scopes []assignment.Scope, limit int) []assignment.Scope {
	if limit > 0 && len(scopes) > limit {
		return scopes[:limit]
	}
	return scopes
}
