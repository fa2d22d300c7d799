package persistence

import (
	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/infrastructure/persistence/models"
)

func phoneMetadata(phone string) map[string]string {
	if phone == "" {
		return nil
	}
	return map[string]string{"phone": phone}
}

func ToDomainScope(c models.Client) assignment.Scope {
	return assignment.Scope{
		ID:       c.ID,
		Name:     c.Name,
		Metadata: phoneMetadata(c.Phone),
	}
}

func ToDomainItem(e models.BillableEntity) assignment.Item {
	return assignment.Item{
		ID:       e.ID,
		Name:     e.Name,
		Kind:     e.Kind,
		Metadata: phoneMetadata(e.Phone),
	}
}

func ToDomainStep(s models.WorkflowStep) assignment.AssignedStep {
	return assignment.AssignedStep{
		Item: assignment.Item{
			ID:   s.EntityID,
			Name: s.Name,
			Kind: s.Kind,
		},
		StepID: s.ID,
		Order:  s.Position,
		Active: s.Active,
	}
}

func ToCachedItems(items []assignment.Item) []models.CachedItem {
	out := make([]models.CachedItem, 0, len(items))
	for _, it := range items {
		out = append(out, models.CachedItem{
			ID:       it.ID,
			Name:     it.Name,
			Kind:     it.Kind,
			Metadata: it.Metadata,
		})
	}
	return out
}

func FromCachedItems(cached []models.CachedItem) []assignment.Item {
	out := make([]assignment.Item, 0, len(cached))
	for _, c := range cached {
		out = append(out, assignment.Item{
			ID:       c.ID,
			Name:     c.Name,
			Kind:     c.Kind,
			Metadata: c.Metadata,
		})
	}
	return out
}
