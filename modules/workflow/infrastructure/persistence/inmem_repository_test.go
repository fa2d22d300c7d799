package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/infrastructure/persistence/models"
)

func seededRepo(t *testing.T) *InmemRepository {
	t.Helper()
	ctx := context.Background()
	repo := NewInmemRepository(10)
	require.NoError(t, repo.UpsertClient(ctx, models.Client{ID: "c1", Name: "Acme", Phone: "+100"}))
	require.NoError(t, repo.UpsertClient(ctx, models.Client{ID: "c2", Name: "Beta"}))
	for _, e := range []models.BillableEntity{
		{ID: "a", ClientID: "c1", Name: "A", Kind: "unit"},
		{ID: "b", ClientID: "c1", Name: "B", Kind: "unit"},
		{ID: "c", ClientID: "c1", Name: "C", Kind: "unit"},
		{ID: "z", ClientID: "c2", Name: "Z"},
	} {
		require.NoError(t, repo.UpsertBillableEntity(ctx, e))
	}
	return repo
}

func TestInmemRepository_ListItems(t *testing.T) {
	repo := seededRepo(t)

	items, err := repo.ListItems(context.Background(), "c1")
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, "a", items[0].ID)
	require.Equal(t, "c", items[2].ID)

	_, err = repo.ListItems(context.Background(), "missing")
	require.ErrorIs(t, err, assignment.ErrScopeNotFound)
}

func TestInmemRepository_SaveAndReadSequence(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t)

	seq, err := repo.GetSequence(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, seq)

	saved, err := repo.SaveSequence(ctx, "c1", []assignment.StepRecord{
		{ItemID: "c", Order: 0, Active: true},
		{ItemID: "a", Order: 1, Active: false},
	})
	require.NoError(t, err)
	require.Len(t, saved, 2)
	require.Equal(t, "c", saved[0].ItemID)
	require.NotEmpty(t, saved[0].StepID)
	firstID := saved[0].StepID

	seq, err = repo.GetSequence(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, seq, 2)
	require.Equal(t, "c", seq[0].ID)
	require.Equal(t, "C", seq[0].Name)
	require.Equal(t, 1, seq[1].Order)
	require.False(t, seq[1].Active)

	// Re-saving keeps durable ids and drops steps that are no longer listed.
	saved, err = repo.SaveSequence(ctx, "c1", []assignment.StepRecord{
		{ItemID: "c", Order: 0, Active: true},
	})
	require.NoError(t, err)
	require.Equal(t, firstID, saved[0].StepID)

	seq, err = repo.GetSequence(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, seq, 1)
}

func TestInmemRepository_SaveRejectsForeignEntities(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t)

	_, err := repo.SaveSequence(ctx, "c1", []assignment.StepRecord{{ItemID: "z", Order: 0}})
	require.Error(t, err)

	_, err = repo.SaveSequence(ctx, "c1", []assignment.StepRecord{
		{ItemID: "a", Order: 0},
		{ItemID: "a", Order: 1},
	})
	require.ErrorIs(t, err, assignment.ErrDuplicateItem)

	seq, err := repo.GetSequence(ctx, "c1")
	require.NoError(t, err)
	require.Empty(t, seq)
}

func TestInmemRepository_SearchAndGet(t *testing.T) {
	ctx := context.Background()
	repo := seededRepo(t)

	scopes, err := repo.Search(ctx, "acm")
	require.NoError(t, err)
	require.Len(t, scopes, 1)
	require.Equal(t, "c1", scopes[0].ID)
	require.Equal(t, "+100", scopes[0].Metadata["phone"])

	s, err := repo.GetByID(ctx, "c2")
	require.NoError(t, err)
	require.Equal(t, "Beta", s.Name)

	_, err = repo.GetByID(ctx, "nope")
	require.ErrorIs(t, err, assignment.ErrScopeNotFound)
}

func TestInmemRepository_UpsertEntityNeedsClient(t *testing.T) {
	repo := NewInmemRepository(0)
	err := repo.UpsertBillableEntity(context.Background(), models.BillableEntity{ID: "x", ClientID: "ghost"})
	require.ErrorIs(t, err, assignment.ErrScopeNotFound)
}
