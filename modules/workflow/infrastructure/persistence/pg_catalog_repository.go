package persistence

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/infrastructure/persistence/models"
	"github.com/iota-uz/workflow-console/pkg/composables"
)

const (
	selectClientExistsQuery = `SELECT 1 FROM clients WHERE id = $1`

	selectBillableEntitiesQuery = `
		SELECT id::text, client_id::text, name, kind, COALESCE(phone, '')
		FROM billable_entities
		WHERE client_id = $1
		ORDER BY name, id`
)

// PgCatalogRepository lists the billable entities of a client.
type PgCatalogRepository struct{}

func NewPgCatalogRepository() *PgCatalogRepository {
	return &PgCatalogRepository{}
}

func (r *PgCatalogRepository) ListItems(ctx context.Context, scopeID string) ([]assignment.Item, error) {
	clientID, err := parseScopeID(scopeID)
	if err != nil {
		return nil, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	if err := ensureClientExists(ctx, tx, clientID); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, selectBillableEntitiesQuery, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query billable entities")
	}
	defer rows.Close()

	var items []assignment.Item
	for rows.Next() {
		var e models.BillableEntity
		if err := rows.Scan(&e.ID, &e.ClientID, &e.Name, &e.Kind, &e.Phone); err != nil {
			return nil, errors.Wrap(err, "failed to scan billable entity")
		}
		items = append(items, ToDomainItem(e))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate billable entities")
	}
	return items, nil
}

func parseScopeID(scopeID string) (uuid.UUID, error) {
	id, err := uuid.Parse(scopeID)
	if err != nil {
		return uuid.Nil, errors.Wrapf(assignment.ErrScopeNotFound, "invalid scope id %q", scopeID)
	}
	return id, nil
}

func ensureClientExists(ctx context.Context, tx composables.Tx, clientID uuid.UUID) error {
	var one int
	if err := tx.QueryRow(ctx, selectClientExistsQuery, clientID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(assignment.ErrScopeNotFound, "client %s", clientID)
		}
		return errors.Wrap(err, "failed to look up client")
	}
	return nil
}
