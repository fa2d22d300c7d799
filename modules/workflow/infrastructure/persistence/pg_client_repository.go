package persistence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"github.com/iota-uz/workflow-console/modules/workflow/domain/aggregates/assignment"
	"github.com/iota-uz/workflow-console/modules/workflow/infrastructure/persistence/models"
	"github.com/iota-uz/workflow-console/pkg/composables"
)

const (
	searchClientsQuery = `
		SELECT id::text, name, COALESCE(phone, '')
		FROM clients
		WHERE name ILIKE '%' || $1 || '%' OR phone ILIKE '%' || $1 || '%'
		ORDER BY lower(name), id
		LIMIT $2`

	selectClientQuery = `SELECT id::text, name, COALESCE(phone, '') FROM clients WHERE id = $1`

	upsertClientQuery = `
		INSERT INTO clients (id, name, phone)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, phone = EXCLUDED.phone`

	upsertBillableEntityQuery = `
		INSERT INTO billable_entities (id, client_id, name, kind, phone)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (id) DO UPDATE
		SET client_id = EXCLUDED.client_id, name = EXCLUDED.name, kind = EXCLUDED.kind, phone = EXCLUDED.phone`
)

// candidateFactor widens the SQL candidate set before fuzzy reranking.
const candidateFactor = 5

// PgClientRepository looks clients up for the scope picker and writes fixtures.
type PgClientRepository struct {
	limit int
}

func NewPgClientRepository(limit int) *PgClientRepository {
	if limit <= 0 {
		limit = 20
	}
	return &PgClientRepository{limit: limit}
}

func (r *PgClientRepository) Search(ctx context.Context, term string) ([]assignment.Scope, error) {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}
	rows, err := tx.Query(ctx, searchClientsQuery, term, r.limit*candidateFactor)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search clients")
	}
	defer rows.Close()

	var scopes []assignment.Scope
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone); err != nil {
			return nil, errors.Wrap(err, "failed to scan client")
		}
		scopes = append(scopes, ToDomainScope(c))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate clients")
	}
	return RankScopes(term, scopes, r.limit), nil
}

func (r *PgClientRepository) GetByID(ctx context.Context, scopeID string) (assignment.Scope, error) {
	clientID, err := parseScopeID(scopeID)
	if err != nil {
		return assignment.Scope{}, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return assignment.Scope{}, errors.Wrap(err, "failed to get transaction")
	}
	var c models.Client
	if err := tx.QueryRow(ctx, selectClientQuery, clientID).Scan(&c.ID, &c.Name, &c.Phone); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return assignment.Scope{}, errors.Wrapf(assignment.ErrScopeNotFound, "client %s", clientID)
		}
		return assignment.Scope{}, errors.Wrap(err, "failed to get client")
	}
	return ToDomainScope(c), nil
}

func (r *PgClientRepository) UpsertClient(ctx context.Context, c models.Client) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, upsertClientQuery, c.ID, c.Name, c.Phone); err != nil {
		return errors.Wrapf(err, "failed to upsert client %s", c.ID)
	}
	return nil
}

func (r *PgClientRepository) UpsertBillableEntity(ctx context.Context, e models.BillableEntity) error {
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to get transaction")
	}
	if _, err := tx.Exec(ctx, upsertBillableEntityQuery, e.ID, e.ClientID, e.Name, e.Kind, e.Phone); err != nil {
		return errors.Wrapf(err, "failed to upsert billable entity %s", e.ID)
	}
	return nil
}
