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
	selectWorkflowStepsQuery = `
		SELECT s.id::text, s.client_id::text, s.entity_id::text, e.name, e.kind, s.position, s.active, s.updated_at
		FROM workflow_steps s
		JOIN billable_entities e ON e.id = s.entity_id
		WHERE s.client_id = $1
		ORDER BY s.position`

	deleteDroppedStepsQuery = `
		DELETE FROM workflow_steps
		WHERE client_id = $1 AND NOT (entity_id::text = ANY($2::text[]))`

	// The select against billable_entities refuses entities owned by another client.
	upsertWorkflowStepQuery = `
		INSERT INTO workflow_steps (client_id, entity_id, position, active, updated_at)
		SELECT e.client_id, e.id, $3::integer, $4::boolean, now()
		FROM billable_entities e
		WHERE e.id = $2::uuid AND e.client_id = $1
		ON CONFLICT (client_id, entity_id) DO UPDATE
		SET
			position = EXCLUDED.position,
			active = EXCLUDED.active,
			updated_at = now()
		RETURNING id::text, entity_id::text`
)

// PgSequenceRepository reads and overwrites the saved step sequence of a client.
type PgSequenceRepository struct{}

func NewPgSequenceRepository() *PgSequenceRepository {
	return &PgSequenceRepository{}
}

func (r *PgSequenceRepository) GetSequence(ctx context.Context, scopeID string) ([]assignment.AssignedStep, error) {
	clientID, err := parseScopeID(scopeID)
	if err != nil {
		return nil, err
	}
	tx, err := composables.UseTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction")
	}

	rows, err := tx.Query(ctx, selectWorkflowStepsQuery, clientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query workflow steps")
	}
	defer rows.Close()

	steps := make([]assignment.AssignedStep, 0)
	for rows.Next() {
		var m models.WorkflowStep
		if err := rows.Scan(&m.ID, &m.ClientID, &m.EntityID, &m.Name, &m.Kind, &m.Position, &m.Active, &m.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan workflow step")
		}
		steps = append(steps, ToDomainStep(m))
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate workflow steps")
	}
	return steps, nil
}

// SaveSequence replaces the client's steps with steps inside one transaction.
// Existing rows keep their id; new rows get one. The returned pairs cover
// every step in input order.
func (r *PgSequenceRepository) SaveSequence(ctx context.Context, scopeID string, steps []assignment.StepRecord) ([]assignment.SavedStep, error) {
	clientID, err := parseScopeID(scopeID)
	if err != nil {
		return nil, err
	}

	return composables.InTxResult(ctx, func(txCtx context.Context) ([]assignment.SavedStep, error) {
		tx, err := composables.UseTx(txCtx)
		if err != nil {
			return nil, errors.Wrap(err, "failed to get transaction")
		}
		if err := ensureClientExists(txCtx, tx, clientID); err != nil {
			return nil, err
		}

		if _, err := tx.Exec(txCtx, deleteDroppedStepsQuery, clientID, keptEntityIDs(steps)); err != nil {
			return nil, errors.Wrap(err, "failed to delete dropped workflow steps")
		}

		br := tx.SendBatch(txCtx, upsertStepsBatch(clientID, steps))
		saved := make([]assignment.SavedStep, 0, len(steps))
		for _, s := range steps {
			var out assignment.SavedStep
			if err := br.QueryRow().Scan(&out.StepID, &out.ItemID); err != nil {
				_ = br.Close()
				if errors.Is(err, pgx.ErrNoRows) {
					return nil, errors.Errorf("entity %s does not belong to client %s", s.ItemID, clientID)
				}
				return nil, errors.Wrapf(err, "failed to upsert workflow step %s", s.ItemID)
			}
			saved = append(saved, out)
		}
		if err := br.Close(); err != nil {
			return nil, errors.Wrap(err, "failed to close workflow step batch")
		}
		return saved, nil
	})
}

// keptEntityIDs lists the entity ids that survive a save; every other step of
// the client is deleted.
func keptEntityIDs(steps []assignment.StepRecord) []string {
	keep := make([]string, 0, len(steps))
	for _, s := range steps {
		keep = append(keep, s.ItemID)
	}
	return keep
}

// upsertStepsBatch queues one upsert per step in input order, so batch
// results line up with steps.
func upsertStepsBatch(clientID uuid.UUID, steps []assignment.StepRecord) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, s := range steps {
		batch.Queue(upsertWorkflowStepQuery, clientID, s.ItemID, s.Order, s.Active)
	}
	return batch
}
