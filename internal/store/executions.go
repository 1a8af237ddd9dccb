// internal/store/executions.go
package store

import (
	"context"
	"fmt"

	"github.com/ledgerline/autoflow/internal/types"
)

/*
 * Execution log persistence.
 *
 * The executions table is the append-only audit trail and the engine's sole
 * durable de-duplication mechanism. InsertExecution uses ON CONFLICT DO
 * NOTHING on the (tenant_id, rule_id, trigger_ref) unique index: the first
 * insert to commit wins; everyone else observes claimed=false and treats the
 * pair as already handled. This is the linearization point of the whole
 * engine.
 */

// InsertExecution attempts the insert-if-absent claim for one (rule, event)
// pair. Returns claimed=false when another invocation already holds the
// tuple; that is routine, not an error.
func (tx *Tx) InsertExecution(ctx context.Context, e *types.Execution) (claimed bool, err error) {
	if e.TenantID == "" {
		return false, types.ErrMissingTenant
	}

	res, err := tx.q.ExecTx(ctx, tx.tx, "insert-execution",
		e.ID, e.TenantID, e.RuleID, e.TriggerRef, e.Status, e.Detail, e.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert execution: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert execution rows: %w", err)
	}
	return n == 1, nil
}

// FinalizeExecution records the terminal status of a freshly claimed entry.
// Called exactly once per claim, inside the same transaction; after commit
// the entry is immutable audit history.
func (tx *Tx) FinalizeExecution(ctx context.Context, tenantID types.TenantID, id types.ExecutionID, status types.ExecutionStatus, detail string) error {
	_, err := tx.q.ExecTx(ctx, tx.tx, "finalize-execution", status, detail, id, tenantID)
	if err != nil {
		return fmt.Errorf("finalize execution: %w", err)
	}
	return nil
}

// ListExecutions returns the tenant's audit trail, newest first.
func (s *Store) ListExecutions(ctx context.Context, tenantID types.TenantID, limit int) ([]*types.Execution, error) {
	if tenantID == "" {
		return nil, types.ErrMissingTenant
	}

	var entries []*types.Execution
	if err := s.q.Select(ctx, "list-executions", &entries, tenantID, limit); err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return entries, nil
}
