// internal/store/pending.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/autoflow/internal/types"
)

/*
 * Pending-action queue persistence.
 *
 * The status column is the only cross-invocation shared state besides the
 * execution uniqueness index. Every transition out of "pending" is a single
 * guarded UPDATE (status='pending' AND ack_token=?): the first transition
 * wins, racing confirmations observe zero rows and report a conflict.
 */

// CreatePendingAction inserts one pending row. Implements action.Sink so
// dispatch participates in the Runner's per-pair transaction.
func (tx *Tx) CreatePendingAction(ctx context.Context, p *types.PendingAction) error {
	if p.TenantID == "" {
		return types.ErrMissingTenant
	}

	_, err := tx.q.ExecTx(ctx, tx.tx, "insert-pending",
		p.ID, p.TenantID, p.RuleID, p.ExecutionID, p.ActionType,
		string(p.Params), p.Status, p.AckToken, p.CreatedAt, p.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert pending action: %w", err)
	}
	return nil
}

// RecordAnnotation writes the output of an internal bookkeeping action.
// Implements action.Sink.
func (tx *Tx) RecordAnnotation(ctx context.Context, a *types.Annotation) error {
	_, err := tx.q.ExecTx(ctx, tx.tx, "insert-annotation",
		a.ID, a.TenantID, a.RuleID, a.ExecutionID, a.Note, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert annotation: %w", err)
	}
	return nil
}

// ResolvePending performs the guarded pending->confirmed/rejected
// transition. Returns the number of rows moved (0 or 1); the caller
// distinguishes not-found, already-resolved, and acknowledgement mismatch.
func (tx *Tx) ResolvePending(ctx context.Context, tenantID types.TenantID, id types.PendingActionID, status types.PendingStatus, actor, ackToken string, now time.Time) (int64, error) {
	res, err := tx.q.ExecTx(ctx, tx.tx, "resolve-pending",
		status, actor, now, id, tenantID, ackToken,
	)
	if err != nil {
		return 0, fmt.Errorf("resolve pending action: %w", err)
	}
	return res.RowsAffected()
}

// InsertOutboxEntry writes the executed side effect for the UI collaborator
// to pick up.
func (tx *Tx) InsertOutboxEntry(ctx context.Context, o *types.OutboxEntry) error {
	_, err := tx.q.ExecTx(ctx, tx.tx, "insert-outbox",
		o.ID, o.TenantID, o.PendingID, o.ActionType, string(o.Params), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// MarkPendingExecuted moves a confirmed action to executed once its side
// effect is durably written. Guarded on status='confirmed'.
func (tx *Tx) MarkPendingExecuted(ctx context.Context, tenantID types.TenantID, id types.PendingActionID, now time.Time) error {
	res, err := tx.q.ExecTx(ctx, tx.tx, "mark-pending-executed", now, id, tenantID)
	if err != nil {
		return fmt.Errorf("mark pending executed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.ErrPendingNotFound
	}
	return nil
}

// GetPendingAction fetches one pending action scoped to the tenant.
func (s *Store) GetPendingAction(ctx context.Context, tenantID types.TenantID, id types.PendingActionID) (*types.PendingAction, error) {
	if tenantID == "" {
		return nil, types.ErrMissingTenant
	}

	var p types.PendingAction
	err := s.q.Get(ctx, "get-pending", &p, id, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrPendingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending action: %w", err)
	}
	return &p, nil
}

// ListPendingActions returns the tenant's open confirmation queue, oldest
// first.
func (s *Store) ListPendingActions(ctx context.Context, tenantID types.TenantID) ([]*types.PendingAction, error) {
	if tenantID == "" {
		return nil, types.ErrMissingTenant
	}

	var actions []*types.PendingAction
	if err := s.q.Select(ctx, "list-pending", &actions, tenantID); err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	return actions, nil
}

// ExpirePending sweeps every pending action past its TTL to expired.
// Returns the number of rows expired.
func (s *Store) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.q.Exec(ctx, "expire-pending", now, now)
	if err != nil {
		return 0, fmt.Errorf("expire pending actions: %w", err)
	}
	return res.RowsAffected()
}

// ListOutbox returns executed side effects for the tenant, oldest first.
func (s *Store) ListOutbox(ctx context.Context, tenantID types.TenantID) ([]*types.OutboxEntry, error) {
	if tenantID == "" {
		return nil, types.ErrMissingTenant
	}

	var entries []*types.OutboxEntry
	if err := s.q.Select(ctx, "list-outbox", &entries, tenantID); err != nil {
		return nil, fmt.Errorf("list outbox: %w", err)
	}
	return entries, nil
}

// ListAnnotations returns the tenant's annotations, oldest first.
func (s *Store) ListAnnotations(ctx context.Context, tenantID types.TenantID) ([]*types.Annotation, error) {
	if tenantID == "" {
		return nil, types.ErrMissingTenant
	}

	var notes []*types.Annotation
	if err := s.q.Select(ctx, "list-annotations", &notes, tenantID); err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	return notes, nil
}
