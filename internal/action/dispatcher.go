// internal/action/dispatcher.go
package action

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/autoflow/internal/types"
)

/*
 * Action dispatch.
 *
 * Dispatch maps one allow-listed action spec to its outcome:
 *   - internal bookkeeping (record_note) executes immediately through the
 *     sink, inside the caller's transaction
 *   - everything else creates exactly one PendingAction row in "pending"
 *     state; the side effect happens only after the confirm gate
 *
 * The dispatcher performs no network calls and never mutates collaborator
 * data. Unknown action types should have been rejected at rule-write time;
 * they are still rejected here so a tampered rule row fails instead of
 * executing.
 */

// Sink receives dispatch writes. Implemented by the store's transaction so
// dispatch participates in the per-pair unit of work.
type Sink interface {
	CreatePendingAction(ctx context.Context, p *types.PendingAction) error
	RecordAnnotation(ctx context.Context, a *types.Annotation) error
}

// Outcome describes what one dispatch produced.
type Outcome int

const (
	// OutcomePending means a pending-confirmation record was created.
	OutcomePending Outcome = iota
	// OutcomeExecuted means an internal action completed immediately.
	OutcomeExecuted
)

// Dispatcher creates pending actions and executes internal ones.
type Dispatcher struct {
	pendingTTL time.Duration
	now        func() time.Time
}

// NewDispatcher creates a dispatcher whose pending actions expire after ttl.
func NewDispatcher(pendingTTL time.Duration) *Dispatcher {
	return &Dispatcher{
		pendingTTL: pendingTTL,
		now:        time.Now,
	}
}

// Dispatch performs one action spec for a matched (rule, event) pair.
func (d *Dispatcher) Dispatch(ctx context.Context, sink Sink, rule *types.Rule, spec types.ActionSpec, execID types.ExecutionID) (Outcome, error) {
	switch {
	case internalTypes[spec.Type]:
		return OutcomeExecuted, d.recordNote(ctx, sink, rule, spec, execID)

	case gated[spec.Type]:
		return OutcomePending, d.createPending(ctx, sink, rule, spec, execID)

	default:
		return 0, fmt.Errorf("%w: %q", types.ErrUnknownActionType, spec.Type)
	}
}

// createPending writes exactly one pending row for a confirm-gated action.
// The acknowledgement token is generated here and surfaced only through
// list_pending; confirmation without it fails closed.
func (d *Dispatcher) createPending(ctx context.Context, sink Sink, rule *types.Rule, spec types.ActionSpec, execID types.ExecutionID) error {
	params, err := json.Marshal(FilterParams(spec.Type, spec.Params))
	if err != nil {
		return fmt.Errorf("marshal action params: %w", err)
	}

	now := d.now().UTC()
	return sink.CreatePendingAction(ctx, &types.PendingAction{
		ID:          types.NewPendingActionID(),
		TenantID:    rule.TenantID,
		RuleID:      rule.ID,
		ExecutionID: execID,
		ActionType:  spec.Type,
		Params:      params,
		Status:      types.PendingStatusPending,
		AckToken:    uuid.NewString(),
		CreatedAt:   now,
		ExpiresAt:   now.Add(d.pendingTTL),
	})
}

// recordNote executes the one internal bookkeeping action immediately.
func (d *Dispatcher) recordNote(ctx context.Context, sink Sink, rule *types.Rule, spec types.ActionSpec, execID types.ExecutionID) error {
	text, _ := spec.Params["text"].(string)
	return sink.RecordAnnotation(ctx, &types.Annotation{
		ID:          uuid.Must(uuid.NewV7()).String(),
		TenantID:    rule.TenantID,
		RuleID:      rule.ID,
		ExecutionID: execID,
		Note:        text,
		CreatedAt:   d.now().UTC(),
	})
}
