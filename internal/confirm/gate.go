// Package confirm implements the human confirmation gate for pending
// actions.
//
// Every transition out of "pending" is a guarded UPDATE on status and ack
// token: exactly one caller wins, and everyone else observes a conflict.
// Confirmation is the only path by which a gated side effect becomes real,
// and even then the effect is an outbox row the UI collaborator picks up;
// the engine never calls collaborators directly.
package confirm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerline/autoflow/internal/metrics"
	"github.com/ledgerline/autoflow/internal/store"
	"github.com/ledgerline/autoflow/internal/types"
)

// Gate resolves pending actions on behalf of human reviewers.
type Gate struct {
	store *store.Store
	now   func() time.Time
	log   *slog.Logger
}

// NewGate creates a confirmation gate over the store.
func NewGate(st *store.Store, log *slog.Logger) *Gate {
	return &Gate{store: st, now: time.Now, log: log}
}

// ListPending returns the tenant's open confirmation queue, including the
// ack token the caller must echo back on confirm or reject.
func (g *Gate) ListPending(ctx context.Context, tenantID types.TenantID) ([]*types.PendingAction, error) {
	return g.store.ListPendingActions(ctx, tenantID)
}

// Confirm moves one pending action to confirmed and performs its side
// effect: an outbox insert plus the executed transition, in one transaction.
// Requires the ack token issued at dispatch; a stale or missing token fails
// closed with ErrAcknowledgementMismatch. A second confirm, a reject, or an
// expiry racing this call loses or wins atomically; losers get
// ErrAlreadyResolved.
func (g *Gate) Confirm(ctx context.Context, tenantID types.TenantID, id types.PendingActionID, actor, ackToken string) (*types.PendingAction, error) {
	p, err := g.store.GetPendingAction(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	now := g.now().UTC()
	err = g.store.WithTx(ctx, func(tx *store.Tx) error {
		rows, err := tx.ResolvePending(ctx, tenantID, id, types.PendingStatusConfirmed, actor, ackToken, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errLostRace
		}

		if err := tx.InsertOutboxEntry(ctx, &types.OutboxEntry{
			ID:         uuid.Must(uuid.NewV7()).String(),
			TenantID:   tenantID,
			PendingID:  id,
			ActionType: p.ActionType,
			Params:     p.Params,
			CreatedAt:  now,
		}); err != nil {
			return err
		}

		return tx.MarkPendingExecuted(ctx, tenantID, id, now)
	})
	if errors.Is(err, errLostRace) {
		return nil, g.classifyConflict(ctx, tenantID, id)
	}
	if err != nil {
		return nil, fmt.Errorf("confirm pending action: %w", err)
	}

	metrics.PendingResolved.WithLabelValues("confirmed").Inc()
	g.log.Info("pending action confirmed",
		"tenant", tenantID, "pending", id, "action_type", p.ActionType, "actor", actor)

	return g.store.GetPendingAction(ctx, tenantID, id)
}

// Reject moves one pending action to rejected. Terminal; the action can
// never be confirmed afterwards. Requires the ack token, same as Confirm.
func (g *Gate) Reject(ctx context.Context, tenantID types.TenantID, id types.PendingActionID, actor, ackToken string) (*types.PendingAction, error) {
	if _, err := g.store.GetPendingAction(ctx, tenantID, id); err != nil {
		return nil, err
	}

	now := g.now().UTC()
	err := g.store.WithTx(ctx, func(tx *store.Tx) error {
		rows, err := tx.ResolvePending(ctx, tenantID, id, types.PendingStatusRejected, actor, ackToken, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			return errLostRace
		}
		return nil
	})
	if errors.Is(err, errLostRace) {
		return nil, g.classifyConflict(ctx, tenantID, id)
	}
	if err != nil {
		return nil, fmt.Errorf("reject pending action: %w", err)
	}

	metrics.PendingResolved.WithLabelValues("rejected").Inc()
	g.log.Info("pending action rejected", "tenant", tenantID, "pending", id, "actor", actor)

	return g.store.GetPendingAction(ctx, tenantID, id)
}

// ExpireStale sweeps every pending action past its deadline to expired.
func (g *Gate) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	n, err := g.store.ExpirePending(ctx, now.UTC())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.PendingResolved.WithLabelValues("expired").Add(float64(n))
		g.log.Info("pending actions expired", "count", n)
	}
	return n, nil
}

// errLostRace marks a guarded update that moved zero rows; classifyConflict
// turns it into the precise sentinel.
var errLostRace = errors.New("pending transition lost race")

// classifyConflict distinguishes why a guarded transition moved nothing:
// the row is gone, already resolved, or the ack token did not match.
func (g *Gate) classifyConflict(ctx context.Context, tenantID types.TenantID, id types.PendingActionID) error {
	p, err := g.store.GetPendingAction(ctx, tenantID, id)
	if err != nil {
		return err
	}
	if p.Resolved() {
		return types.ErrAlreadyResolved
	}
	return types.ErrAcknowledgementMismatch
}
