// internal/engine/runner.go
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ledgerline/autoflow/internal/action"
	"github.com/ledgerline/autoflow/internal/condition"
	"github.com/ledgerline/autoflow/internal/metrics"
	"github.com/ledgerline/autoflow/internal/store"
	"github.com/ledgerline/autoflow/internal/types"
)

/*
 * Engine runner.
 *
 * One pass reads the tenant's events after its cursor, evaluates every
 * enabled rule against every event, and dispatches actions for matches. The
 * execution-log insert is the linearization point: overlapping invocations
 * race on UNIQUE (tenant_id, rule_id, trigger_ref) and exactly one wins each
 * pair.
 *
 * Failure handling is asymmetric on purpose:
 *   - pair faults are fail-soft: the pair's transaction rolls back, a fresh
 *     failed execution with a correlation ID is recorded, and the pass
 *     continues with the next pair
 *   - cursor faults are fail-stop: without a durable cursor the pass cannot
 *     guarantee forward progress, so it aborts
 */

// Summary reports what one tenant pass did.
type Summary struct {
	TenantID          types.TenantID `json:"tenantId"`
	ReadOnly          bool           `json:"readOnly"`
	EventsSeen        int            `json:"eventsSeen"`
	RulesMatched      int            `json:"rulesMatched"`
	ActionsDispatched int            `json:"actionsDispatched"`
	PendingCreated    int            `json:"pendingCreated"`
	Skipped           int            `json:"skipped"`
	Failed            int            `json:"failed"`
	Duplicates        int            `json:"duplicates"`
	CursorPosition    int64          `json:"cursorPosition"`
}

// Runner drives engine passes over a tenant's event log.
type Runner struct {
	store      *store.Store
	dispatcher *action.Dispatcher
	readOnly   bool
	maxBatch   int
	log        *slog.Logger
}

// NewRunner creates a runner. In read-only mode it still claims executions
// and advances cursors but creates no pending actions.
func NewRunner(st *store.Store, d *action.Dispatcher, readOnly bool, maxBatch int, log *slog.Logger) *Runner {
	if maxBatch <= 0 {
		maxBatch = types.MaxEventBatchSize
	}
	return &Runner{
		store:      st,
		dispatcher: d,
		readOnly:   readOnly,
		maxBatch:   maxBatch,
		log:        log,
	}
}

// compiledRule pairs a rule with its parsed condition tree for the pass.
type compiledRule struct {
	rule *types.Rule
	tree *condition.Node
}

// ProcessTenant runs one engine pass for the tenant.
func (r *Runner) ProcessTenant(ctx context.Context, tenantID types.TenantID) (Summary, error) {
	start := time.Now()
	defer func() {
		metrics.RunDuration.Observe(time.Since(start).Seconds())
	}()

	summary := Summary{TenantID: tenantID, ReadOnly: r.readOnly}

	cursor, err := r.store.GetCursor(ctx, tenantID)
	if err != nil {
		return summary, fmt.Errorf("load cursor: %w", err)
	}
	summary.CursorPosition = cursor

	events, err := r.store.EventsAfter(ctx, tenantID, cursor, r.maxBatch)
	if err != nil {
		return summary, fmt.Errorf("load events: %w", err)
	}

	rules, err := r.loadRules(ctx, tenantID)
	if err != nil {
		return summary, fmt.Errorf("load rules: %w", err)
	}

	for _, ev := range events {
		summary.EventsSeen++

		for _, cr := range rules {
			if !triggerMatches(cr.rule.TriggerType, ev.Type) {
				continue
			}

			res, err := r.processPair(ctx, cr, ev)
			if err != nil {
				corrID := r.recordFailure(ctx, cr.rule, ev)
				summary.Failed++
				metrics.Executions.WithLabelValues(string(types.ExecutionFailed)).Inc()
				r.log.Error("rule execution failed",
					"tenant", tenantID, "rule", cr.rule.ID, "event", ev.ID,
					"correlation_id", corrID, "error", err)
				continue
			}
			res.apply(&summary)
		}

		// Cursor persistence is the one fault we cannot continue past:
		// an unadvanced cursor would replay this event forever.
		if err := r.store.AdvanceCursor(ctx, tenantID, ev.Position); err != nil {
			return summary, fmt.Errorf("advance cursor to %d: %w", ev.Position, err)
		}
		summary.CursorPosition = ev.Position
	}

	return summary, nil
}

// loadRules fetches the tenant's enabled rules and parses their condition
// trees. A rule that no longer parses is disabled with a reason and dropped
// from the pass; it is never evaluated and never silently skipped.
func (r *Runner) loadRules(ctx context.Context, tenantID types.TenantID) ([]compiledRule, error) {
	rules, err := r.store.ListEnabledRules(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		tree, err := condition.Parse(rule.Conditions)
		if err != nil {
			reason := fmt.Sprintf("condition no longer parses: %v", err)
			if derr := r.store.DisableRule(ctx, tenantID, rule.ID, reason); derr != nil {
				return nil, fmt.Errorf("disable unparseable rule %s: %w", rule.ID, derr)
			}
			metrics.RulesDisabled.Inc()
			r.log.Warn("rule disabled", "tenant", tenantID, "rule", rule.ID, "reason", reason)
			continue
		}
		compiled = append(compiled, compiledRule{rule: rule, tree: tree})
	}
	return compiled, nil
}

// triggerMatches applies the rule's event-type filter. Empty means all types.
func triggerMatches(triggerType, eventType string) bool {
	return triggerType == "" || triggerType == eventType
}

// pairResult is the outcome of one claimed (rule, event) pair.
type pairResult struct {
	duplicate  bool
	matched    bool
	skipped    bool
	dispatched int
	pending    int
}

func (p pairResult) apply(s *Summary) {
	switch {
	case p.duplicate:
		s.Duplicates++
		metrics.DuplicateClaims.Inc()
	case p.skipped:
		s.Skipped++
		metrics.Executions.WithLabelValues(string(types.ExecutionSkipped)).Inc()
	default:
		s.RulesMatched++
		s.ActionsDispatched += p.dispatched
		s.PendingCreated += p.pending
		metrics.Executions.WithLabelValues(string(types.ExecutionDispatched)).Inc()
	}
}

// processPair handles one (rule, event) pair in a single transaction: claim,
// evaluate, dispatch, finalize. Any error rolls the whole pair back.
func (r *Runner) processPair(ctx context.Context, cr compiledRule, ev *types.Event) (pairResult, error) {
	// Both sides were queried by tenant; a mismatch here means storage
	// corruption and the pair must not proceed.
	if cr.rule.TenantID != ev.TenantID {
		return pairResult{}, types.ErrTenantMismatch
	}

	var res pairResult
	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		exec := &types.Execution{
			ID:         types.NewExecutionID(),
			TenantID:   ev.TenantID,
			RuleID:     cr.rule.ID,
			TriggerRef: TriggerRef(ev),
			Status:     types.ExecutionMatched,
			CreatedAt:  time.Now().UTC(),
		}

		claimed, err := tx.InsertExecution(ctx, exec)
		if err != nil {
			return err
		}
		if !claimed {
			res.duplicate = true
			return nil
		}

		if r.readOnly {
			res.skipped = true
			return tx.FinalizeExecution(ctx, ev.TenantID, exec.ID, types.ExecutionSkipped, types.SkipReasonReadOnly)
		}

		matched, err := condition.Evaluate(cr.tree, ev.Payload)
		if err != nil {
			return fmt.Errorf("evaluate conditions: %w", err)
		}
		if !matched {
			res.skipped = true
			return tx.FinalizeExecution(ctx, ev.TenantID, exec.ID, types.ExecutionSkipped, types.SkipReasonCondition)
		}
		res.matched = true

		for _, spec := range cr.rule.Actions {
			outcome, err := r.dispatcher.Dispatch(ctx, tx, cr.rule, spec, exec.ID)
			if err != nil {
				return fmt.Errorf("dispatch %s: %w", spec.Type, err)
			}
			res.dispatched++
			if outcome == action.OutcomePending {
				res.pending++
				metrics.PendingCreated.WithLabelValues(spec.Type).Inc()
			}
		}

		return tx.FinalizeExecution(ctx, ev.TenantID, exec.ID, types.ExecutionDispatched, "")
	})
	if err != nil {
		return pairResult{}, err
	}
	return res, nil
}

// recordFailure writes a fresh failed execution for a pair whose transaction
// rolled back. The detail column carries only a correlation ID; error text
// stays in the logs.
func (r *Runner) recordFailure(ctx context.Context, rule *types.Rule, ev *types.Event) string {
	corrID := types.NewCorrelationID()
	err := r.store.WithTx(ctx, func(tx *store.Tx) error {
		_, err := tx.InsertExecution(ctx, &types.Execution{
			ID:         types.NewExecutionID(),
			TenantID:   ev.TenantID,
			RuleID:     rule.ID,
			TriggerRef: TriggerRef(ev),
			Status:     types.ExecutionFailed,
			Detail:     corrID,
			CreatedAt:  time.Now().UTC(),
		})
		return err
	})
	if err != nil {
		r.log.Error("failed execution record not written",
			"tenant", ev.TenantID, "rule", rule.ID, "correlation_id", corrID, "error", err)
	}
	return corrID
}
