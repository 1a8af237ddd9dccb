// internal/engine/runner_test.go
package engine

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/autoflow/internal/action"
	"github.com/ledgerline/autoflow/internal/store"
	"github.com/ledgerline/autoflow/internal/types"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := store.Open("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, store.MigrateUp(db))

	st, err := store.New(db)
	require.NoError(t, err)
	return st
}

func newTestRunner(st *store.Store, readOnly bool) *Runner {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRunner(st, action.NewDispatcher(time.Hour), readOnly, 100, log)
}

func createTenant(t *testing.T, st *store.Store) types.TenantID {
	t.Helper()
	tenant := &types.Tenant{ID: types.NewTenantID(), Name: "acme", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateTenant(context.Background(), tenant))
	return tenant.ID
}

func createRule(t *testing.T, st *store.Store, tenantID types.TenantID, triggerType, conditions string, actions []types.ActionSpec) *types.Rule {
	t.Helper()
	now := time.Now().UTC()
	rule := &types.Rule{
		ID:          types.NewRuleID(),
		TenantID:    tenantID,
		Name:        "test rule",
		Enabled:     true,
		TriggerType: triggerType,
		Conditions:  json.RawMessage(conditions),
		Actions:     actions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, st.CreateRule(context.Background(), rule))
	return rule
}

func appendEvent(t *testing.T, st *store.Store, tenantID types.TenantID, evType, payload string) *types.Event {
	t.Helper()
	ev := &types.Event{
		ID:        types.NewEventID(),
		TenantID:  tenantID,
		Type:      evType,
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.AppendEvent(context.Background(), ev))
	return ev
}

// resetCursor simulates an overlapping invocation that starts before the
// first one advanced the cursor.
func resetCursor(t *testing.T, st *store.Store, tenantID types.TenantID) {
	t.Helper()
	_, err := st.DB().Exec(st.DB().Rebind("DELETE FROM cursors WHERE tenant_id = ?"), tenantID)
	require.NoError(t, err)
}

func TestProcessTenant_MatchCreatesPendingAction(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := createTenant(t, st)

	createRule(t, st, tenantID, "invoice.created",
		`{"op": "equals", "field": "status", "value": "overdue"}`,
		[]types.ActionSpec{{Type: "create_task", Params: map[string]any{"title": "chase"}}})
	appendEvent(t, st, tenantID, "invoice.created", `{"status": "overdue"}`)

	summary, err := newTestRunner(st, false).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.EventsSeen)
	require.Equal(t, 1, summary.RulesMatched)
	require.Equal(t, 1, summary.ActionsDispatched)
	require.Equal(t, 1, summary.PendingCreated)
	require.Equal(t, int64(1), summary.CursorPosition)

	pending, err := st.ListPendingActions(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "create_task", pending[0].ActionType)
	require.Equal(t, types.PendingStatusPending, pending[0].Status)
	require.NotEmpty(t, pending[0].AckToken)

	execs, err := st.ListExecutions(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, types.ExecutionDispatched, execs[0].Status)

	pos, err := st.GetCursor(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, int64(1), pos)
}

func TestProcessTenant_ConditionMissSkips(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := createTenant(t, st)

	createRule(t, st, tenantID, "",
		`{"op": "equals", "field": "status", "value": "overdue"}`,
		[]types.ActionSpec{{Type: "create_task"}})
	appendEvent(t, st, tenantID, "invoice.created", `{"status": "paid"}`)

	summary, err := newTestRunner(st, false).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Skipped)
	require.Zero(t, summary.RulesMatched)

	execs, err := st.ListExecutions(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, types.ExecutionSkipped, execs[0].Status)
	require.Equal(t, types.SkipReasonCondition, execs[0].Detail)

	pending, err := st.ListPendingActions(ctx, tenantID)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestProcessTenant_DuplicateDeliveryDispatchesOnce(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := createTenant(t, st)

	createRule(t, st, tenantID, "", `null`,
		[]types.ActionSpec{{Type: "create_task", Params: map[string]any{"title": "t"}}})
	appendEvent(t, st, tenantID, "e", `{}`)

	runner := newTestRunner(st, false)
	first, err := runner.ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, first.PendingCreated)

	// Second invocation over the same events: every claim is refused.
	resetCursor(t, st, tenantID)
	second, err := runner.ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, second.EventsSeen)
	require.Equal(t, 1, second.Duplicates)
	require.Zero(t, second.PendingCreated)

	pending, err := st.ListPendingActions(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	execs, err := st.ListExecutions(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
}

func TestProcessTenant_ReadOnlyObserves(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := createTenant(t, st)

	createRule(t, st, tenantID, "", `null`, []types.ActionSpec{{Type: "create_task"}})
	appendEvent(t, st, tenantID, "e", `{}`)

	summary, err := newTestRunner(st, true).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.True(t, summary.ReadOnly)
	require.Equal(t, 1, summary.Skipped)
	require.Zero(t, summary.PendingCreated)

	execs, err := st.ListExecutions(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, types.ExecutionSkipped, execs[0].Status)
	require.Equal(t, types.SkipReasonReadOnly, execs[0].Detail)

	pending, err := st.ListPendingActions(ctx, tenantID)
	require.NoError(t, err)
	require.Empty(t, pending)

	// The cursor advanced: leaving read-only mode does not re-dispatch.
	pos, err := st.GetCursor(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, int64(1), pos)

	resetCursor(t, st, tenantID)
	after, err := newTestRunner(st, false).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, after.Duplicates)
}

func TestProcessTenant_UnparseableRuleDisabled(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := createTenant(t, st)

	// Stored directly, bypassing write validation: simulates grammar
	// tightening after the rule was written.
	bad := createRule(t, st, tenantID, "", `{"op": "regex", "field": "x", "value": ".*"}`, nil)
	appendEvent(t, st, tenantID, "e", `{}`)

	summary, err := newTestRunner(st, false).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.EventsSeen)
	require.Zero(t, summary.RulesMatched)
	require.Zero(t, summary.Failed)

	got, err := st.GetRule(ctx, tenantID, bad.ID)
	require.NoError(t, err)
	require.False(t, got.Enabled)
	require.Contains(t, got.DisabledReason, "no longer parses")

	// Never evaluated: no execution entry at all.
	execs, err := st.ListExecutions(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Empty(t, execs)
}

func TestProcessTenant_TriggerTypeFilter(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := createTenant(t, st)

	createRule(t, st, tenantID, "invoice.created", `null`, []types.ActionSpec{{Type: "record_note", Params: map[string]any{"text": "n"}}})
	appendEvent(t, st, tenantID, "payment.received", `{}`)

	summary, err := newTestRunner(st, false).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.EventsSeen)
	require.Zero(t, summary.RulesMatched)
	require.Zero(t, summary.Skipped)

	// Filtered pairs never reach the execution log.
	execs, err := st.ListExecutions(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Empty(t, execs)
}

func TestProcessTenant_FailedPairContinues(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := createTenant(t, st)

	// Unknown action type stored directly: dispatch faults at run time.
	createRule(t, st, tenantID, "", `null`, []types.ActionSpec{{Type: "shell_exec"}})
	good := createRule(t, st, tenantID, "", `null`,
		[]types.ActionSpec{{Type: "record_note", Params: map[string]any{"text": "ok"}}})
	appendEvent(t, st, tenantID, "e", `{}`)

	summary, err := newTestRunner(st, false).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.RulesMatched)

	execs, err := st.ListExecutions(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Len(t, execs, 2)

	var failed, dispatched int
	for _, e := range execs {
		switch e.Status {
		case types.ExecutionFailed:
			failed++
			// Detail carries a correlation ID, never error text.
			require.NotEmpty(t, e.Detail)
			require.NotContains(t, e.Detail, "shell_exec")
		case types.ExecutionDispatched:
			dispatched++
			require.Equal(t, good.ID, e.RuleID)
		}
	}
	require.Equal(t, 1, failed)
	require.Equal(t, 1, dispatched)

	// The pass survived the fault and advanced the cursor.
	pos, err := st.GetCursor(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, int64(1), pos)

	notes, err := st.ListAnnotations(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "ok", notes[0].Note)
}

func TestProcessTenant_RecordNoteImmediate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := createTenant(t, st)

	createRule(t, st, tenantID, "", `null`,
		[]types.ActionSpec{{Type: "record_note", Params: map[string]any{"text": "seen"}}})
	appendEvent(t, st, tenantID, "e", `{}`)

	summary, err := newTestRunner(st, false).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 1, summary.ActionsDispatched)
	require.Zero(t, summary.PendingCreated)

	notes, err := st.ListAnnotations(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, notes, 1)

	pending, err := st.ListPendingActions(ctx, tenantID)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestProcessTenant_MultipleEventsAdvanceCursorInOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := createTenant(t, st)

	createRule(t, st, tenantID, "", `null`,
		[]types.ActionSpec{{Type: "record_note", Params: map[string]any{"text": "n"}}})
	for i := 0; i < 3; i++ {
		appendEvent(t, st, tenantID, "e", `{}`)
	}

	summary, err := newTestRunner(st, false).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, 3, summary.EventsSeen)
	require.Equal(t, int64(3), summary.CursorPosition)

	// A later pass starts after the cursor and sees nothing.
	again, err := newTestRunner(st, false).ProcessTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Zero(t, again.EventsSeen)
}

func TestTriggerRef_StableAndDistinct(t *testing.T) {
	ev := &types.Event{ID: types.NewEventID(), TenantID: types.NewTenantID(), Position: 7}
	require.Equal(t, TriggerRef(ev), TriggerRef(ev))

	other := &types.Event{ID: types.NewEventID(), TenantID: ev.TenantID, Position: 8}
	require.NotEqual(t, TriggerRef(ev), TriggerRef(other))
}

func TestProcessTenant_TenantsAreIsolated(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantA := createTenant(t, st)
	tenantB := createTenant(t, st)

	// Identical rules on both sides; each tenant's events match the other
	// tenant's rule just as well as its own.
	ruleA := createRule(t, st, tenantA, "invoice.created",
		`{"op": "equals", "field": "status", "value": "overdue"}`,
		[]types.ActionSpec{{Type: "create_task", Params: map[string]any{"title": "chase"}}})
	createRule(t, st, tenantB, "invoice.created",
		`{"op": "equals", "field": "status", "value": "overdue"}`,
		[]types.ActionSpec{{Type: "create_task", Params: map[string]any{"title": "chase"}}})

	appendEvent(t, st, tenantA, "invoice.created", `{"status": "overdue"}`)
	appendEvent(t, st, tenantB, "invoice.created", `{"status": "overdue"}`)
	appendEvent(t, st, tenantB, "invoice.created", `{"status": "overdue"}`)

	summary, err := newTestRunner(st, false).ProcessTenant(ctx, tenantA)
	require.NoError(t, err)

	// The pass for A saw only A's single event, not B's two.
	require.Equal(t, 1, summary.EventsSeen)
	require.Equal(t, 1, summary.PendingCreated)

	// Nothing leaked into B: no executions, no pending actions, cursor
	// untouched.
	execsB, err := st.ListExecutions(ctx, tenantB, 10)
	require.NoError(t, err)
	require.Empty(t, execsB)

	pendingB, err := st.ListPendingActions(ctx, tenantB)
	require.NoError(t, err)
	require.Empty(t, pendingB)

	posB, err := st.GetCursor(ctx, tenantB)
	require.NoError(t, err)
	require.Zero(t, posB)

	// A's executions reference only A's rule.
	execsA, err := st.ListExecutions(ctx, tenantA, 10)
	require.NoError(t, err)
	require.Len(t, execsA, 1)
	require.Equal(t, ruleA.ID, execsA[0].RuleID)

	// B's own pass still sees both of its events afterwards.
	summaryB, err := newTestRunner(st, false).ProcessTenant(ctx, tenantB)
	require.NoError(t, err)
	require.Equal(t, 2, summaryB.EventsSeen)
	require.Equal(t, 2, summaryB.PendingCreated)
}
