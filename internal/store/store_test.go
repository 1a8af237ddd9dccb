// internal/store/store_test.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgerline/autoflow/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, MigrateUp(db))

	st, err := New(db)
	require.NoError(t, err)
	return st
}

func newTestTenant(t *testing.T, st *Store) types.TenantID {
	t.Helper()
	tenant := &types.Tenant{
		ID:        types.NewTenantID(),
		Name:      "acme",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, st.CreateTenant(context.Background(), tenant))
	return tenant.ID
}

func newEvent(tenantID types.TenantID, evType, payload string) *types.Event {
	return &types.Event{
		ID:        types.NewEventID(),
		TenantID:  tenantID,
		Type:      evType,
		Payload:   json.RawMessage(payload),
		CreatedAt: time.Now().UTC(),
	}
}

func TestAppendEvent_AssignsSequentialPositions(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := newTestTenant(t, st)

	for i := 1; i <= 3; i++ {
		ev := newEvent(tenantID, "invoice.created", `{"n": 1}`)
		require.NoError(t, st.AppendEvent(ctx, ev))
		require.Equal(t, int64(i), ev.Position)
	}

	// Positions are per tenant, not global.
	otherID := newTestTenant(t, st)
	ev := newEvent(otherID, "invoice.created", `{}`)
	require.NoError(t, st.AppendEvent(ctx, ev))
	require.Equal(t, int64(1), ev.Position)
}

func TestAppendEvent_RejectsTenantless(t *testing.T) {
	st := newTestStore(t)
	ev := newEvent("", "invoice.created", `{}`)
	err := st.AppendEvent(context.Background(), ev)
	require.ErrorIs(t, err, types.ErrMissingTenant)
}

func TestAppendEvent_RejectsOversizedPayload(t *testing.T) {
	st := newTestStore(t)
	tenantID := newTestTenant(t, st)

	big := `{"data": "` + strings.Repeat("x", types.MaxPayloadSize) + `"}`
	err := st.AppendEvent(context.Background(), newEvent(tenantID, "big", big))
	require.ErrorIs(t, err, types.ErrPayloadTooLarge)
}

func TestEventsAfter(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := newTestTenant(t, st)

	for i := 0; i < 5; i++ {
		require.NoError(t, st.AppendEvent(ctx, newEvent(tenantID, "e", `{}`)))
	}

	events, err := st.EventsAfter(ctx, tenantID, 2, 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, int64(3), events[0].Position)
	require.Equal(t, int64(5), events[2].Position)

	limited, err := st.EventsAfter(ctx, tenantID, 0, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
}

func TestCursor_MonotonicNonDecreasing(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := newTestTenant(t, st)

	// Missing cursor reads as zero.
	pos, err := st.GetCursor(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, int64(0), pos)

	require.NoError(t, st.AdvanceCursor(ctx, tenantID, 5))
	pos, err = st.GetCursor(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, int64(5), pos)

	// A lower position silently loses; never an error, never a regression.
	require.NoError(t, st.AdvanceCursor(ctx, tenantID, 3))
	pos, err = st.GetCursor(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, int64(5), pos)

	require.NoError(t, st.AdvanceCursor(ctx, tenantID, 9))
	pos, err = st.GetCursor(ctx, tenantID)
	require.NoError(t, err)
	require.Equal(t, int64(9), pos)
}

func TestInsertExecution_ClaimOncePerTuple(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := newTestTenant(t, st)
	ruleID := types.NewRuleID()

	exec := func() *types.Execution {
		return &types.Execution{
			ID:         types.NewExecutionID(),
			TenantID:   tenantID,
			RuleID:     ruleID,
			TriggerRef: "ref-1",
			Status:     types.ExecutionMatched,
			CreatedAt:  time.Now().UTC(),
		}
	}

	err := st.WithTx(ctx, func(tx *Tx) error {
		claimed, err := tx.InsertExecution(ctx, exec())
		require.NoError(t, err)
		require.True(t, claimed)
		return nil
	})
	require.NoError(t, err)

	// Same tuple, fresh execution ID: the claim must be refused.
	err = st.WithTx(ctx, func(tx *Tx) error {
		claimed, err := tx.InsertExecution(ctx, exec())
		require.NoError(t, err)
		require.False(t, claimed)
		return nil
	})
	require.NoError(t, err)

	entries, err := st.ListExecutions(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestRule_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := newTestTenant(t, st)

	now := time.Now().UTC().Truncate(time.Second)
	rule := &types.Rule{
		ID:          types.NewRuleID(),
		TenantID:    tenantID,
		Name:        "overdue invoices",
		Enabled:     true,
		TriggerType: "invoice.created",
		Conditions:  json.RawMessage(`{"op": "equals", "field": "status", "value": "overdue"}`),
		Actions: []types.ActionSpec{
			{Type: "create_task", Params: map[string]any{"title": "chase payment"}},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, st.CreateRule(ctx, rule))

	got, err := st.GetRule(ctx, tenantID, rule.ID)
	require.NoError(t, err)
	require.Equal(t, rule.Name, got.Name)
	require.Equal(t, rule.TriggerType, got.TriggerType)
	require.Len(t, got.Actions, 1)
	require.Equal(t, "create_task", got.Actions[0].Type)

	// Tenant scoping: another tenant cannot see the rule.
	otherID := newTestTenant(t, st)
	_, err = st.GetRule(ctx, otherID, rule.ID)
	require.ErrorIs(t, err, types.ErrRuleNotFound)
}

func TestRule_DisableRecordsReason(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := newTestTenant(t, st)

	now := time.Now().UTC()
	rule := &types.Rule{
		ID:         types.NewRuleID(),
		TenantID:   tenantID,
		Name:       "r",
		Enabled:    true,
		Conditions: json.RawMessage(`null`),
		Actions:    []types.ActionSpec{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, st.CreateRule(ctx, rule))

	require.NoError(t, st.DisableRule(ctx, tenantID, rule.ID, "condition no longer parses"))

	got, err := st.GetRule(ctx, tenantID, rule.ID)
	require.NoError(t, err)
	require.False(t, got.Enabled)
	require.Equal(t, "condition no longer parses", got.DisabledReason)

	enabled, err := st.ListEnabledRules(ctx, tenantID)
	require.NoError(t, err)
	require.Empty(t, enabled)

	// Re-enabling clears the reason.
	require.NoError(t, st.SetRuleEnabled(ctx, tenantID, rule.ID, true, "ignored"))
	got, err = st.GetRule(ctx, tenantID, rule.ID)
	require.NoError(t, err)
	require.True(t, got.Enabled)
	require.Empty(t, got.DisabledReason)
}

func TestRule_NotFound(t *testing.T) {
	st := newTestStore(t)
	tenantID := newTestTenant(t, st)

	_, err := st.GetRule(context.Background(), tenantID, types.NewRuleID())
	require.ErrorIs(t, err, types.ErrRuleNotFound)

	err = st.SetRuleEnabled(context.Background(), tenantID, types.NewRuleID(), false, "x")
	require.ErrorIs(t, err, types.ErrRuleNotFound)
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, MigrateUp(db))
	require.NoError(t, MigrateUp(db))

	statuses, err := MigrateStatus(db)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	for _, s := range statuses {
		require.True(t, s.Applied, "migration %s not applied", s.ID)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	tenantID := newTestTenant(t, st)

	sentinel := errors.New("boom")
	err := st.WithTx(ctx, func(tx *Tx) error {
		claimed, err := tx.InsertExecution(ctx, &types.Execution{
			ID:         types.NewExecutionID(),
			TenantID:   tenantID,
			RuleID:     types.NewRuleID(),
			TriggerRef: "ref",
			Status:     types.ExecutionMatched,
			CreatedAt:  time.Now().UTC(),
		})
		require.NoError(t, err)
		require.True(t, claimed)
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	entries, err := st.ListExecutions(ctx, tenantID, 10)
	require.NoError(t, err)
	require.Empty(t, entries)
}
