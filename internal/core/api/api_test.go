// internal/core/api/api_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/autoflow/internal/action"
	"github.com/ledgerline/autoflow/internal/confirm"
	"github.com/ledgerline/autoflow/internal/core/auth"
	"github.com/ledgerline/autoflow/internal/core/config"
	"github.com/ledgerline/autoflow/internal/engine"
	"github.com/ledgerline/autoflow/internal/store"
	"github.com/ledgerline/autoflow/internal/types"
)

const testSecretID = "0191b2c3d4e5f60718293a4b5c6d7e8f"

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type testAPI struct {
	router http.Handler
	store  *store.Store
	tenant types.TenantID
	apiKey string
	keyID  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	ctx := context.Background()

	db, err := store.Open("sqlite://" + filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, store.MigrateUp(db))

	st, err := store.New(db)
	require.NoError(t, err)

	tenant := &types.Tenant{ID: types.NewTenantID(), Name: "acme", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateTenant(ctx, tenant))

	apiKey := auth.FormatAPIKey(testSecretID, strings.Repeat("ab", 32))
	keyID := uuid.Must(uuid.NewV7()).String()
	require.NoError(t, st.InsertAPIKey(ctx, &types.APIKey{
		ID:        keyID,
		TenantID:  tenant.ID,
		SecretID:  testSecretID,
		KeyHash:   auth.ComputeHMAC(testSecret, apiKey),
		CreatedAt: time.Now().UTC(),
	}))

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.DefaultConfig()
	cfg.MaxBatchSize = 10

	runner := engine.NewRunner(st, action.NewDispatcher(time.Hour), false, cfg.MaxBatchSize, log)
	gate := confirm.NewGate(st, log)
	service, err := NewService(st, runner, gate, cfg, log)
	require.NoError(t, err)

	authenticator := auth.NewAuthenticator(map[string][]byte{testSecretID: testSecret}, st.Queries())

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authenticator.Middleware)
		r.Post("/events", service.IngestEvents)
		r.Post("/run", service.Run)
		r.Get("/executions", service.ListExecutions)
		r.Route("/rules", func(r chi.Router) {
			r.Post("/", service.CreateRule)
			r.Get("/", service.ListRules)
			r.Get("/{id}", service.GetRule)
			r.Put("/{id}", service.UpdateRule)
			r.Post("/{id}/enable", service.EnableRule)
			r.Post("/{id}/disable", service.DisableRule)
		})
		r.Route("/pending", func(r chi.Router) {
			r.Get("/", service.ListPending)
			r.Post("/{id}/confirm", service.ConfirmPending)
			r.Post("/{id}/reject", service.RejectPending)
		})
	})

	return &testAPI{router: r, store: st, tenant: tenant.ID, apiKey: apiKey, keyID: keyID}
}

func (a *testAPI) do(t *testing.T, method, path string, body any, withKey bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if withKey {
		req.Header.Set("X-Api-Key", a.apiKey)
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestAuth_MissingKey(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/v1/rules/", nil, false)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_BogusKey(t *testing.T) {
	a := newTestAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/rules/", nil)
	req.Header.Set("X-Api-Key", "af-v1-"+testSecretID+"-"+strings.Repeat("ff", 32))
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_RevokedKey(t *testing.T) {
	a := newTestAPI(t)
	require.NoError(t, a.store.RevokeAPIKey(context.Background(), a.tenant, a.keyID))

	rec := a.do(t, http.MethodGet, "/api/v1/rules/", nil, true)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateRule_RejectsUnknownAction(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/rules/", map[string]any{
		"name":    "bad",
		"actions": []map[string]any{{"type": "send_email"}},
	}, true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rules, err := a.store.ListRules(context.Background(), a.tenant)
	require.NoError(t, err)
	require.Empty(t, rules, "rejected rule must never be persisted")
}

func TestCreateRule_RejectsUnknownOperator(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/rules/", map[string]any{
		"name":       "bad",
		"conditions": map[string]any{"op": "regex", "field": "x", "value": ".*"},
		"actions":    []map[string]any{{"type": "record_note"}},
	}, true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateRule_RejectsForbiddenParamKey(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/rules/", map[string]any{
		"name":    "bad",
		"actions": []map[string]any{{"type": "create_task", "params": map[string]any{"title": "t", "script": "x"}}},
	}, true)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestIngest_BatchTooLarge(t *testing.T) {
	a := newTestAPI(t)

	events := make([]map[string]any, 11)
	for i := range events {
		events[i] = map[string]any{"type": "e", "payload": map[string]any{}}
	}
	rec := a.do(t, http.MethodPost, "/api/v1/events", map[string]any{"events": events}, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_PartialSuccess(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"events": []map[string]any{
			{"type": "invoice.created", "payload": map[string]any{"status": "overdue"}},
			{"payload": map[string]any{}},
		},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[struct {
		Accepted int `json:"accepted"`
		Results  []struct {
			Accepted bool   `json:"accepted"`
			Error    string `json:"error"`
		} `json:"results"`
	}](t, rec)
	require.Equal(t, 1, body.Accepted)
	require.True(t, body.Results[0].Accepted)
	require.False(t, body.Results[1].Accepted)
	require.Contains(t, body.Results[1].Error, "type required")
}

func TestEndToEnd_IngestRunConfirm(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/rules/", map[string]any{
		"name":        "overdue chaser",
		"triggerType": "invoice.created",
		"conditions":  map[string]any{"op": "equals", "field": "status", "value": "overdue"},
		"actions":     []map[string]any{{"type": "create_task", "params": map[string]any{"title": "chase"}}},
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"events": []map[string]any{
			{"type": "invoice.created", "payload": map[string]any{"status": "overdue"}},
		},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/run", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[engine.Summary](t, rec)
	require.Equal(t, 1, summary.PendingCreated)

	rec = a.do(t, http.MethodGet, "/api/v1/pending/", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	pendingList := decode[struct {
		Pending []types.PendingAction `json:"pending"`
	}](t, rec)
	require.Len(t, pendingList.Pending, 1)
	p := pendingList.Pending[0]

	confirmBody := map[string]any{"actor": "reviewer@acme", "ackToken": p.AckToken}
	rec = a.do(t, http.MethodPost, "/api/v1/pending/"+string(p.ID)+"/confirm", confirmBody, true)
	require.Equal(t, http.StatusOK, rec.Code)
	resolved := decode[types.PendingAction](t, rec)
	require.Equal(t, types.PendingStatusExecuted, resolved.Status)

	// Double confirm conflicts.
	rec = a.do(t, http.MethodPost, "/api/v1/pending/"+string(p.ID)+"/confirm", confirmBody, true)
	require.Equal(t, http.StatusConflict, rec.Code)

	// Wrong ack token on a fresh action fails closed too.
	rec = a.do(t, http.MethodPost, "/api/v1/pending/"+string(p.ID)+"/reject",
		map[string]any{"actor": "x", "ackToken": "nope"}, true)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListExecutions_AuditTrail(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/rules/", map[string]any{
		"name":    "note taker",
		"actions": []map[string]any{{"type": "record_note", "params": map[string]any{"text": "seen"}}},
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/events", map[string]any{
		"events": []map[string]any{{"type": "invoice.created", "payload": map[string]any{}}},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/v1/run", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/executions", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Executions []types.Execution `json:"executions"`
	}](t, rec)
	require.Len(t, body.Executions, 1)
	require.Equal(t, types.ExecutionDispatched, body.Executions[0].Status)

	rec = a.do(t, http.MethodGet, "/api/v1/executions?limit=0", nil, true)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRules_EnableDisableCycle(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/rules/", map[string]any{
		"name":    "r",
		"actions": []map[string]any{{"type": "record_note", "params": map[string]any{"text": "n"}}},
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[types.Rule](t, rec)

	rec = a.do(t, http.MethodPost, "/api/v1/rules/"+string(created.ID)+"/disable",
		map[string]any{"reason": "noisy"}, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/rules/"+string(created.ID), nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[types.Rule](t, rec)
	require.False(t, got.Enabled)
	require.Equal(t, "noisy", got.DisabledReason)

	rec = a.do(t, http.MethodPost, "/api/v1/rules/"+string(created.ID)+"/enable", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/rules/"+string(created.ID), nil, true)
	got = decode[types.Rule](t, rec)
	require.True(t, got.Enabled)
	require.Empty(t, got.DisabledReason)
}

func TestRules_GetUnknownIs404(t *testing.T) {
	a := newTestAPI(t)
	rec := a.do(t, http.MethodGet, "/api/v1/rules/"+string(types.NewRuleID()), nil, true)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
