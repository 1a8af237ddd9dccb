// internal/core/api/rules.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/autoflow/internal/action"
	"github.com/ledgerline/autoflow/internal/condition"
	"github.com/ledgerline/autoflow/internal/core/auth"
	"github.com/ledgerline/autoflow/internal/types"
)

// ruleRequest is the write shape for rules. Conditions must parse against
// the closed grammar and every action spec against the allow-list before
// anything is persisted; a rule with a non-allow-listed action can never be
// stored enabled.
type ruleRequest struct {
	Name        string             `json:"name"`
	TriggerType string             `json:"triggerType"`
	Conditions  json.RawMessage    `json:"conditions"`
	Actions     []types.ActionSpec `json:"actions"`
}

func (req *ruleRequest) validate() (int, error) {
	if req.Name == "" {
		return http.StatusBadRequest, errors.New("name required")
	}
	if _, err := condition.Parse(req.Conditions); err != nil {
		return http.StatusUnprocessableEntity, err
	}
	if err := action.ValidateSpecs(req.Actions); err != nil {
		return http.StatusUnprocessableEntity, err
	}
	return 0, nil
}

// CreateRule handles POST /api/v1/rules.
func (s *Service) CreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if code, err := req.validate(); err != nil {
		respondError(w, code, err.Error())
		return
	}

	now := time.Now().UTC()
	rule := &types.Rule{
		ID:          types.NewRuleID(),
		TenantID:    tenantID,
		Name:        req.Name,
		Enabled:     true,
		TriggerType: req.TriggerType,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if rule.Conditions == nil {
		rule.Conditions = json.RawMessage("null")
	}

	if err := s.store.CreateRule(r.Context(), rule); err != nil {
		s.log.Error("rule create failed", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

// ListRules handles GET /api/v1/rules.
func (s *Service) ListRules(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	rules, err := s.store.ListRules(r.Context(), tenantID)
	if err != nil {
		s.log.Error("rule list failed", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

// GetRule handles GET /api/v1/rules/{id}.
func (s *Service) GetRule(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	ruleID, err := types.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	rule, err := s.store.GetRule(r.Context(), tenantID, ruleID)
	if errors.Is(err, types.ErrRuleNotFound) {
		respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		s.log.Error("rule get failed", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// UpdateRule handles PUT /api/v1/rules/{id}. Full replacement of the
// mutable fields; the same write-time validation applies.
func (s *Service) UpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	ruleID, err := types.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if code, err := req.validate(); err != nil {
		respondError(w, code, err.Error())
		return
	}

	existing, err := s.store.GetRule(r.Context(), tenantID, ruleID)
	if errors.Is(err, types.ErrRuleNotFound) {
		respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		s.log.Error("rule get failed", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}

	existing.Name = req.Name
	existing.TriggerType = req.TriggerType
	existing.Conditions = req.Conditions
	existing.Actions = req.Actions
	existing.UpdatedAt = time.Now().UTC()
	if existing.Conditions == nil {
		existing.Conditions = json.RawMessage("null")
	}

	if err := s.store.UpdateRule(r.Context(), existing); err != nil {
		s.log.Error("rule update failed", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusOK, existing)
}

// EnableRule handles POST /api/v1/rules/{id}/enable.
func (s *Service) EnableRule(w http.ResponseWriter, r *http.Request) {
	s.setRuleEnabled(w, r, true)
}

// DisableRule handles POST /api/v1/rules/{id}/disable.
func (s *Service) DisableRule(w http.ResponseWriter, r *http.Request) {
	s.setRuleEnabled(w, r, false)
}

func (s *Service) setRuleEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	tenantID := auth.TenantFromContext(r.Context())

	ruleID, err := types.ParseRuleID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule id")
		return
	}

	var body struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if !enabled && body.Reason == "" {
		body.Reason = "disabled by operator"
	}

	err = s.store.SetRuleEnabled(r.Context(), tenantID, ruleID, enabled, body.Reason)
	if errors.Is(err, types.ErrRuleNotFound) {
		respondError(w, http.StatusNotFound, "rule not found")
		return
	}
	if err != nil {
		s.log.Error("rule toggle failed", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}
