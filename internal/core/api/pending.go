// internal/core/api/pending.go
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerline/autoflow/internal/core/auth"
	"github.com/ledgerline/autoflow/internal/types"
)

// ListPending handles GET /api/v1/pending. The response includes the ack
// token each action was issued at dispatch; the caller must echo it back on
// confirm or reject.
func (s *Service) ListPending(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	pending, err := s.gate.ListPending(r.Context(), tenantID)
	if err != nil {
		s.log.Error("pending list failed", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

// resolveRequest is the body for confirm and reject. Both transitions
// require the ack token; a missing or stale token fails closed.
type resolveRequest struct {
	Actor    string `json:"actor"`
	AckToken string `json:"ackToken"`
}

// ConfirmPending handles POST /api/v1/pending/{id}/confirm.
func (s *Service) ConfirmPending(w http.ResponseWriter, r *http.Request) {
	s.resolvePending(w, r, true)
}

// RejectPending handles POST /api/v1/pending/{id}/reject.
func (s *Service) RejectPending(w http.ResponseWriter, r *http.Request) {
	s.resolvePending(w, r, false)
}

func (s *Service) resolvePending(w http.ResponseWriter, r *http.Request, confirmIt bool) {
	tenantID := auth.TenantFromContext(r.Context())

	pendingID, err := types.ParsePendingActionID(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid pending action id")
		return
	}

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Actor == "" || req.AckToken == "" {
		respondError(w, http.StatusBadRequest, "actor and ackToken required")
		return
	}

	var p *types.PendingAction
	if confirmIt {
		p, err = s.gate.Confirm(r.Context(), tenantID, pendingID, req.Actor, req.AckToken)
	} else {
		p, err = s.gate.Reject(r.Context(), tenantID, pendingID, req.Actor, req.AckToken)
	}

	switch {
	case errors.Is(err, types.ErrPendingNotFound):
		respondError(w, http.StatusNotFound, "pending action not found")
	case errors.Is(err, types.ErrAlreadyResolved):
		respondError(w, http.StatusConflict, "pending action already resolved")
	case errors.Is(err, types.ErrAcknowledgementMismatch):
		respondError(w, http.StatusConflict, "acknowledgement token mismatch")
	case err != nil:
		s.log.Error("pending resolve failed", "tenant", tenantID, "pending", pendingID, "error", err)
		respondError(w, http.StatusInternalServerError, "storage error")
	default:
		respondJSON(w, http.StatusOK, p)
	}
}
