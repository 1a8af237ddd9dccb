// internal/core/api/executions.go
package api

import (
	"net/http"
	"strconv"

	"github.com/ledgerline/autoflow/internal/core/auth"
)

const (
	defaultExecutionLimit = 100
	maxExecutionLimit     = 1000
)

// ListExecutions handles GET /api/v1/executions: the tenant's append-only
// audit trail, newest first. Detail carries skip reasons and correlation IDs
// only, never internal error text.
func (s *Service) ListExecutions(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	limit := defaultExecutionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxExecutionLimit {
			n = maxExecutionLimit
		}
		limit = n
	}

	execs, err := s.store.ListExecutions(r.Context(), tenantID, limit)
	if err != nil {
		s.log.Error("execution list failed", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "storage error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"executions": execs})
}
