// internal/core/api/run.go
package api

import (
	"net/http"

	"github.com/ledgerline/autoflow/internal/core/auth"
)

// Run handles POST /api/v1/run: one synchronous engine pass for the
// authenticated tenant. Overlapping calls are safe; the execution log
// de-duplicates pairs and the cursor never regresses.
func (s *Service) Run(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())

	summary, err := s.runner.ProcessTenant(r.Context(), tenantID)
	if err != nil {
		s.log.Error("engine pass failed", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "engine pass failed")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}
