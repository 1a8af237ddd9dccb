// internal/core/api/events.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ledgerline/autoflow/internal/core/auth"
	"github.com/ledgerline/autoflow/internal/metrics"
	"github.com/ledgerline/autoflow/internal/types"
)

// eventInput is one event in an ingest batch. The tenant comes from the API
// key; a tenant field in the body is not even parsed.
type eventInput struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type ingestRequest struct {
	Events []eventInput `json:"events"`
}

// eventResult reports the per-event outcome of a batch ingest.
type eventResult struct {
	ID       types.EventID `json:"id,omitempty"`
	Position int64         `json:"position,omitempty"`
	Accepted bool          `json:"accepted"`
	Error    string        `json:"error,omitempty"`
}

type ingestResponse struct {
	Accepted int           `json:"accepted"`
	Results  []eventResult `json:"results"`
}

// IngestEvents handles POST /api/v1/events. Per-event appends enable
// partial batch success: one bad event rejects that event, not the batch.
func (s *Service) IngestEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := auth.TenantFromContext(r.Context())
	if tenantID == "" {
		respondError(w, http.StatusInternalServerError, "missing tenant in context")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	// Batches beyond the cap are rejected whole; prevents transaction
	// timeouts and memory exhaustion.
	if len(req.Events) == 0 || len(req.Events) > s.cfg.MaxBatchSize {
		respondError(w, http.StatusBadRequest,
			fmt.Sprintf("batch must contain 1 to %d events", s.cfg.MaxBatchSize))
		return
	}

	resp := ingestResponse{Results: make([]eventResult, len(req.Events))}
	for i, in := range req.Events {
		resp.Results[i] = s.appendOne(r, tenantID, in)
		if resp.Results[i].Accepted {
			resp.Accepted++
		}
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Service) appendOne(r *http.Request, tenantID types.TenantID, in eventInput) eventResult {
	if in.Type == "" {
		metrics.EventsRejected.WithLabelValues("missing_type").Inc()
		return eventResult{Error: "type required"}
	}
	if len(in.Payload) == 0 {
		in.Payload = json.RawMessage("{}")
	}

	ev := &types.Event{
		ID:        types.NewEventID(),
		TenantID:  tenantID,
		Type:      in.Type,
		Payload:   in.Payload,
		CreatedAt: time.Now().UTC(),
	}

	err := s.store.AppendEvent(r.Context(), ev)
	switch {
	case errors.Is(err, types.ErrPayloadTooLarge):
		metrics.EventsRejected.WithLabelValues("payload_too_large").Inc()
		return eventResult{Error: err.Error()}
	case errors.Is(err, types.ErrMissingTenant):
		// Tenantless events are permanently discarded; nothing downstream
		// will retry or enrich them.
		metrics.EventsRejected.WithLabelValues("missing_tenant").Inc()
		return eventResult{Error: err.Error()}
	case err != nil:
		s.log.Error("event append failed", "tenant", tenantID, "error", err)
		metrics.EventsRejected.WithLabelValues("storage").Inc()
		return eventResult{Error: "storage error"}
	}

	metrics.EventsIngested.WithLabelValues(string(tenantID)).Inc()
	return eventResult{ID: ev.ID, Position: ev.Position, Accepted: true}
}
