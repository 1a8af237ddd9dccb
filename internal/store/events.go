// internal/store/events.go
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgerline/autoflow/internal/types"
)

/*
 * Event log persistence.
 *
 * The events table is the append-only tenant-scoped event source. Positions
 * are assigned at append time via INSERT..SELECT MAX(position)+1; the
 * UNIQUE (tenant_id, position) index rejects racing appends, which are
 * retried. Events are never updated or deleted.
 */

// appendRetries bounds position-assignment retries under concurrent appends.
const appendRetries = 3

// AppendEvent assigns the next per-tenant position and persists the event.
// Events without a tenant are rejected outright (fail-closed); there is no
// enrichment or retry path for tenantless input.
func (s *Store) AppendEvent(ctx context.Context, ev *types.Event) error {
	if ev.TenantID == "" {
		return types.ErrMissingTenant
	}
	if len(ev.Payload) > types.MaxPayloadSize {
		return types.ErrPayloadTooLarge
	}

	var lastErr error
	for attempt := 0; attempt < appendRetries; attempt++ {
		_, err := s.q.Exec(ctx, "append-event",
			ev.ID, ev.TenantID, ev.Type, string(ev.Payload), ev.CreatedAt, ev.TenantID,
		)
		if err == nil {
			return s.q.Get(ctx, "get-event-position", &ev.Position, ev.ID, ev.TenantID)
		}
		if !isUniqueViolation(err) {
			return fmt.Errorf("append event: %w", err)
		}
		lastErr = err
	}
	return fmt.Errorf("append event: position contention: %w", lastErr)
}

// EventsAfter returns up to limit events strictly after the cursor
// position, in position order.
func (s *Store) EventsAfter(ctx context.Context, tenantID types.TenantID, position int64, limit int) ([]*types.Event, error) {
	if tenantID == "" {
		return nil, types.ErrMissingTenant
	}

	var events []*types.Event
	if err := s.q.Select(ctx, "events-after", &events, tenantID, position, limit); err != nil {
		return nil, fmt.Errorf("events after %d: %w", position, err)
	}
	return events, nil
}

// isUniqueViolation detects unique-constraint failures across both drivers.
// lib/pq reports SQLSTATE 23505; go-sqlite3 reports a constraint message.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}
