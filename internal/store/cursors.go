// internal/store/cursors.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/autoflow/internal/types"
)

// GetCursor returns the tenant's last processed event position.
// A tenant with no cursor row implicitly starts at position 0.
func (s *Store) GetCursor(ctx context.Context, tenantID types.TenantID) (int64, error) {
	if tenantID == "" {
		return 0, types.ErrMissingTenant
	}

	var position int64
	err := s.q.Get(ctx, "get-cursor", &position, tenantID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get cursor: %w", err)
	}
	return position, nil
}

// AdvanceCursor moves the tenant's cursor forward. The upsert's WHERE guard
// makes the cursor monotonically non-decreasing: a concurrent invocation
// that already advanced further simply wins, which is not an error.
func (s *Store) AdvanceCursor(ctx context.Context, tenantID types.TenantID, position int64) error {
	if tenantID == "" {
		return types.ErrMissingTenant
	}

	_, err := s.q.Exec(ctx, "advance-cursor", tenantID, position, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("advance cursor: %w", err)
	}
	return nil
}
