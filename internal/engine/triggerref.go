// internal/engine/triggerref.go
package engine

import (
	"crypto/sha256"
	"fmt"

	"github.com/ledgerline/autoflow/internal/types"
)

// TriggerRef derives the stable de-duplication reference for one event.
// SHA-256 over tenant, position, and event ID: stable across invocations,
// never derived from payload content so payload edits cannot forge a
// distinct trigger.
func TriggerRef(ev *types.Event) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", ev.TenantID, ev.Position, ev.ID))
	return fmt.Sprintf("%x", h)
}
