// Package action defines the action allow-list and the dispatcher that maps
// a rule's action specs to either an immediate internal side effect or a
// pending-confirmation record.
//
// The allow-list is the only set of action types the engine can ever
// perform. Rule writes are validated against it, and the dispatcher rejects
// unknown types again defensively. Parameters pass through a per-type key
// allow-list so nothing outside the expected shape reaches the pending
// queue.
package action

import (
	"fmt"

	"github.com/ledgerline/autoflow/internal/types"
)

// Allow-listed action types.
const (
	// TypeCreateTask proposes a task in the task collaborator. Confirm-gated.
	TypeCreateTask = "create_task"

	// TypeCreateDraft proposes a document draft. Confirm-gated.
	TypeCreateDraft = "create_draft"

	// TypeScheduleFollowup proposes a follow-up reminder. Confirm-gated.
	TypeScheduleFollowup = "schedule_followup"

	// TypeRecordNote writes an annotation inside the engine's own storage.
	// Internal bookkeeping, executes immediately at dispatch.
	TypeRecordNote = "record_note"
)

// gated marks action types whose effect leaves the engine and therefore
// must pass the confirm gate. Everything not listed here and not internal
// is unknown and rejected.
var gated = map[string]bool{
	TypeCreateTask:       true,
	TypeCreateDraft:      true,
	TypeScheduleFollowup: true,
}

// internalTypes marks action types that execute immediately because they
// touch nothing outside the engine.
var internalTypes = map[string]bool{
	TypeRecordNote: true,
}

// paramKeys is the per-type parameter key allow-list. Values outside these
// keys never persist; the pending queue stores redacted, allow-listed
// fields only.
var paramKeys = map[string]map[string]bool{
	TypeCreateTask:       {"title": true, "due_in_days": true, "assignee": true},
	TypeCreateDraft:      {"template": true, "subject": true},
	TypeScheduleFollowup: {"in_days": true, "channel": true},
	TypeRecordNote:       {"text": true},
}

// IsAllowed reports whether the action type is in the allow-list.
func IsAllowed(actionType string) bool {
	return gated[actionType] || internalTypes[actionType]
}

// IsGated reports whether the action type requires human confirmation.
func IsGated(actionType string) bool {
	return gated[actionType]
}

// ValidateSpec checks one action spec at rule-write time: type must be
// allow-listed and every parameter key must be in the type's key allow-list.
// Violations reject the write; a rule with a non-allow-listed action can
// never be persisted enabled.
func ValidateSpec(spec types.ActionSpec) error {
	if !IsAllowed(spec.Type) {
		return fmt.Errorf("%w: %q", types.ErrUnknownActionType, spec.Type)
	}
	allowed := paramKeys[spec.Type]
	for key := range spec.Params {
		if !allowed[key] {
			return fmt.Errorf("%w: %q for action %q", types.ErrParamNotAllowed, key, spec.Type)
		}
	}
	return nil
}

// ValidateSpecs checks a rule's full ordered action list.
func ValidateSpecs(specs []types.ActionSpec) error {
	if len(specs) > types.MaxActionsPerRule {
		return types.ErrTooManyActions
	}
	for _, spec := range specs {
		if err := ValidateSpec(spec); err != nil {
			return err
		}
	}
	return nil
}

// FilterParams returns a copy of params containing only allow-listed keys
// for the action type. Defensive second line behind ValidateSpec: even a
// rule row edited out-of-band cannot leak extra fields into a pending
// action.
func FilterParams(actionType string, params map[string]any) map[string]any {
	allowed := paramKeys[actionType]
	filtered := make(map[string]any, len(params))
	for key, val := range params {
		if allowed[key] {
			filtered[key] = val
		}
	}
	return filtered
}
