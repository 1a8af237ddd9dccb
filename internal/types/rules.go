// internal/types/rules.go
package types

/*
 * Domain types for the automation rule engine.
 *
 * Provides Rule, ActionSpec, Event, Execution, and PendingAction structures
 * shared by internal/condition, internal/engine, internal/confirm, and
 * internal/store. These types are wire-format agnostic; JSON request/response
 * shaping happens at the API boundary.
 *
 * Key types:
 *   - Rule: operator-authored trigger/condition/action definition
 *   - ActionSpec: one allow-listed action with its parameters
 *   - Event: one entry of the append-only tenant-scoped event log
 *   - Execution: append-only audit record, also the idempotency key holder
 *   - PendingAction: confirm-gated side effect awaiting human resolution
 */

import (
	"encoding/json"
	"time"
)

// Tenant is one isolated customer of the engine. Created through the CLI
// only; the HTTP surface never crosses tenant boundaries.
type Tenant struct {
	ID        TenantID  `db:"tenant_id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// ActionSpec is one entry of a rule's ordered action list.
// Type must be in the action allow-list; Params carries only keys from the
// per-type parameter allow-list.
type ActionSpec struct {
	Type   string         `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// Rule is an operator-authored automation rule owned by a single tenant.
// Conditions holds the raw condition-tree JSON; parsing happens at write
// validation time and again when the Runner loads the rule. A rule that no
// longer parses is disabled with a reason, never silently skipped.
type Rule struct {
	ID             RuleID          `db:"rule_id" json:"id"`
	TenantID       TenantID        `db:"tenant_id" json:"tenantId"`
	Name           string          `db:"name" json:"name"`
	Enabled        bool            `db:"enabled" json:"enabled"`
	DisabledReason string          `db:"disabled_reason" json:"disabledReason,omitempty"`
	TriggerType    string          `db:"trigger_type" json:"triggerType"`
	Conditions     json.RawMessage `db:"conditions" json:"conditions"`
	Actions        []ActionSpec    `db:"-" json:"actions"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// Event is one record of the append-only tenant-scoped event log.
// Position is monotonically increasing per tenant and assigned at append.
type Event struct {
	ID        EventID         `db:"event_id" json:"id"`
	TenantID  TenantID        `db:"tenant_id" json:"tenantId"`
	Position  int64           `db:"position" json:"position"`
	Type      string          `db:"event_type" json:"type"`
	Payload   json.RawMessage `db:"payload" json:"payload"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

// ExecutionStatus is the terminal outcome of one (rule, event) evaluation.
type ExecutionStatus string

const (
	// ExecutionMatched is the transient status written at the linearization
	// insert, before conditions are evaluated.
	ExecutionMatched ExecutionStatus = "matched"

	// ExecutionDispatched means conditions passed and all actions were
	// dispatched (immediately or into the pending queue).
	ExecutionDispatched ExecutionStatus = "dispatched"

	// ExecutionSkipped means the pair was evaluated but produced no dispatch
	// (condition false, or read-only mode). Detail records why.
	ExecutionSkipped ExecutionStatus = "skipped"

	// ExecutionFailed means an unexpected fault occurred for this pair.
	// Detail carries a correlation ID, never internal error text.
	ExecutionFailed ExecutionStatus = "failed"
)

// Skip reasons recorded in Execution.Detail.
const (
	SkipReasonCondition = "condition"
	SkipReasonReadOnly  = "read_only"
)

// Execution is one append-only audit record of a (rule, event) evaluation.
// The tuple (TenantID, RuleID, TriggerRef) is unique in storage and is the
// sole durable de-duplication key for the engine.
type Execution struct {
	ID         ExecutionID     `db:"execution_id" json:"id"`
	TenantID   TenantID        `db:"tenant_id" json:"tenantId"`
	RuleID     RuleID          `db:"rule_id" json:"ruleId"`
	TriggerRef string          `db:"trigger_ref" json:"triggerRef"`
	Status     ExecutionStatus `db:"status" json:"status"`
	Detail     string          `db:"detail" json:"detail,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// PendingStatus is the lifecycle state of a confirm-gated action.
type PendingStatus string

const (
	PendingStatusPending   PendingStatus = "pending"
	PendingStatusConfirmed PendingStatus = "confirmed"
	PendingStatusExecuted  PendingStatus = "executed"
	PendingStatusRejected  PendingStatus = "rejected"
	PendingStatusExpired   PendingStatus = "expired"
)

// PendingAction is a proposed side effect awaiting human confirmation.
// Created by the dispatcher in "pending" state; transitioned only by the
// confirm gate or the expiry sweep. Params contains allow-listed keys only.
type PendingAction struct {
	ID          PendingActionID `db:"pending_id" json:"id"`
	TenantID    TenantID        `db:"tenant_id" json:"tenantId"`
	RuleID      RuleID          `db:"rule_id" json:"ruleId"`
	ExecutionID ExecutionID     `db:"execution_id" json:"executionId"`
	ActionType  string          `db:"action_type" json:"actionType"`
	Params      json.RawMessage `db:"params" json:"params"`
	Status      PendingStatus   `db:"status" json:"status"`
	AckToken    string          `db:"ack_token" json:"ackToken"`
	CreatedAt   time.Time       `db:"created_at" json:"createdAt"`
	ExpiresAt   time.Time       `db:"expires_at" json:"expiresAt"`
	ResolvedBy  string          `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolvedAt  *time.Time      `db:"resolved_at" json:"resolvedAt,omitempty"`
	ExecutedAt  *time.Time      `db:"executed_at" json:"executedAt,omitempty"`
}

// Resolved reports whether the action has left the pending state.
func (p *PendingAction) Resolved() bool {
	return p.Status != PendingStatusPending
}

// Annotation is the output of the record_note action: internal bookkeeping
// written immediately at dispatch, no confirmation required because it never
// leaves the engine's own storage.
type Annotation struct {
	ID          string      `db:"annotation_id" json:"id"`
	TenantID    TenantID    `db:"tenant_id" json:"tenantId"`
	RuleID      RuleID      `db:"rule_id" json:"ruleId"`
	ExecutionID ExecutionID `db:"execution_id" json:"executionId"`
	Note        string      `db:"note" json:"note"`
	CreatedAt   time.Time   `db:"created_at" json:"createdAt"`
}

// OutboxEntry is the executed side effect of a confirmed action. The UI
// collaborator polls the outbox; the engine never calls collaborators
// directly.
type OutboxEntry struct {
	ID         string          `db:"outbox_id" json:"id"`
	TenantID   TenantID        `db:"tenant_id" json:"tenantId"`
	PendingID  PendingActionID `db:"pending_id" json:"pendingId"`
	ActionType string          `db:"action_type" json:"actionType"`
	Params     json.RawMessage `db:"params" json:"params"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}
