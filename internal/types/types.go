// Package types provides domain models shared across Autoflow components.
//
// Zero-dependency design: types.go, rules.go, and errors.go use only
// encoding/json so the condition evaluator and the HTTP layer share one set
// of domain types without dragging in storage imports. ID utilities in
// ids.go import uuid but are isolated for selective inclusion.
package types

// TenantID identifies a tenant. Every engine operation is scoped to exactly
// one TenantID passed explicitly; there is no ambient "current tenant".
type TenantID string

// RuleID represents a UUIDv7 rule identifier.
// String alias enables type safety while maintaining JSON string serialization.
type RuleID string

// EventID represents a UUIDv7 event identifier.
// UUIDv7 time-ordering ensures sequential IDs cluster in B-tree indexes.
type EventID string

// ExecutionID represents a UUIDv7 execution-log entry identifier.
type ExecutionID string

// PendingActionID represents a UUIDv7 pending-action identifier.
type PendingActionID string

// Resource limits enforced by the engine to bound rule evaluation cost and
// keep ingest memory predictable.
const (
	// MaxPayloadSize limits event payloads to prevent OOM during batch
	// processing. 1MB allows typical application events; larger payloads
	// belong in document storage with a reference in the event.
	MaxPayloadSize = 1024 * 1024

	// MaxConditionDepth prevents stack overflow during recursive tree
	// evaluation. 16 levels is far beyond anything the rule builder UI emits.
	MaxConditionDepth = 16

	// MaxConditionNodes caps total tree size so a single rule cannot make an
	// evaluation pass unbounded.
	MaxConditionNodes = 128

	// MaxFieldPathDepth bounds dotted field paths during payload resolution.
	MaxFieldPathDepth = 16

	// MaxActionsPerRule bounds the ordered action list of one rule.
	MaxActionsPerRule = 8

	// MaxEventBatchSize bounds one ingest request. Per-event transactions
	// allow partial batch success below this ceiling.
	MaxEventBatchSize = 1000
)
