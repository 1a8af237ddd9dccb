package types

import "errors"

// Sentinel errors for Autoflow operations.
var (
	// ErrPayloadTooLarge indicates an event payload exceeds MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload exceeds maximum size")

	// ErrMissingTenant indicates an event or request carried no tenant.
	// Such input is permanently discarded (fail-closed), never retried.
	ErrMissingTenant = errors.New("tenant identifier required")

	// ErrTenantMismatch indicates an attempt to read or act across tenant
	// boundaries. Always fatal to the calling operation.
	ErrTenantMismatch = errors.New("tenant boundary violation")

	// ErrUnknownOperator indicates a condition leaf uses an operator outside
	// the allow-list.
	ErrUnknownOperator = errors.New("operator not in allow-list")

	// ErrMalformedCondition indicates a condition tree that does not match
	// the closed grammar (wrong variant shape, missing field, bad value).
	ErrMalformedCondition = errors.New("malformed condition tree")

	// ErrConditionTooDeep indicates a condition tree exceeds MaxConditionDepth.
	ErrConditionTooDeep = errors.New("condition tree exceeds maximum depth")

	// ErrConditionTooLarge indicates a condition tree exceeds MaxConditionNodes.
	ErrConditionTooLarge = errors.New("condition tree has too many nodes")

	// ErrFieldPathTooDeep indicates a field path exceeds MaxFieldPathDepth.
	ErrFieldPathTooDeep = errors.New("field path exceeds maximum depth")

	// ErrUnknownActionType indicates an action type outside the allow-list.
	ErrUnknownActionType = errors.New("action type not in allow-list")

	// ErrParamNotAllowed indicates an action parameter key outside the
	// per-type parameter allow-list.
	ErrParamNotAllowed = errors.New("action parameter not in allow-list")

	// ErrTooManyActions indicates a rule exceeds MaxActionsPerRule.
	ErrTooManyActions = errors.New("rule has too many actions")

	// ErrRuleNotFound indicates no rule with that ID exists for the tenant.
	ErrRuleNotFound = errors.New("rule not found")

	// ErrTenantNotFound indicates no tenant with that ID exists.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrPendingNotFound indicates no pending action with that ID exists for
	// the tenant.
	ErrPendingNotFound = errors.New("pending action not found")

	// ErrAlreadyResolved indicates a confirm/reject on an action that has
	// already left the pending state. Reported as a conflict, never as success.
	ErrAlreadyResolved = errors.New("pending action already resolved")

	// ErrAcknowledgementMismatch indicates a confirm/reject without a valid
	// acknowledgement token. The action stays pending (fail-closed).
	ErrAcknowledgementMismatch = errors.New("missing or invalid acknowledgement token")

	// ErrBatchTooLarge indicates an ingest batch exceeds MaxEventBatchSize.
	ErrBatchTooLarge = errors.New("event batch exceeds maximum size")
)
