package types

import "github.com/google/uuid"

// NewTenantID generates a UUIDv7 tenant identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewTenantID() TenantID {
	return TenantID(uuid.Must(uuid.NewV7()).String())
}

// NewRuleID generates a UUIDv7 rule identifier.
func NewRuleID() RuleID {
	return RuleID(uuid.Must(uuid.NewV7()).String())
}

// NewEventID generates a UUIDv7 event identifier.
// Time-ordered IDs ensure sequential inserts cluster in B-tree pages.
func NewEventID() EventID {
	return EventID(uuid.Must(uuid.NewV7()).String())
}

// NewExecutionID generates a UUIDv7 execution identifier.
func NewExecutionID() ExecutionID {
	return ExecutionID(uuid.Must(uuid.NewV7()).String())
}

// NewPendingActionID generates a UUIDv7 pending-action identifier.
func NewPendingActionID() PendingActionID {
	return PendingActionID(uuid.Must(uuid.NewV7()).String())
}

// NewCorrelationID generates an opaque identifier that links a failed
// execution record to its log line. Operators see only this ID, never the
// underlying error text.
func NewCorrelationID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// ParseTenantID validates and converts a string to TenantID.
// Rejects malformed UUIDs to prevent invalid IDs from entering the system.
func ParseTenantID(s string) (TenantID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return TenantID(s), nil
}

// ParseRuleID validates and converts a string to RuleID.
func ParseRuleID(s string) (RuleID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return RuleID(s), nil
}

// ParsePendingActionID validates and converts a string to PendingActionID.
func ParsePendingActionID(s string) (PendingActionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return PendingActionID(s), nil
}
