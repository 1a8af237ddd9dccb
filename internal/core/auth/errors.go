package auth

import "errors"

// Authentication error types enable the response taxonomy:
// 401 for missing/invalid (doesn't confirm key existence),
// 403 for revoked (confirms key exists but blocked),
// 503 when the auth store is unreachable.
var (
	ErrMissingKey       = errors.New("API key required in X-Api-Key header")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
	ErrKeyRevoked       = errors.New("API key has been revoked")

	// ErrAuthStoreUnavailable wraps storage faults during key lookup; the
	// caller is not at fault and may retry.
	ErrAuthStoreUnavailable = errors.New("authentication store unavailable")
)
