// internal/types/apikeys.go
package types

import (
	"database/sql"
	"time"
)

// APIKey is the stored record of one issued API key. The key itself is
// never persisted; only its HMAC-SHA256 hash under the secret identified by
// SecretID.
type APIKey struct {
	ID         string       `db:"api_key_id" json:"id"`
	TenantID   TenantID     `db:"tenant_id" json:"tenantId"`
	SecretID   string       `db:"secret_id" json:"secretId"`
	KeyHash    string       `db:"key_hash" json:"-"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
	LastUsedAt sql.NullTime `db:"last_used_at" json:"-"`
	RevokedAt  sql.NullTime `db:"revoked_at" json:"-"`
}

// Revoked reports whether the key has been revoked.
func (k *APIKey) Revoked() bool {
	return k.RevokedAt.Valid
}
