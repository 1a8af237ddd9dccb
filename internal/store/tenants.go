// internal/store/tenants.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ledgerline/autoflow/internal/types"
)

// CreateTenant registers a new tenant. Tenants are created through the CLI
// only; there is no HTTP surface for tenant management.
func (s *Store) CreateTenant(ctx context.Context, t *types.Tenant) error {
	_, err := s.q.Exec(ctx, "create-tenant", t.ID, t.Name, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// GetTenant fetches one tenant by ID.
func (s *Store) GetTenant(ctx context.Context, id types.TenantID) (*types.Tenant, error) {
	var t types.Tenant
	err := s.q.Get(ctx, "get-tenant", &t, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return &t, nil
}

// ListTenants returns every tenant, oldest first.
func (s *Store) ListTenants(ctx context.Context) ([]*types.Tenant, error) {
	var tenants []*types.Tenant
	if err := s.q.Select(ctx, "list-tenants", &tenants); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return tenants, nil
}

// InsertAPIKey stores the hash record of a freshly issued key.
func (s *Store) InsertAPIKey(ctx context.Context, k *types.APIKey) error {
	if k.TenantID == "" {
		return types.ErrMissingTenant
	}

	_, err := s.q.Exec(ctx, "insert-api-key",
		k.ID, k.TenantID, k.SecretID, k.KeyHash, k.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// ListAPIKeys returns the tenant's keys, oldest first. Hashes included;
// callers decide what to expose.
func (s *Store) ListAPIKeys(ctx context.Context, tenantID types.TenantID) ([]*types.APIKey, error) {
	var keys []*types.APIKey
	if err := s.q.Select(ctx, "list-api-keys", &keys, tenantID); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// RevokeAPIKey marks a key revoked. Revocation is permanent; already
// revoked keys are left untouched and reported as not found.
func (s *Store) RevokeAPIKey(ctx context.Context, tenantID types.TenantID, keyID string) error {
	res, err := s.q.Exec(ctx, "revoke-api-key", time.Now().UTC(), keyID, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("api key %s: not found or already revoked", keyID)
	}
	return nil
}
