// Package api provides the HTTP handlers for the autoflow service.
// Thin orchestration layer delegating to the store, engine, and confirm
// packages; tenancy always comes from the authenticated context, never from
// the request body.
package api

import (
	"fmt"
	"log/slog"

	"github.com/ledgerline/autoflow/internal/confirm"
	"github.com/ledgerline/autoflow/internal/core/config"
	"github.com/ledgerline/autoflow/internal/engine"
	"github.com/ledgerline/autoflow/internal/store"
)

// Service bundles the handler dependencies.
type Service struct {
	store  *store.Store
	runner *engine.Runner
	gate   *confirm.Gate
	cfg    *config.Config
	log    *slog.Logger
}

// NewService creates a service instance with dependencies.
func NewService(st *store.Store, runner *engine.Runner, gate *confirm.Gate, cfg *config.Config, log *slog.Logger) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("gate cannot be nil")
	}
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}

	return &Service{
		store:  st,
		runner: runner,
		gate:   gate,
		cfg:    cfg,
		log:    log,
	}, nil
}
