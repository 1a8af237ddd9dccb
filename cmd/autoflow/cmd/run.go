package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ledgerline/autoflow/internal/action"
	"github.com/ledgerline/autoflow/internal/core/config"
	"github.com/ledgerline/autoflow/internal/engine"
	"github.com/ledgerline/autoflow/internal/types"
)

var runTenant string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one synchronous engine pass for a tenant",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVar(&runTenant, "tenant", "", "tenant ID to process (required)")
	runCmd.MarkFlagRequired("tenant")
}

func runRun(cmd *cobra.Command, args []string) error {
	log := newLogger()

	tenantID, err := types.ParseTenantID(runTenant)
	if err != nil {
		return fmt.Errorf("invalid tenant ID: %w", err)
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	dispatcher := action.NewDispatcher(cfg.PendingTTL)
	runner := engine.NewRunner(st, dispatcher, cfg.ReadOnly, cfg.MaxBatchSize, log)

	summary, err := runner.ProcessTenant(context.Background(), tenantID)
	if err != nil {
		return fmt.Errorf("engine pass failed: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
