package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerline/autoflow/internal/confirm"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Expire pending actions past their confirmation deadline",
	RunE:  runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	log := newLogger()

	database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	gate := confirm.NewGate(st, log)
	n, err := gate.ExpireStale(context.Background(), time.Now())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("expired %d pending action(s)\n", n)
	return nil
}
