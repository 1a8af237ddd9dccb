package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ledgerline/autoflow/internal/action"
	"github.com/ledgerline/autoflow/internal/confirm"
	"github.com/ledgerline/autoflow/internal/core/api"
	"github.com/ledgerline/autoflow/internal/core/auth"
	"github.com/ledgerline/autoflow/internal/core/config"
	"github.com/ledgerline/autoflow/internal/core/server"
	"github.com/ledgerline/autoflow/internal/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "HTTP server host")
	serveCmd.Flags().Int("port", 8080, "HTTP server port")
	serveCmd.Flags().Bool("read-only", false, "run the engine as a pure observer")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log := newLogger()

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("read-only") {
		cfg.ReadOnly, _ = cmd.Flags().GetBool("read-only")
	}

	database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set AF_HMAC_SECRET environment variable)")
	}

	authenticator := auth.NewAuthenticator(secrets, st.Queries())
	dispatcher := action.NewDispatcher(cfg.PendingTTL)
	runner := engine.NewRunner(st, dispatcher, cfg.ReadOnly, cfg.MaxBatchSize, log)
	gate := confirm.NewGate(st, log)

	service, err := api.NewService(st, runner, gate, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	httpServer, err := server.NewHTTPServer(cfg, service, authenticator, st)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	log.Info("starting autoflow", "version", Version, "host", cfg.Host, "port", cfg.Port, "read_only", cfg.ReadOnly)
	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case <-sigChan:
		log.Info("shutting down gracefully")
		return httpServer.Shutdown(ctx)
	}
}
