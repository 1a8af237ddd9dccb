package cmd

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ledgerline/autoflow/internal/core/auth"
	"github.com/ledgerline/autoflow/internal/core/config"
	"github.com/ledgerline/autoflow/internal/types"
)

var (
	apikeyTenant string
	apikeyID     string
)

var apikeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Manage API keys",
}

var apikeyIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new API key for a tenant",
	Long:  `Issues a new API key and prints it exactly once. Only the HMAC hash is stored; a lost key cannot be recovered, only revoked and reissued.`,
	RunE:  runApikeyIssue,
}

var apikeyRevokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Revoke an API key",
	RunE:  runApikeyRevoke,
}

func init() {
	rootCmd.AddCommand(apikeyCmd)
	apikeyCmd.AddCommand(apikeyIssueCmd)
	apikeyCmd.AddCommand(apikeyRevokeCmd)
	apikeyIssueCmd.Flags().StringVar(&apikeyTenant, "tenant", "", "tenant ID (required)")
	apikeyIssueCmd.MarkFlagRequired("tenant")
	apikeyRevokeCmd.Flags().StringVar(&apikeyTenant, "tenant", "", "tenant ID (required)")
	apikeyRevokeCmd.Flags().StringVar(&apikeyID, "id", "", "API key ID (required)")
	apikeyRevokeCmd.MarkFlagRequired("tenant")
	apikeyRevokeCmd.MarkFlagRequired("id")
}

func runApikeyIssue(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	tenantID, err := types.ParseTenantID(apikeyTenant)
	if err != nil {
		return fmt.Errorf("invalid tenant ID: %w", err)
	}

	secrets, err := config.HMACSecrets()
	if err != nil {
		return fmt.Errorf("failed to load HMAC secrets: %w", err)
	}
	if len(secrets) == 0 {
		return fmt.Errorf("no HMAC secrets configured (set AF_HMAC_SECRET environment variable)")
	}

	// Newest secret wins when several are configured for rotation.
	ids := make([]string, 0, len(secrets))
	for id := range secrets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	secretID := ids[len(ids)-1]

	random := make([]byte, 32)
	if _, err := rand.Read(random); err != nil {
		return fmt.Errorf("failed to generate key material: %w", err)
	}

	key := auth.FormatAPIKey(secretID, fmt.Sprintf("%x", random))
	hash := auth.ComputeHMAC(secrets[secretID], key)

	database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	if _, err := st.GetTenant(ctx, tenantID); err != nil {
		return err
	}

	record := &types.APIKey{
		ID:        uuid.Must(uuid.NewV7()).String(),
		TenantID:  tenantID,
		SecretID:  secretID,
		KeyHash:   hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.InsertAPIKey(ctx, record); err != nil {
		return err
	}

	fmt.Printf("api key id: %s\n", record.ID)
	fmt.Printf("api key (shown once, store it now): %s\n", key)
	return nil
}

func runApikeyRevoke(cmd *cobra.Command, args []string) error {
	tenantID, err := types.ParseTenantID(apikeyTenant)
	if err != nil {
		return fmt.Errorf("invalid tenant ID: %w", err)
	}

	database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	if err := st.RevokeAPIKey(context.Background(), tenantID, apikeyID); err != nil {
		return err
	}

	fmt.Printf("api key revoked: %s\n", apikeyID)
	return nil
}
