package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgerline/autoflow/internal/types"
)

var tenantName string

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new tenant",
	RunE:  runTenantCreate,
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tenants",
	RunE:  runTenantList,
}

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantListCmd)
	tenantCreateCmd.Flags().StringVar(&tenantName, "name", "", "tenant name (required)")
	tenantCreateCmd.MarkFlagRequired("name")
}

func runTenantCreate(cmd *cobra.Command, args []string) error {
	database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	t := &types.Tenant{
		ID:        types.NewTenantID(),
		Name:      tenantName,
		CreatedAt: time.Now().UTC(),
	}
	if err := st.CreateTenant(context.Background(), t); err != nil {
		return err
	}

	fmt.Printf("tenant created: %s (%s)\n", t.ID, t.Name)
	return nil
}

func runTenantList(cmd *cobra.Command, args []string) error {
	database, st, err := openStore()
	if err != nil {
		return err
	}
	defer database.Close()

	tenants, err := st.ListTenants(context.Background())
	if err != nil {
		return err
	}

	for _, t := range tenants {
		fmt.Printf("%s  %-30s %s\n", t.ID, t.Name, t.CreatedAt.Format(time.RFC3339))
	}
	return nil
}
