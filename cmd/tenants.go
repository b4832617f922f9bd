package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flowboard/internal/api"
	"flowboard/internal/types"
)

// tenantsCmd represents the tenants command
var tenantsCmd = &cobra.Command{
	Use:     "tenants",
	Aliases: []string{"tenant"},
	Short:   "Manage tenants",
	Long: `List, add, remove and activate the tenants whose executions the
dashboard shows. Changes are saved to the preferences file.`,
}

var tenantsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured tenants",
	Args:  cobra.NoArgs,
	RunE:  runTenantsList,
}

var tenantsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a tenant",
	Example: `  flowboard tenants add --name "Acme Plumbing" --api-key KEY --subscription-key SUB --worker-id 42`,
	Args:  cobra.NoArgs,
	RunE:  runTenantsAdd,
}

var tenantsRemoveCmd = &cobra.Command{
	Use:     "remove ID",
	Aliases: []string{"rm"},
	Short:   "Remove a tenant",
	Args:    cobra.ExactArgs(1),
	RunE:    runTenantsRemove,
}

var tenantsUseCmd = &cobra.Command{
	Use:   "use ID",
	Short: "Make a tenant the active one",
	Args:  cobra.ExactArgs(1),
	RunE:  runTenantsUse,
}

func init() {
	rootCmd.AddCommand(tenantsCmd)
	tenantsCmd.AddCommand(tenantsListCmd, tenantsAddCmd, tenantsRemoveCmd, tenantsUseCmd)

	tenantsAddCmd.Flags().String("id", "", "Tenant id (generated when empty)")
	tenantsAddCmd.Flags().String("name", "", "Display name")
	tenantsAddCmd.Flags().String("api-key", "", "API key")
	tenantsAddCmd.Flags().String("subscription-key", "", "Subscription key")
	tenantsAddCmd.Flags().Int("worker-id", 0, "Worker id")
	tenantsAddCmd.Flags().Bool("activate", false, "Make the new tenant active")
	_ = tenantsAddCmd.MarkFlagRequired("name")
}

func runTenantsList(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	registry := a.session.Registry()
	active := registry.ActiveID()
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTIVE\tID\tNAME\tWORKER\tCREDENTIALS")
	for _, t := range registry.List() {
		marker := ""
		if t.ID == active {
			marker = "*"
		}
		creds := "missing"
		if api.CredentialsFor(t).Valid() {
			creds = "set"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", marker, t.ID, t.DisplayName, t.WorkerID, creds)
	}
	return tw.Flush()
}

func runTenantsAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	flags := cmd.Flags()
	var t types.TenantConfig
	t.ID, _ = flags.GetString("id")
	t.DisplayName, _ = flags.GetString("name")
	t.APIKey, _ = flags.GetString("api-key")
	t.SubscriptionKey, _ = flags.GetString("subscription-key")
	t.WorkerID, _ = flags.GetInt("worker-id")
	activate, _ := flags.GetBool("activate")

	added, err := a.session.Add(t)
	if err != nil {
		return fmt.Errorf("failed to add tenant: %w", err)
	}
	if activate {
		if err := a.session.Switch(added.ID); err != nil {
			return fmt.Errorf("failed to activate tenant: %w", err)
		}
	}
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Added tenant %s (%s)\n", added.DisplayName, added.ID)
	return nil
}

func runTenantsRemove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.session.Remove(args[0]); err != nil {
		return fmt.Errorf("failed to remove tenant: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Removed tenant %s\n", args[0])
	if active, ok := a.session.Registry().Active(); ok {
		fmt.Fprintf(out, "Active tenant: %s (%s)\n", active.DisplayName, active.ID)
	} else {
		color.New(color.FgYellow).Fprintln(out, "No tenants left; add one with 'flowboard tenants add'")
	}
	return nil
}

func runTenantsUse(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.session.Switch(args[0]); err != nil {
		return fmt.Errorf("failed to activate tenant: %w", err)
	}
	t, _ := a.session.Registry().Active()
	color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Active tenant: %s (%s)\n", t.DisplayName, t.ID)
	return nil
}
