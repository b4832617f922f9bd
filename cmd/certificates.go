package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flowboard/internal/dashboard"
	"flowboard/internal/projection"
)

// certificatesCmd represents the certificates command
var certificatesCmd = &cobra.Command{
	Use:   "certificates",
	Short: "List certificate submissions",
	Long: `Look up every completed certificate workflow in the range and list the
submitted certificate number, customer and address.

Lookups run in parallel; progress is reported on stderr.`,
	Example: `  # Certificates submitted today
  flowboard certificates

  # Search by customer, address or certificate number
  flowboard certificates --range "last 7 days" --search "main st"`,
	RunE: runCertificates,
}

func init() {
	rootCmd.AddCommand(certificatesCmd)

	certificatesCmd.Flags().StringP("range", "r", "", "Date range (default is the saved selection)")
	certificatesCmd.Flags().StringP("search", "s", "", "Filter submissions by text")
	certificatesCmd.Flags().Bool("json", false, "Print the result as JSON")
}

func runCertificates(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	rangeFlag, _ := cmd.Flags().GetString("range")
	query, _ := cmd.Flags().GetString("search")
	asJSON, _ := cmd.Flags().GetBool("json")

	rng, err := a.resolveRange(rangeFlag)
	if err != nil {
		return err
	}

	tenantID := a.session.Current().Tenant.ID
	errOut := cmd.ErrOrStderr()
	progress, err := a.service.Certificates(cmd.Context(), rng, func(p projection.Progress) {
		view := dashboard.NewCertificatesView(tenantID, rng, query, p)
		if view.Loading {
			fmt.Fprintf(errOut, "\r%s", view.LoadingText())
		}
	})
	if err != nil {
		return fmt.Errorf("failed to load certificates: %w", err)
	}
	if progress.Total > 0 {
		fmt.Fprintln(errOut)
	}

	view := dashboard.NewCertificatesView(tenantID, rng, query, progress)
	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	if view.Failed > 0 {
		color.New(color.FgYellow).Fprintf(errOut, "%d lookups failed\n", view.Failed)
	}
	if len(view.Submissions) == 0 {
		fmt.Fprintln(out, "No certificate submissions found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CERTIFICATE\tCUSTOMER\tEMAIL\tADDRESS\tSTATUS\tCREATED")
	for _, s := range view.Submissions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			s.CertificateNumber, s.CustomerName, s.CustomerEmail, s.ExactAddress, s.Status, s.CreatedAt)
	}
	return tw.Flush()
}
