package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flowboard/internal/aggregate"
	"flowboard/internal/dashboard"
	"flowboard/internal/format"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the dashboard metrics for a time range",
	Long: `Fetch the executions of the active tenant and print the headline
metrics, status breakdown, workflow distribution and recent errors.

Use --json for the raw snapshot or --html to write a standalone report.`,
	Example: `  # Today's metrics for the active tenant
  flowboard report

  # Last 7 days as JSON
  flowboard report --range "last 7 days" --json

  # Write an HTML report
  flowboard report --range "this week" --html weekly.html`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringP("range", "r", "", "Date range (default is the saved selection)")
	reportCmd.Flags().Bool("json", false, "Print the snapshot as JSON")
	reportCmd.Flags().String("html", "", "Write an HTML report to this file")
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	rangeFlag, _ := cmd.Flags().GetString("range")
	asJSON, _ := cmd.Flags().GetBool("json")
	htmlFile, _ := cmd.Flags().GetString("html")

	rng, err := a.resolveRange(rangeFlag)
	if err != nil {
		return err
	}

	snap, err := a.service.Snapshot(cmd.Context(), rng)
	if err != nil {
		return fmt.Errorf("failed to build snapshot: %w", err)
	}

	out := cmd.OutOrStdout()
	if htmlFile != "" {
		if err := writeHTMLReport(htmlFile, snap); err != nil {
			return err
		}
		fmt.Fprintf(out, "Report written to %s\n", htmlFile)
		return nil
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printSnapshot(out, snap)
	return nil
}

func writeHTMLReport(path string, snap *dashboard.Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := dashboard.WriteHTMLReport(f, snap); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

var statusColors = map[string]*color.Color{
	aggregate.StatusComplete:   color.New(color.FgGreen),
	aggregate.StatusError:      color.New(color.FgRed),
	aggregate.StatusRunning:    color.New(color.FgBlue),
	aggregate.StatusStarting:   color.New(color.FgYellow),
	aggregate.StatusWaiting:    color.New(color.FgYellow),
	aggregate.StatusTerminated: color.New(color.FgHiBlack),
}

func statusColor(status string) *color.Color {
	if c, ok := statusColors[strings.ToLower(status)]; ok {
		return c
	}
	return color.New(color.Reset)
}

func printSnapshot(w io.Writer, snap *dashboard.Snapshot) {
	title := color.New(color.FgCyan, color.Bold)
	heading := color.New(color.Bold)

	title.Fprintf(w, "%s · %s\n", snap.TenantName, snap.RangeLabel)
	fmt.Fprintf(w, "Fetched %s (%d records)\n\n", snap.FetchedAt.Format("2006-01-02 15:04:05"), snap.RecordCount)

	m := snap.Metrics
	rate := color.New(color.FgGreen)
	if m.ErrorCount > 0 {
		rate = color.New(color.FgYellow)
	}
	fmt.Fprintf(w, "  Total executions  %d\n", m.TotalExecutions)
	fmt.Fprintf(w, "  Success rate      %s\n", rate.Sprint(format.Percent(m.SuccessRate)))
	fmt.Fprintf(w, "  Errors            %s\n", color.New(color.FgRed).Sprint(m.ErrorCount))
	fmt.Fprintf(w, "  Avg duration      %s\n", format.Duration(m.AvgDurationSeconds))
	fmt.Fprintf(w, "  Running           %d\n", m.RunningCount)

	if len(snap.Status) > 0 {
		fmt.Fprintln(w)
		heading.Fprintln(w, "Status")
		for _, s := range snap.Status {
			fmt.Fprintf(w, "  %-12s %d\n", statusColor(s.Name).Sprint(s.Name), s.Value)
		}
	}

	if len(snap.Distribution) > 0 {
		fmt.Fprintln(w)
		heading.Fprintln(w, "Workflows")
		for _, d := range snap.Distribution {
			line := fmt.Sprintf("  %-32s %5d", d.Name, d.Count)
			if d.Errors > 0 {
				line += color.New(color.FgRed).Sprintf("  (%d errors)", d.Errors)
			}
			fmt.Fprintln(w, line)
		}
	}

	fmt.Fprintln(w)
	heading.Fprintln(w, "Recent errors")
	if len(snap.RecentErrors) == 0 {
		color.New(color.FgGreen).Fprintln(w, "  No errors in this range")
		return
	}
	for _, e := range snap.RecentErrors {
		fmt.Fprintf(w, "  %-15s %-32s %-10s %s\n", e.ShortID, e.Workflow, e.Duration, e.Age)
	}
}
