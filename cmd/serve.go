package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowboard/internal/dashboard"
	logpkg "flowboard/internal/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the live dashboard",
	Long: `Start the HTML dashboard with a JSON API and WebSocket updates.

The dashboard provides:
- Headline metrics for the selected time range
- Execution volume, status breakdown and workflow distribution
- Recent errors and a sortable executions table
- Certificate lookup with live loading progress
- Tenant management

Connected browsers receive a fresh snapshot every refresh interval.`,
	Example: `  # Start dashboard on default port (3000)
  flowboard serve

  # Start on custom port without opening a browser
  flowboard serve --port 8080 --open=false

  # Export every refreshed snapshot to Kafka
  FLOWBOARD_EXPORT_KAFKA_BROKERS=localhost:9092 \
  FLOWBOARD_EXPORT_SCHEMA_REGISTRY_URL=http://localhost:8082 flowboard serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 3000, "Dashboard server port")
	serveCmd.Flags().Bool("open", true, "Automatically open dashboard in browser")
	serveCmd.Flags().Duration("refresh", dashboard.DefaultRefreshInterval, "Snapshot refresh interval")

	_ = viper.BindPFlag("serve.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("serve.open", serveCmd.Flags().Lookup("open"))
	_ = viper.BindPFlag("serve.refresh", serveCmd.Flags().Lookup("refresh"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logpkg.Global()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, appOptions{export: true})
	if err != nil {
		return err
	}
	defer a.Close()

	port := viper.GetInt("serve.port")
	server := dashboard.NewServer(a.service, dashboard.ServerOptions{
		Port:            port,
		RefreshInterval: viper.GetDuration("serve.refresh"),
		Version:         version,
		Logger:          logger,
	})

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- server.Start(ctx)
	}()

	url := fmt.Sprintf("http://localhost:%d", port)
	logger.Info("dashboard available", "url", url, "tenant", a.session.Current().Tenant.DisplayName, "preferences", a.store.Path())
	if viper.GetBool("serve.open") {
		if err := openBrowser(url); err != nil {
			logger.Warn("failed to open browser automatically", "url", url, "error", err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		logger.Info("shutting down dashboard")
		cancel()
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("dashboard server error: %w", err)
		}
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("error during dashboard shutdown", "error", err)
	}

	logger.Info("dashboard stopped")
	return nil
}

func openBrowser(url string) error {
	var cmd string
	var args []string

	switch {
	case isCommandAvailable("xdg-open"):
		cmd = "xdg-open"
		args = []string{url}
	case isCommandAvailable("open"):
		cmd = "open"
		args = []string{url}
	case isCommandAvailable("cmd"):
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		return fmt.Errorf("no suitable command found to open browser")
	}

	return exec.Command(cmd, args...).Start()
}

func isCommandAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
