package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"flowboard/internal/api"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "flowboard",
	Short: "An operational dashboard for workflow execution telemetry",
	Long: `Flowboard is a dashboard for the workflow executions of a multi-tenant
automation platform. It provides:

- Success rate, error count and average duration per time range
- Execution volume over time and status breakdown
- Per-workflow distribution and recent errors
- Certificate submission lookup with live loading progress
- Sortable, paginated recent executions
- Optional export of metric snapshots to Kafka`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return configureLogging(cmd.ErrOrStderr())
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.flowboard.yaml)")
	flags.String("api-url", api.DefaultBaseURL, "Upstream API base URL")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format (text, json)")
	flags.String("preferences-file", "", "Preferences file (default is $HOME/.flowboard/preferences.yaml)")
	flags.String("timezone", "", "IANA timezone used for local windows (default is the system zone)")
	flags.Int("concurrency", 6, "Maximum parallel instance lookups")

	_ = viper.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("log_format", flags.Lookup("log-format"))
	_ = viper.BindPFlag("preferences_file", flags.Lookup("preferences-file"))
	_ = viper.BindPFlag("timezone", flags.Lookup("timezone"))
	_ = viper.BindPFlag("fetch.concurrency", flags.Lookup("concurrency"))

	viper.SetDefault("api_url", api.DefaultBaseURL)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("fetch.concurrency", 6)
	viper.SetDefault("export.kafka.topic", "flowboard.metrics")
}

// initConfig reads in .env, config file and ENV variables.
func initConfig() {
	// a missing .env is normal
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".flowboard")
	}

	viper.SetEnvPrefix("FLOWBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}
