package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"accounting-reconciliation-engine/pkg/logger"
)

var (
	cfgFile   string
	verbose   bool
	logFormat string
	version   = "dev"
	commit    = "unknown"
	date      = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "reconengine",
	Short: "Bank transaction reconciliation engine",
	Long: `Reconengine matches bank transactions against extracted documents and
ledger entries. Confident matches settle automatically, borderline matches
become review suggestions, and everything else lands in the exception queue
with a remediation playbook. Reviewer decisions feed back into per-tenant
matching thresholds.

Examples:
  reconengine seed --tenant <id> --bank-file bank.csv --documents-file docs.csv
  reconengine reconcile --tenant <id> --output-format json
  reconengine exceptions list --tenant <id>
  reconengine summary --tenant <id>`,
	Version:       getVersionString(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().String("database-url", "", "postgres DSN; omit to run against demo files")
	rootCmd.PersistentFlags().String("data-dir", "", "directory with bank.csv and documents.csv demo files")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("database_url", rootCmd.PersistentFlags().Lookup("database-url"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
}

// initConfig reads the config file and environment, then configures logging
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)

		if err := viper.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Error reading config file: %s\n", err)
			os.Exit(1)
		}

		if viper.GetBool("verbose") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}

	viper.SetEnvPrefix("RECONENGINE")
	viper.AutomaticEnv()

	configureLogging()
}

// configureLogging installs the global logger per the CLI flags. Logs go to
// stderr so report output on stdout stays machine-readable.
func configureLogging() {
	logConfig := logger.DefaultConfig()
	logConfig.Output = logger.StderrOutput

	if viper.GetBool("verbose") {
		logConfig.Level = logger.DebugLevel
	} else {
		logConfig.Level = logger.WarnLevel
	}

	if viper.GetString("log_format") == "json" {
		logConfig.Format = logger.JSONFormat
	} else {
		logConfig.Format = logger.TextFormat
	}

	l, err := logger.NewLogger(logConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %s\n", err)
		os.Exit(1)
	}
	logger.SetGlobalLogger(l)
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

func getVersionString() string {
	if version == "dev" {
		return fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	}
	return version
}
