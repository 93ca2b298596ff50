package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"accounting-reconciliation-engine/cmd/reconengine/config"
	"accounting-reconciliation-engine/internal/reporter"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

var (
	summaryTenant string
	summaryFormat string
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the tenant's reconciliation rollup",
	Long: `Summary prints the dashboard rollup for a tenant: how much of the
transaction volume is reconciled, the auto-match rate, the open and
critical exception counts, and the average time to reconcile.

Examples:
  reconengine summary --tenant <id>
  reconengine summary --tenant <id> --output-format json`,
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().StringVar(&summaryTenant, "tenant", "", "tenant ID (required)")
	summaryCmd.Flags().StringVarP(&summaryFormat, "output-format", "o", "console", "output format (console, json, csv)")

	summaryCmd.MarkFlagRequired("tenant")
}

func runSummary(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tenantID, err := parseTenant(summaryTenant)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(summaryFormat)
	if err != nil {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "output_format", summaryFormat, err)
	}
	rep, err := reporter.NewReporter(reportConfig)
	if err != nil {
		return err
	}

	env, err := newEnvironment(ctx, tenantID, "", 0, 0)
	if err != nil {
		return err
	}
	defer env.close()

	summary, err := env.service.GetSummary(ctx, tenantID)
	if err != nil {
		return err
	}

	return rep.WriteSummaryReport(summary, os.Stdout)
}
