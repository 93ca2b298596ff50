package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"accounting-reconciliation-engine/cmd/reconengine/config"
	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/reconciler"
	"accounting-reconciliation-engine/internal/reporter"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

var (
	reconcileTenant  string
	reconcileAccount string
	reconcileFrom    string
	reconcileTo      string
	reconcileLimit   int
	reconcileWorkers int
	reconcileProfile string
	reconcileFormat  string
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile a tenant's unmatched transactions",
	Long: `Reconcile runs batch matching over a tenant's unreconciled bank
transactions. With --account and a period it reconciles one statement;
without them it works through the tenant's backlog, newest bookings first.

The run is safe to repeat: settled transactions are skipped and open
suggestions and exceptions are not duplicated.

Examples:
  reconengine reconcile --tenant <id>
  reconengine reconcile --tenant <id> --account acct-1 --from 2024-01-01 --to 2024-02-01
  reconengine reconcile --tenant <id> --workers 8 --output-format json`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)

	reconcileCmd.Flags().StringVar(&reconcileTenant, "tenant", "", "tenant ID (required)")
	reconcileCmd.Flags().StringVar(&reconcileAccount, "account", "", "bank account for statement mode")
	reconcileCmd.Flags().StringVar(&reconcileFrom, "from", "", "statement period start (YYYY-MM-DD, inclusive)")
	reconcileCmd.Flags().StringVar(&reconcileTo, "to", "", "statement period end (YYYY-MM-DD, exclusive)")
	reconcileCmd.Flags().IntVar(&reconcileLimit, "limit", 0, "max transactions per run (default 1000)")
	reconcileCmd.Flags().IntVar(&reconcileWorkers, "workers", 0, "concurrent matching workers (default 4)")
	reconcileCmd.Flags().StringVar(&reconcileProfile, "profile", "default", "matching profile (default, strict, relaxed)")
	reconcileCmd.Flags().StringVarP(&reconcileFormat, "output-format", "o", "console", "output format (console, json, csv)")

	reconcileCmd.MarkFlagRequired("tenant")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tenantID, err := parseTenant(reconcileTenant)
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(reconcileFormat)
	if err != nil {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "output_format", reconcileFormat, err)
	}
	rep, err := reporter.NewReporter(reportConfig)
	if err != nil {
		return err
	}

	env, err := newEnvironment(ctx, tenantID, reconcileProfile, reconcileLimit, reconcileWorkers)
	if err != nil {
		return err
	}
	defer env.close()

	statementMode := reconcileAccount != "" || reconcileFrom != "" || reconcileTo != ""

	var result *reconciler.BatchResult
	if statementMode {
		periodStart, periodEnd, err := parsePeriod(reconcileFrom, reconcileTo)
		if err != nil {
			return err
		}
		result, err = env.service.ReconcileStatement(ctx, tenantID, reconcileAccount, periodStart, periodEnd)
		if err != nil {
			return err
		}
	} else {
		result, err = env.service.ReconcileUnmatched(ctx, tenantID)
		if err != nil {
			return err
		}
	}

	return rep.WriteBatchReport(result, os.Stdout)
}

// parsePeriod parses the statement period flags. Both bounds are required
// in statement mode.
func parsePeriod(from, to string) (time.Time, time.Time, error) {
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, engineerrors.ValidationError(
			engineerrors.CodeMissingField, "period",
			fmt.Sprintf("from=%q to=%q", from, to),
			fmt.Errorf("statement mode needs both --from and --to"))
	}

	periodStart, err := models.ParseTimeWithFormats(from)
	if err != nil {
		return time.Time{}, time.Time{}, engineerrors.ValidationError(engineerrors.CodeInvalidData, "from", from, err)
	}
	periodEnd, err := models.ParseTimeWithFormats(to)
	if err != nil {
		return time.Time{}, time.Time{}, engineerrors.ValidationError(engineerrors.CodeInvalidData, "to", to, err)
	}

	return periodStart, periodEnd, nil
}
