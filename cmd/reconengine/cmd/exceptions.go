package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"accounting-reconciliation-engine/cmd/reconengine/config"
	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/reporter"
	"accounting-reconciliation-engine/internal/store"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

var (
	excTenant   string
	excStatus   string
	excType     string
	excSeverity string
	excLimit    int
	excFormat   string

	excID       string
	excActor    string
	excNotes    string
	excDismiss  bool
	excAssignee string
)

var exceptionsCmd = &cobra.Command{
	Use:   "exceptions",
	Short: "Work the exception review queue",
	Long: `Exceptions manages the review queue: transactions, documents, and
matches that automatic reconciliation could not settle. List shows the
queue most urgent first, assign hands an exception to a reviewer, and
resolve closes it with notes.

Examples:
  reconengine exceptions list --tenant <id> --status open
  reconengine exceptions assign --tenant <id> --exception <id> --assignee <id>
  reconengine exceptions resolve --tenant <id> --exception <id> --actor <id> --notes "vendor credited"`,
}

var exceptionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exceptions for a tenant",
	RunE:  runExceptionsList,
}

var exceptionsAssignCmd = &cobra.Command{
	Use:   "assign",
	Short: "Assign an exception to a reviewer",
	RunE:  runExceptionsAssign,
}

var exceptionsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve or dismiss an exception",
	RunE:  runExceptionsResolve,
}

func init() {
	rootCmd.AddCommand(exceptionsCmd)
	exceptionsCmd.AddCommand(exceptionsListCmd, exceptionsAssignCmd, exceptionsResolveCmd)

	exceptionsCmd.PersistentFlags().StringVar(&excTenant, "tenant", "", "tenant ID (required)")
	exceptionsCmd.MarkPersistentFlagRequired("tenant")

	exceptionsListCmd.Flags().StringVar(&excStatus, "status", "", "filter by status (open, in_progress, resolved, dismissed)")
	exceptionsListCmd.Flags().StringVar(&excType, "type", "", "filter by exception type")
	exceptionsListCmd.Flags().StringVar(&excSeverity, "severity", "", "filter by severity")
	exceptionsListCmd.Flags().IntVar(&excLimit, "limit", 0, "max exceptions to list")
	exceptionsListCmd.Flags().StringVarP(&excFormat, "output-format", "o", "console", "output format (console, json, csv)")

	exceptionsAssignCmd.Flags().StringVar(&excID, "exception", "", "exception ID (required)")
	exceptionsAssignCmd.Flags().StringVar(&excAssignee, "assignee", "", "reviewer ID (required)")
	exceptionsAssignCmd.MarkFlagRequired("exception")
	exceptionsAssignCmd.MarkFlagRequired("assignee")

	exceptionsResolveCmd.Flags().StringVar(&excID, "exception", "", "exception ID (required)")
	exceptionsResolveCmd.Flags().StringVar(&excActor, "actor", "", "resolving reviewer ID (required)")
	exceptionsResolveCmd.Flags().StringVar(&excNotes, "notes", "", "resolution notes")
	exceptionsResolveCmd.Flags().BoolVar(&excDismiss, "dismiss", false, "dismiss instead of resolve")
	exceptionsResolveCmd.MarkFlagRequired("exception")
	exceptionsResolveCmd.MarkFlagRequired("actor")
}

func runExceptionsList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tenantID, err := parseTenant(excTenant)
	if err != nil {
		return err
	}

	filter, err := buildExceptionFilter()
	if err != nil {
		return err
	}

	reportConfig, err := config.CreateReportConfig(excFormat)
	if err != nil {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "output_format", excFormat, err)
	}
	// The store filter already decides what to show; the reporter must not
	// filter a second time.
	reportConfig.IncludeResolved = true
	rep, err := reporter.NewReporter(reportConfig)
	if err != nil {
		return err
	}

	env, err := newEnvironment(ctx, tenantID, "", 0, 0)
	if err != nil {
		return err
	}
	defer env.close()

	excs, err := env.exceptions.List(ctx, tenantID, filter)
	if err != nil {
		return err
	}

	return rep.WriteExceptionReport(excs, os.Stdout)
}

func buildExceptionFilter() (store.ExceptionFilter, error) {
	filter := store.ExceptionFilter{Limit: excLimit}

	if excStatus != "" {
		status := models.ExceptionStatus(excStatus)
		if !status.IsValid() {
			return filter, engineerrors.ValidationError(engineerrors.CodeInvalidData, "status", excStatus, nil)
		}
		filter.Status = &status
	}
	if excType != "" {
		typed := models.ExceptionType(excType)
		if !typed.IsValid() {
			return filter, engineerrors.ValidationError(engineerrors.CodeInvalidData, "type", excType, nil)
		}
		filter.Type = &typed
	}
	if excSeverity != "" {
		severity := models.ExceptionSeverity(excSeverity)
		if !severity.IsValid() {
			return filter, engineerrors.ValidationError(engineerrors.CodeInvalidData, "severity", excSeverity, nil)
		}
		filter.Severity = &severity
	}

	return filter, nil
}

func runExceptionsAssign(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tenantID, err := parseTenant(excTenant)
	if err != nil {
		return err
	}
	exceptionID, err := parseID("exception", excID)
	if err != nil {
		return err
	}
	assigneeID, err := parseID("assignee", excAssignee)
	if err != nil {
		return err
	}

	env, err := newEnvironment(ctx, tenantID, "", 0, 0)
	if err != nil {
		return err
	}
	defer env.close()

	exc, err := env.exceptions.Assign(ctx, tenantID, exceptionID, assigneeID)
	if err != nil {
		return err
	}

	fmt.Printf("Exception %s assigned to %s (status %s)\n", exc.ID, assigneeID, exc.Status)
	return nil
}

func runExceptionsResolve(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	tenantID, err := parseTenant(excTenant)
	if err != nil {
		return err
	}
	exceptionID, err := parseID("exception", excID)
	if err != nil {
		return err
	}
	actorID, err := parseID("actor", excActor)
	if err != nil {
		return err
	}

	env, err := newEnvironment(ctx, tenantID, "", 0, 0)
	if err != nil {
		return err
	}
	defer env.close()

	exc, err := env.exceptions.Resolve(ctx, tenantID, exceptionID, actorID, excNotes, excDismiss)
	if err != nil {
		return err
	}

	fmt.Printf("Exception %s is now %s\n", exc.ID, exc.Status)
	return nil
}
