// Package reporter renders reconciliation results for operators.
//
// Three report types are supported: batch reports summarizing one
// reconciliation run, exception reports listing the open review queue with
// remediation playbooks, and summary reports with the tenant's dashboard
// rollup. Each renders to an io.Writer in one of three formats:
//
//   - Console: human-readable output for terminal display
//   - JSON: structured output for programmatic consumption
//   - CSV: row-oriented output for spreadsheet triage
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/reconciler"
)

// Format represents the supported report output formats
type Format string

const (
	FormatConsole Format = "console"
	FormatJSON    Format = "json"
	FormatCSV     Format = "csv"
)

// IsValid checks if the output format is supported
func (f Format) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report rendering
type ReportConfig struct {
	Format Format `json:"format"`

	// Exception report options
	IncludePlaybooks bool `json:"include_playbooks"`
	IncludeResolved  bool `json:"include_resolved"`
	MaxExceptions    int  `json:"max_exceptions"`
	SortBySeverity   bool `json:"sort_by_severity"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:           FormatConsole,
		IncludePlaybooks: true,
		IncludeResolved:  false,
		MaxExceptions:    0,
		SortBySeverity:   true,
		CSVDelimiter:     ',',
		CSVHeaders:       true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.MaxExceptions < 0 {
		return fmt.Errorf("max exceptions cannot be negative, got %d", c.MaxExceptions)
	}

	return nil
}

// Reporter renders reconciliation reports in the configured format
type Reporter struct {
	config *ReportConfig
}

// NewReporter creates a reporter with the specified configuration
func NewReporter(config *ReportConfig) (*Reporter, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &Reporter{
		config: config,
	}, nil
}

// WriteBatchReport renders the outcome of one reconciliation run
func (r *Reporter) WriteBatchReport(result *reconciler.BatchResult, writer io.Writer) error {
	if result == nil {
		return fmt.Errorf("batch result cannot be nil")
	}

	switch r.config.Format {
	case FormatConsole:
		return r.writeBatchConsole(result, writer)
	case FormatJSON:
		return writeJSON(result, writer)
	case FormatCSV:
		return r.writeBatchCSV(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", r.config.Format)
	}
}

// WriteExceptionReport renders the review queue. Terminal exceptions are
// omitted unless the configuration includes them, and the queue is ordered
// most urgent first when severity sorting is on.
func (r *Reporter) WriteExceptionReport(exceptions []*models.ReconciliationException, writer io.Writer) error {
	filtered := r.filterExceptions(exceptions)

	switch r.config.Format {
	case FormatConsole:
		return r.writeExceptionsConsole(filtered, writer)
	case FormatJSON:
		return writeJSON(filtered, writer)
	case FormatCSV:
		return r.writeExceptionsCSV(filtered, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", r.config.Format)
	}
}

// WriteSummaryReport renders the tenant dashboard rollup
func (r *Reporter) WriteSummaryReport(summary *models.ReconciliationSummary, writer io.Writer) error {
	if summary == nil {
		return fmt.Errorf("summary cannot be nil")
	}

	switch r.config.Format {
	case FormatConsole:
		return r.writeSummaryConsole(summary, writer)
	case FormatJSON:
		return writeJSON(summary, writer)
	case FormatCSV:
		return r.writeSummaryCSV(summary, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", r.config.Format)
	}
}

// Batch report rendering

func (r *Reporter) writeBatchConsole(result *reconciler.BatchResult, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION BATCH REPORT\n")
	fmt.Fprintf(writer, "Tenant:   %s\n", result.TenantID)
	fmt.Fprintf(writer, "Started:  %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Elapsed:  %v\n\n", result.Elapsed)

	fmt.Fprintf(writer, "=== OUTCOMES ===\n")
	fmt.Fprintf(writer, "Total Processed:  %d\n", result.Total)
	fmt.Fprintf(writer, "Auto-Matched:     %d (%.1f%%)\n",
		result.Matched, percentage(result.Matched, result.Total))
	fmt.Fprintf(writer, "Suggested:        %d (%.1f%%)\n",
		result.Suggested, percentage(result.Suggested, result.Total))
	fmt.Fprintf(writer, "Unmatched:        %d (%.1f%%)\n",
		result.Unmatched, percentage(result.Unmatched, result.Total))

	if result.Failed > 0 || result.Skipped > 0 {
		fmt.Fprintf(writer, "Failed:           %d\n", result.Failed)
		fmt.Fprintf(writer, "Skipped:          %d\n", result.Skipped)
	}

	fmt.Fprintf(writer, "\nExceptions Opened: %d\n", result.Exceptions)

	return nil
}

func (r *Reporter) writeBatchCSV(result *reconciler.BatchResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = r.config.CSVDelimiter
	defer csvWriter.Flush()

	if r.config.CSVHeaders {
		headers := []string{
			"Tenant_ID", "Total", "Matched", "Suggested", "Unmatched",
			"Exceptions", "Failed", "Skipped", "Started_At", "Elapsed",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	record := []string{
		result.TenantID.String(),
		fmt.Sprintf("%d", result.Total),
		fmt.Sprintf("%d", result.Matched),
		fmt.Sprintf("%d", result.Suggested),
		fmt.Sprintf("%d", result.Unmatched),
		fmt.Sprintf("%d", result.Exceptions),
		fmt.Sprintf("%d", result.Failed),
		fmt.Sprintf("%d", result.Skipped),
		result.StartedAt.Format(time.RFC3339),
		result.Elapsed.String(),
	}
	if err := csvWriter.Write(record); err != nil {
		return fmt.Errorf("failed to write batch record: %w", err)
	}

	return nil
}

// Exception report rendering

func (r *Reporter) filterExceptions(exceptions []*models.ReconciliationException) []*models.ReconciliationException {
	filtered := make([]*models.ReconciliationException, 0, len(exceptions))
	for _, exc := range exceptions {
		if !r.config.IncludeResolved && exc.Status.IsTerminal() {
			continue
		}
		filtered = append(filtered, exc)
	}

	if r.config.SortBySeverity {
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].Severity.Rank() > filtered[j].Severity.Rank()
		})
	}

	if r.config.MaxExceptions > 0 && len(filtered) > r.config.MaxExceptions {
		filtered = filtered[:r.config.MaxExceptions]
	}

	return filtered
}

func (r *Reporter) writeExceptionsConsole(exceptions []*models.ReconciliationException, writer io.Writer) error {
	fmt.Fprintf(writer, "EXCEPTION REPORT\n")
	fmt.Fprintf(writer, "Total Exceptions: %d\n\n", len(exceptions))

	if len(exceptions) == 0 {
		fmt.Fprintf(writer, "The review queue is empty.\n")
		return nil
	}

	// Group by severity, most urgent first
	severityGroups := make(map[models.ExceptionSeverity][]*models.ReconciliationException)
	for _, exc := range exceptions {
		severityGroups[exc.Severity] = append(severityGroups[exc.Severity], exc)
	}

	severities := []models.ExceptionSeverity{
		models.SeverityCritical,
		models.SeverityHigh,
		models.SeverityMedium,
		models.SeverityLow,
	}

	for _, severity := range severities {
		group := severityGroups[severity]
		if len(group) == 0 {
			continue
		}

		fmt.Fprintf(writer, "=== %s (%d) ===\n", strings.ToUpper(severity.String()), len(group))
		for _, exc := range group {
			r.printException(exc, writer)
		}
		fmt.Fprintf(writer, "\n")
	}

	return nil
}

func (r *Reporter) printException(exc *models.ReconciliationException, writer io.Writer) {
	fmt.Fprintf(writer, "  [%s] %s: %s\n", exc.Status, exc.Type, exc.Description)
	fmt.Fprintf(writer, "    ID: %s, Opened: %s\n", exc.ID, exc.CreatedAt.Format("2006-01-02 15:04:05"))

	if exc.BankTransactionID != nil {
		fmt.Fprintf(writer, "    Transaction: %s\n", exc.BankTransactionID)
	}
	if exc.AnomalyScore > 0 {
		fmt.Fprintf(writer, "    Anomaly Score: %.2f\n", exc.AnomalyScore)
	}
	if exc.AssignedTo != nil {
		fmt.Fprintf(writer, "    Assigned To: %s\n", exc.AssignedTo)
	}

	if r.config.IncludePlaybooks {
		steps, err := models.PlaybookFromJSON(exc.Playbook)
		if err != nil || len(steps) == 0 {
			return
		}
		fmt.Fprintf(writer, "    Playbook:\n")
		for _, step := range steps {
			fmt.Fprintf(writer, "      %d. %s: %s\n", step.Step, step.Action, step.Description)
		}
	}
}

func (r *Reporter) writeExceptionsCSV(exceptions []*models.ReconciliationException, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = r.config.CSVDelimiter
	defer csvWriter.Flush()

	if r.config.CSVHeaders {
		headers := []string{
			"ID", "Type", "Severity", "Status", "Transaction_ID",
			"Description", "Anomaly_Score", "Assigned_To", "Created_At",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	for _, exc := range exceptions {
		txID := ""
		if exc.BankTransactionID != nil {
			txID = exc.BankTransactionID.String()
		}
		assignee := ""
		if exc.AssignedTo != nil {
			assignee = exc.AssignedTo.String()
		}

		record := []string{
			exc.ID.String(),
			exc.Type.String(),
			exc.Severity.String(),
			exc.Status.String(),
			txID,
			exc.Description,
			fmt.Sprintf("%.2f", exc.AnomalyScore),
			assignee,
			exc.CreatedAt.Format(time.RFC3339),
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write exception record: %w", err)
		}
	}

	return nil
}

// Summary report rendering

func (r *Reporter) writeSummaryConsole(summary *models.ReconciliationSummary, writer io.Writer) error {
	fmt.Fprintf(writer, "RECONCILIATION SUMMARY\n")
	fmt.Fprintf(writer, "Tenant:    %s\n", summary.TenantID)
	fmt.Fprintf(writer, "Generated: %s\n\n", summary.GeneratedAt.Format(time.RFC3339))

	fmt.Fprintf(writer, "=== TRANSACTIONS ===\n")
	fmt.Fprintf(writer, "Total:      %d\n", summary.TotalTransactions)
	fmt.Fprintf(writer, "Reconciled: %d (%.1f%%)\n",
		summary.ReconciledTransactions, summary.ReconciledRate()*100)
	fmt.Fprintf(writer, "Auto-Match Rate: %.1f%%\n\n", summary.AutoMatchRate*100)

	fmt.Fprintf(writer, "=== EXCEPTIONS ===\n")
	fmt.Fprintf(writer, "Open:     %d\n", summary.OpenExceptions)
	fmt.Fprintf(writer, "Critical: %d\n\n", summary.CriticalExceptions)

	fmt.Fprintf(writer, "Avg Time to Reconcile: %.1f hours\n", summary.AvgTimeToReconcileHours)

	return nil
}

func (r *Reporter) writeSummaryCSV(summary *models.ReconciliationSummary, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = r.config.CSVDelimiter
	defer csvWriter.Flush()

	if r.config.CSVHeaders {
		headers := []string{
			"Tenant_ID", "Total_Transactions", "Reconciled_Transactions",
			"Auto_Match_Rate", "Open_Exceptions", "Critical_Exceptions",
			"Avg_Time_To_Reconcile_Hours", "Generated_At",
		}
		if err := csvWriter.Write(headers); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	record := []string{
		summary.TenantID.String(),
		fmt.Sprintf("%d", summary.TotalTransactions),
		fmt.Sprintf("%d", summary.ReconciledTransactions),
		fmt.Sprintf("%.4f", summary.AutoMatchRate),
		fmt.Sprintf("%d", summary.OpenExceptions),
		fmt.Sprintf("%d", summary.CriticalExceptions),
		fmt.Sprintf("%.2f", summary.AvgTimeToReconcileHours),
		summary.GeneratedAt.Format(time.RFC3339),
	}
	if err := csvWriter.Write(record); err != nil {
		return fmt.Errorf("failed to write summary record: %w", err)
	}

	return nil
}

// Helpers

func writeJSON(v interface{}, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}
