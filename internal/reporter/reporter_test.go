package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/reconciler"
)

var reportTenant = uuid.MustParse("5f0c2d8e-3b71-4c9a-9a4d-6e8f0a1b2c3d")

func sampleBatchResult() *reconciler.BatchResult {
	return &reconciler.BatchResult{
		TenantID:   reportTenant,
		Total:      100,
		Matched:    70,
		Suggested:  15,
		Unmatched:  15,
		Exceptions: 18,
		StartedAt:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		Elapsed:    4 * time.Second,
	}
}

func sampleException(severity models.ExceptionSeverity, status models.ExceptionStatus) *models.ReconciliationException {
	txID := uuid.New()
	playbook, _ := models.PlaybookToJSON([]models.PlaybookStep{
		{Step: 1, Action: "review", Description: "Check the vendor statement"},
		{Step: 2, Action: "match", Description: "Link the transaction by hand"},
	})

	return &models.ReconciliationException{
		ID:                uuid.New(),
		TenantID:          reportTenant,
		Type:              models.ExceptionTypeUnmatched,
		Severity:          severity,
		Status:            status,
		BankTransactionID: &txID,
		Description:       "no candidate above the manual review floor",
		AnomalyScore:      0.4,
		Playbook:          playbook,
		CreatedAt:         time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestReporter_BatchConsole(t *testing.T) {
	r, err := NewReporter(nil)
	if err != nil {
		t.Fatalf("NewReporter failed: %v", err)
	}

	var buf bytes.Buffer
	if err := r.WriteBatchReport(sampleBatchResult(), &buf); err != nil {
		t.Fatalf("WriteBatchReport failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"RECONCILIATION BATCH REPORT",
		"Total Processed:  100",
		"Auto-Matched:     70 (70.0%)",
		"Suggested:        15 (15.0%)",
		"Exceptions Opened: 18",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, output)
		}
	}

	// No failures or skips means those lines stay out of the report.
	if strings.Contains(output, "Failed:") {
		t.Error("Expected no failure section for a clean run")
	}
}

func TestReporter_BatchJSON(t *testing.T) {
	r, err := NewReporter(&ReportConfig{Format: FormatJSON})
	if err != nil {
		t.Fatalf("NewReporter failed: %v", err)
	}

	var buf bytes.Buffer
	if err := r.WriteBatchReport(sampleBatchResult(), &buf); err != nil {
		t.Fatalf("WriteBatchReport failed: %v", err)
	}

	var decoded reconciler.BatchResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if decoded.Total != 100 || decoded.Matched != 70 {
		t.Errorf("Round-tripped result does not match, got %+v", decoded)
	}
}

func TestReporter_BatchCSV(t *testing.T) {
	r, err := NewReporter(&ReportConfig{Format: FormatCSV, CSVDelimiter: ',', CSVHeaders: true})
	if err != nil {
		t.Fatalf("NewReporter failed: %v", err)
	}

	var buf bytes.Buffer
	if err := r.WriteBatchReport(sampleBatchResult(), &buf); err != nil {
		t.Fatalf("WriteBatchReport failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Report is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected header and one data row, got %d rows", len(records))
	}
	if records[0][0] != "Tenant_ID" {
		t.Errorf("Expected Tenant_ID header, got %s", records[0][0])
	}
	if records[1][1] != "100" {
		t.Errorf("Expected total 100, got %s", records[1][1])
	}
}

func TestReporter_ExceptionsSeverityOrder(t *testing.T) {
	r, err := NewReporter(nil)
	if err != nil {
		t.Fatalf("NewReporter failed: %v", err)
	}

	exceptions := []*models.ReconciliationException{
		sampleException(models.SeverityLow, models.ExceptionStatusOpen),
		sampleException(models.SeverityCritical, models.ExceptionStatusOpen),
		sampleException(models.SeverityHigh, models.ExceptionStatusOpen),
	}

	var buf bytes.Buffer
	if err := r.WriteExceptionReport(exceptions, &buf); err != nil {
		t.Fatalf("WriteExceptionReport failed: %v", err)
	}

	output := buf.String()
	criticalAt := strings.Index(output, "=== CRITICAL")
	highAt := strings.Index(output, "=== HIGH")
	lowAt := strings.Index(output, "=== LOW")
	if criticalAt < 0 || highAt < 0 || lowAt < 0 {
		t.Fatalf("Expected all severity sections, got:\n%s", output)
	}
	if !(criticalAt < highAt && highAt < lowAt) {
		t.Errorf("Expected severity sections in descending order, got:\n%s", output)
	}

	if !strings.Contains(output, "1. review: Check the vendor statement") {
		t.Errorf("Expected playbook steps in output, got:\n%s", output)
	}
}

func TestReporter_ExceptionsExcludeResolved(t *testing.T) {
	r, err := NewReporter(nil)
	if err != nil {
		t.Fatalf("NewReporter failed: %v", err)
	}

	open := sampleException(models.SeverityMedium, models.ExceptionStatusOpen)
	resolved := sampleException(models.SeverityMedium, models.ExceptionStatusResolved)

	var buf bytes.Buffer
	if err := r.WriteExceptionReport([]*models.ReconciliationException{open, resolved}, &buf); err != nil {
		t.Fatalf("WriteExceptionReport failed: %v", err)
	}

	if !strings.Contains(buf.String(), "Total Exceptions: 1") {
		t.Errorf("Expected resolved exceptions filtered out, got:\n%s", buf.String())
	}
}

func TestReporter_ExceptionsCSV(t *testing.T) {
	r, err := NewReporter(&ReportConfig{Format: FormatCSV, CSVDelimiter: ',', CSVHeaders: true})
	if err != nil {
		t.Fatalf("NewReporter failed: %v", err)
	}

	exc := sampleException(models.SeverityHigh, models.ExceptionStatusOpen)

	var buf bytes.Buffer
	if err := r.WriteExceptionReport([]*models.ReconciliationException{exc}, &buf); err != nil {
		t.Fatalf("WriteExceptionReport failed: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("Report is not valid CSV: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected header and one data row, got %d rows", len(records))
	}
	row := records[1]
	if row[1] != "unmatched" || row[2] != "high" || row[3] != "open" {
		t.Errorf("Unexpected exception row: %v", row)
	}
}

func TestReporter_SummaryConsole(t *testing.T) {
	r, err := NewReporter(nil)
	if err != nil {
		t.Fatalf("NewReporter failed: %v", err)
	}

	summary := &models.ReconciliationSummary{
		TenantID:                reportTenant,
		TotalTransactions:       200,
		ReconciledTransactions:  150,
		AutoMatchRate:           0.62,
		OpenExceptions:          12,
		CriticalExceptions:      2,
		AvgTimeToReconcileHours: 18.5,
		GeneratedAt:             time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	if err := r.WriteSummaryReport(summary, &buf); err != nil {
		t.Fatalf("WriteSummaryReport failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{
		"Reconciled: 150 (75.0%)",
		"Auto-Match Rate: 62.0%",
		"Open:     12",
		"Critical: 2",
		"Avg Time to Reconcile: 18.5 hours",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, output)
		}
	}
}

func TestReportConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *ReportConfig
		wantErr bool
	}{
		{"default config", DefaultReportConfig(), false},
		{"json format", &ReportConfig{Format: FormatJSON}, false},
		{"unknown format", &ReportConfig{Format: "xml"}, true},
		{"negative max", &ReportConfig{Format: FormatConsole, MaxExceptions: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestReporter_NilBatchResult(t *testing.T) {
	r, err := NewReporter(nil)
	if err != nil {
		t.Fatalf("NewReporter failed: %v", err)
	}
	if err := r.WriteBatchReport(nil, &bytes.Buffer{}); err == nil {
		t.Fatal("Expected an error for a nil batch result")
	}
}
