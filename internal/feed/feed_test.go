package feed

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

var feedTenant = uuid.MustParse("c1a7e7a0-9f1d-4f1b-8a6e-2b9a14f3d001")

func TestBankCSVReader_ReadWellFormedExport(t *testing.T) {
	input := strings.Join([]string{
		"account_id,date,amount,currency,description,reference",
		"acct-1,2024-01-15,-120.50,USD,ACME SUPPLIES INV-4411,INV-4411",
		"acct-1,2024-01-16,2500.00,usd,PAYROLL FUNDING,",
	}, "\n")

	reader, err := NewBankCSVReader(feedTenant, nil, nil)
	if err != nil {
		t.Fatalf("NewBankCSVReader failed: %v", err)
	}

	transactions, stats, err := reader.Read(strings.NewReader(input), "bank.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("Expected 2 transactions, got %d", len(transactions))
	}
	if stats.RowsParsed != 2 || stats.RowsSkipped != 0 {
		t.Errorf("Expected 2 parsed and 0 skipped, got %+v", stats)
	}

	first := transactions[0]
	if first.TenantID != feedTenant {
		t.Errorf("Expected tenant %s, got %s", feedTenant, first.TenantID)
	}
	if first.AccountID != "acct-1" {
		t.Errorf("Expected account acct-1, got %s", first.AccountID)
	}
	if first.Amount.String() != "-120.5" {
		t.Errorf("Expected amount -120.5, got %s", first.Amount)
	}
	if first.Reference != "INV-4411" {
		t.Errorf("Expected reference INV-4411, got %s", first.Reference)
	}
	if !first.IsOutflow() {
		t.Error("Expected the first transaction to be an outflow")
	}
	if transactions[1].Currency != "USD" {
		t.Errorf("Expected normalized currency USD, got %s", transactions[1].Currency)
	}
}

func TestBankCSVReader_HeaderAliases(t *testing.T) {
	input := strings.Join([]string{
		"Account_Number,Posting_Date,Amt,CCY,Memo,Ref",
		"acct-2,01/15/2024,\"1,250.00\",EUR,OFFICE RENT,R-9",
	}, "\n")

	reader, err := NewBankCSVReader(feedTenant, nil, nil)
	if err != nil {
		t.Fatalf("NewBankCSVReader failed: %v", err)
	}

	transactions, stats, err := reader.Read(strings.NewReader(input), "aliased.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(transactions) != 1 || stats.RowsParsed != 1 {
		t.Fatalf("Expected 1 transaction, got %d (stats %+v)", len(transactions), stats)
	}

	tx := transactions[0]
	if tx.AccountID != "acct-2" {
		t.Errorf("Expected account acct-2, got %s", tx.AccountID)
	}
	if tx.Amount.String() != "1250" {
		t.Errorf("Expected amount 1250, got %s", tx.Amount)
	}
	if tx.Currency != "EUR" {
		t.Errorf("Expected currency EUR, got %s", tx.Currency)
	}
	if tx.Description != "OFFICE RENT" {
		t.Errorf("Expected description OFFICE RENT, got %s", tx.Description)
	}
}

func TestBankCSVReader_SkipsMalformedRows(t *testing.T) {
	input := strings.Join([]string{
		"date,amount,description",
		"2024-01-15,100.00,GOOD ROW",
		"not-a-date,50.00,BAD DATE",
		"2024-01-16,twelve,BAD AMOUNT",
		"2024-01-17,25.00,",
		"",
		"2024-01-18,75.00,ANOTHER GOOD ROW",
	}, "\n")

	reader, err := NewBankCSVReader(feedTenant, nil, nil)
	if err != nil {
		t.Fatalf("NewBankCSVReader failed: %v", err)
	}

	transactions, stats, err := reader.Read(strings.NewReader(input), "mixed.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(transactions) != 2 {
		t.Fatalf("Expected 2 surviving transactions, got %d", len(transactions))
	}
	if stats.RowsSkipped != 3 {
		t.Errorf("Expected 3 skipped rows, got %d", stats.RowsSkipped)
	}
	if len(stats.Errors) != 3 {
		t.Fatalf("Expected 3 row errors, got %d", len(stats.Errors))
	}

	codes := map[engineerrors.ErrorCode]bool{}
	for _, rowErr := range stats.Errors {
		codes[rowErr.Code] = true
		if rowErr.Context == nil || rowErr.Context.File != "mixed.csv" {
			t.Errorf("Expected row error to carry the source name, got %+v", rowErr.Context)
		}
	}
	for _, want := range []engineerrors.ErrorCode{
		engineerrors.CodeInvalidDate,
		engineerrors.CodeInvalidAmount,
		engineerrors.CodeMissingField,
	} {
		if !codes[want] {
			t.Errorf("Expected a %s row error, got codes %v", want, codes)
		}
	}
}

func TestBankCSVReader_MissingRequiredColumn(t *testing.T) {
	input := "date,description\n2024-01-15,NO AMOUNT COLUMN\n"

	reader, err := NewBankCSVReader(feedTenant, nil, nil)
	if err != nil {
		t.Fatalf("NewBankCSVReader failed: %v", err)
	}

	_, _, err = reader.Read(strings.NewReader(input), "broken.csv")
	if err == nil {
		t.Fatal("Expected an error for a missing amount column")
	}
	engineErr, ok := engineerrors.AsEngineError(err)
	if !ok || engineErr.Code != engineerrors.CodeMissingColumn {
		t.Errorf("Expected missing_column error, got %v", err)
	}
}

func TestBankCSVReader_HeaderlessExport(t *testing.T) {
	config := DefaultReadConfig()
	config.HasHeader = false

	reader, err := NewBankCSVReader(feedTenant, nil, config)
	if err != nil {
		t.Fatalf("NewBankCSVReader failed: %v", err)
	}

	input := "acct-3,2024-02-01,-42.00,USD,COFFEE,\n"
	transactions, _, err := reader.Read(strings.NewReader(input), "headerless.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(transactions) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(transactions))
	}
	if transactions[0].Description != "COFFEE" {
		t.Errorf("Expected positional column binding, got %+v", transactions[0])
	}
}

func TestBankCSVReader_ErrorBudget(t *testing.T) {
	config := DefaultReadConfig()
	config.MaxErrors = 2

	reader, err := NewBankCSVReader(feedTenant, nil, config)
	if err != nil {
		t.Fatalf("NewBankCSVReader failed: %v", err)
	}

	input := strings.Join([]string{
		"date,amount,description",
		"bad,1.00,A",
		"bad,2.00,B",
		"2024-01-15,3.00,NEVER REACHED",
	}, "\n")

	_, stats, err := reader.Read(strings.NewReader(input), "noisy.csv")
	if err == nil {
		t.Fatal("Expected the import to abort once the error budget is spent")
	}
	if len(stats.Errors) != 2 {
		t.Errorf("Expected exactly 2 collected errors, got %d", len(stats.Errors))
	}
}

func TestDocumentCSVReader_ReadExtractExport(t *testing.T) {
	input := strings.Join([]string{
		"vendor,date,total,currency,description,confidence",
		"ACME SUPPLIES,2024-01-14,120.50,USD,Invoice INV-4411,0.95",
		"GLOBEX,2024-01-20,999.99,,,",
	}, "\n")

	reader, err := NewDocumentCSVReader(feedTenant, nil, nil)
	if err != nil {
		t.Fatalf("NewDocumentCSVReader failed: %v", err)
	}

	documents, stats, err := reader.Read(strings.NewReader(input), "docs.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(documents) != 2 || stats.RowsParsed != 2 {
		t.Fatalf("Expected 2 documents, got %d (stats %+v)", len(documents), stats)
	}

	first := documents[0]
	if first.Vendor != "ACME SUPPLIES" {
		t.Errorf("Expected vendor ACME SUPPLIES, got %s", first.Vendor)
	}
	if first.SourceConfidence != 0.95 {
		t.Errorf("Expected confidence 0.95, got %f", first.SourceConfidence)
	}

	// A blank confidence means the extractor did not report one.
	second := documents[1]
	if second.SourceConfidence != 1.0 {
		t.Errorf("Expected default confidence 1.0, got %f", second.SourceConfidence)
	}
	if second.Currency != "USD" {
		t.Errorf("Expected default currency USD, got %s", second.Currency)
	}
}

func TestDocumentCSVReader_RejectsOutOfRangeConfidence(t *testing.T) {
	input := strings.Join([]string{
		"supplier,invoice_date,total_amount,extraction_score",
		"ACME,2024-01-14,120.50,1.5",
		"ACME,2024-01-15,80.00,0.80",
	}, "\n")

	reader, err := NewDocumentCSVReader(feedTenant, nil, nil)
	if err != nil {
		t.Fatalf("NewDocumentCSVReader failed: %v", err)
	}

	documents, stats, err := reader.Read(strings.NewReader(input), "scores.csv")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(documents) != 1 {
		t.Fatalf("Expected 1 surviving document, got %d", len(documents))
	}
	if len(stats.Errors) != 1 || stats.Errors[0].Code != engineerrors.CodeOutOfRange {
		t.Fatalf("Expected one out_of_range error, got %+v", stats.Errors)
	}
}

func TestNewBankCSVReader_RejectsNilTenant(t *testing.T) {
	if _, err := NewBankCSVReader(uuid.Nil, nil, nil); err == nil {
		t.Fatal("Expected an error for a nil tenant")
	}
}
