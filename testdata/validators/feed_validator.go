// feed_validator checks a generated bank.csv / documents.csv pair before it
// is used as fixture data: headers, field parseability, and a rough count of
// transactions that have a plausible document counterpart (same-magnitude
// total within the matching window).
//
// Usage:
//
//	go run feed_validator.go -data-dir ../generated -window-days 7
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type bankRecord struct {
	bookedAt time.Time
	amount   decimal.Decimal
}

type documentRecord struct {
	issuedAt time.Time
	total    decimal.Decimal
}

type validationReport struct {
	bankRows     int
	bankErrors   []string
	docRows      int
	docErrors    []string
	matchable    int
	negativeBank int
}

func main() {
	var (
		dataDir    = flag.String("data-dir", "../generated", "directory holding bank.csv and documents.csv")
		windowDays = flag.Int("window-days", 7, "date window used when counting matchable pairs")
		maxErrors  = flag.Int("max-errors", 10, "row errors to report before truncating")
	)
	flag.Parse()

	banks, bankErrs, err := readBankFile(filepath.Join(*dataDir, "bank.csv"))
	if err != nil {
		log.Fatalf("Failed to read bank.csv: %v", err)
	}
	docs, docErrs, err := readDocumentsFile(filepath.Join(*dataDir, "documents.csv"))
	if err != nil {
		log.Fatalf("Failed to read documents.csv: %v", err)
	}

	report := validationReport{
		bankRows:   len(banks),
		bankErrors: bankErrs,
		docRows:    len(docs),
		docErrors:  docErrs,
	}
	for _, b := range banks {
		if b.amount.IsNegative() {
			report.negativeBank++
		}
		if hasCounterpart(b, docs, *windowDays) {
			report.matchable++
		}
	}

	printReport(report, *maxErrors)

	if len(bankErrs) > 0 || len(docErrs) > 0 {
		os.Exit(1)
	}
}

// hasCounterpart reports whether any document total equals the transaction
// magnitude and its issue date falls inside the window
func hasCounterpart(b bankRecord, docs []documentRecord, windowDays int) bool {
	magnitude := b.amount.Abs()
	for _, d := range docs {
		if !d.total.Abs().Equal(magnitude) {
			continue
		}
		delta := b.bookedAt.Sub(d.issuedAt).Hours() / 24
		if delta < 0 {
			delta = -delta
		}
		if int(delta) <= windowDays {
			return true
		}
	}
	return false
}

func readBankFile(path string) ([]bankRecord, []string, error) {
	rows, errs, err := readCSV(path, []string{"account_id", "date", "amount", "currency", "description", "reference"},
		func(line int, row []string) (interface{}, string) {
			bookedAt, err := time.Parse("2006-01-02", row[1])
			if err != nil {
				return nil, fmt.Sprintf("line %d: bad date %q", line, row[1])
			}
			amount, err := decimal.NewFromString(row[2])
			if err != nil {
				return nil, fmt.Sprintf("line %d: bad amount %q", line, row[2])
			}
			if strings.TrimSpace(row[4]) == "" {
				return nil, fmt.Sprintf("line %d: empty description", line)
			}
			return bankRecord{bookedAt: bookedAt, amount: amount}, ""
		})
	if err != nil {
		return nil, nil, err
	}

	records := make([]bankRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.(bankRecord))
	}
	return records, errs, nil
}

func readDocumentsFile(path string) ([]documentRecord, []string, error) {
	rows, errs, err := readCSV(path, []string{"vendor", "date", "total", "currency", "description", "confidence"},
		func(line int, row []string) (interface{}, string) {
			issuedAt, err := time.Parse("2006-01-02", row[1])
			if err != nil {
				return nil, fmt.Sprintf("line %d: bad date %q", line, row[1])
			}
			total, err := decimal.NewFromString(row[2])
			if err != nil {
				return nil, fmt.Sprintf("line %d: bad total %q", line, row[2])
			}
			confidence, err := strconv.ParseFloat(row[5], 64)
			if err != nil || confidence < 0 || confidence > 1 {
				return nil, fmt.Sprintf("line %d: bad confidence %q", line, row[5])
			}
			return documentRecord{issuedAt: issuedAt, total: total}, ""
		})
	if err != nil {
		return nil, nil, err
	}

	records := make([]documentRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.(documentRecord))
	}
	return records, errs, nil
}

// readCSV validates the header then applies parse to every row, collecting
// per-row error strings instead of stopping
func readCSV(path string, header []string, parse func(int, []string) (interface{}, string)) ([]interface{}, []string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	got, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("missing header: %w", err)
	}
	for i, want := range header {
		if i >= len(got) || !strings.EqualFold(strings.TrimSpace(got[i]), want) {
			return nil, nil, fmt.Errorf("header column %d: want %q, got %v", i, want, got)
		}
	}

	var (
		records []interface{}
		errs    []string
	)
	for line := 2; ; line++ {
		row, err := reader.Read()
		if err != nil {
			break
		}
		if len(row) < len(header) {
			errs = append(errs, fmt.Sprintf("line %d: %d fields, want %d", line, len(row), len(header)))
			continue
		}
		record, problem := parse(line, row)
		if problem != "" {
			errs = append(errs, problem)
			continue
		}
		records = append(records, record)
	}
	return records, errs, nil
}

func printReport(report validationReport, maxErrors int) {
	fmt.Println("Feed validation report")
	fmt.Println("======================")
	fmt.Printf("Bank transactions:  %d (%d debits)\n", report.bankRows, report.negativeBank)
	fmt.Printf("Documents:          %d\n", report.docRows)
	fmt.Printf("Matchable pairs:    %d\n", report.matchable)
	fmt.Printf("Bank row errors:    %d\n", len(report.bankErrors))
	fmt.Printf("Document errors:    %d\n", len(report.docErrors))

	printErrors("bank.csv", report.bankErrors, maxErrors)
	printErrors("documents.csv", report.docErrors, maxErrors)

	if len(report.bankErrors) == 0 && len(report.docErrors) == 0 {
		fmt.Println("\nAll rows parsed cleanly")
	}
}

func printErrors(name string, errs []string, max int) {
	if len(errs) == 0 {
		return
	}
	fmt.Printf("\n%s problems:\n", name)
	for i, e := range errs {
		if i >= max {
			fmt.Printf("  ... and %d more\n", len(errs)-max)
			break
		}
		fmt.Printf("  %s\n", e)
	}
}
