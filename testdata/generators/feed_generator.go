// feed_generator produces paired bank.csv and documents.csv fixtures for
// exercising the import and matching pipeline.
//
// A configurable share of bank transactions gets a matching document: same
// vendor, a total within a small settlement delta, and an issue date one or
// two days before the booking. The rest of the transactions and a block of
// extra documents have no counterpart, so generated datasets exercise the
// unmatched path too. With -bad-rows the bank file also carries malformed
// rows for import-tolerance testing.
//
// Usage:
//
//	go run feed_generator.go -output-dir ../generated -count 500 -match-rate 0.7 -seed 42
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
)

var vendors = []string{
	"ACME SUPPLIES",
	"GLOBEX CORP",
	"INITECH CONSULTING",
	"NORTHWIND TRADERS",
	"STAPLES",
	"PROPERTY MGMT",
	"CLOUD HOSTING CO",
	"METRO UTILITIES",
	"FRESH CATERING",
	"APEX LOGISTICS",
}

type bankRow struct {
	accountID   string
	bookedAt    time.Time
	amount      decimal.Decimal
	currency    string
	description string
	reference   string
}

type documentRow struct {
	vendor      string
	issuedAt    time.Time
	total       decimal.Decimal
	currency    string
	description string
	confidence  float64
}

func main() {
	var (
		outputDir = flag.String("output-dir", "../generated", "output directory for bank.csv and documents.csv")
		count     = flag.Int("count", 500, "number of bank transactions to generate")
		matchRate = flag.Float64("match-rate", 0.7, "share of transactions with a matching document")
		extraDocs = flag.Int("extra-docs", 50, "documents without a matching transaction")
		startDate = flag.String("start-date", "2024-01-01", "period start (YYYY-MM-DD)")
		days      = flag.Int("days", 90, "period length in days")
		badRows   = flag.Int("bad-rows", 0, "malformed rows to mix into bank.csv")
		seed      = flag.Int64("seed", 1, "random seed for reproducible generation")
	)
	flag.Parse()

	start, err := time.Parse("2006-01-02", *startDate)
	if err != nil {
		log.Fatalf("Invalid start date: %v", err)
	}
	if *matchRate < 0 || *matchRate > 1 {
		log.Fatalf("Match rate must be within [0, 1], got %f", *matchRate)
	}

	rng := rand.New(rand.NewSource(*seed))

	banks, documents := generate(rng, *count, *matchRate, *extraDocs, start, *days)

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("Failed to create output directory: %v", err)
	}
	if err := writeBankCSV(filepath.Join(*outputDir, "bank.csv"), banks, *badRows, rng); err != nil {
		log.Fatalf("Failed to write bank.csv: %v", err)
	}
	if err := writeDocumentsCSV(filepath.Join(*outputDir, "documents.csv"), documents); err != nil {
		log.Fatalf("Failed to write documents.csv: %v", err)
	}

	fmt.Printf("Generated %d bank transactions (%d malformed) and %d documents in %s\n",
		len(banks), *badRows, len(documents), *outputDir)
}

func generate(rng *rand.Rand, count int, matchRate float64, extraDocs int, start time.Time, days int) ([]bankRow, []documentRow) {
	banks := make([]bankRow, 0, count)
	documents := make([]documentRow, 0, count+extraDocs)

	for i := 0; i < count; i++ {
		vendor := vendors[rng.Intn(len(vendors))]
		amount := randomAmount(rng)
		booked := start.AddDate(0, 0, rng.Intn(days))

		banks = append(banks, bankRow{
			accountID:   fmt.Sprintf("acct-%d", rng.Intn(3)+1),
			bookedAt:    booked,
			amount:      amount.Neg(),
			currency:    "USD",
			description: fmt.Sprintf("%s PAYMENT %04d", vendor, i),
			reference:   fmt.Sprintf("REF-%06d", i),
		})

		if rng.Float64() < matchRate {
			// Settlement trails the document by a day or two, and fees
			// occasionally shave a few cents off the total.
			total := amount
			if rng.Float64() < 0.1 {
				total = total.Sub(decimal.New(int64(rng.Intn(50)), -2))
			}
			documents = append(documents, documentRow{
				vendor:      vendor,
				issuedAt:    booked.AddDate(0, 0, -(rng.Intn(2) + 1)),
				total:       total,
				currency:    "USD",
				description: fmt.Sprintf("Invoice %04d", i),
				confidence:  0.7 + rng.Float64()*0.3,
			})
		}
	}

	for i := 0; i < extraDocs; i++ {
		documents = append(documents, documentRow{
			vendor:      vendors[rng.Intn(len(vendors))],
			issuedAt:    start.AddDate(0, 0, rng.Intn(days)),
			total:       randomAmount(rng),
			currency:    "USD",
			description: fmt.Sprintf("Unbilled extract %04d", i),
			confidence:  0.5 + rng.Float64()*0.5,
		})
	}

	return banks, documents
}

// randomAmount returns a two-decimal amount between 5.00 and 5000.00
func randomAmount(rng *rand.Rand) decimal.Decimal {
	cents := int64(rng.Intn(499500) + 500)
	return decimal.New(cents, -2)
}

func writeBankCSV(path string, rows []bankRow, badRows int, rng *rand.Rand) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"account_id", "date", "amount", "currency", "description", "reference"}); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.accountID,
			row.bookedAt.Format("2006-01-02"),
			row.amount.StringFixed(2),
			row.currency,
			row.description,
			row.reference,
		}

		// Sprinkle malformed rows through the file rather than bunching
		// them at the end.
		if badRows > 0 && rng.Intn(len(rows)/badRows+1) == 0 {
			record = corruptRecord(record, rng)
			badRows--
		}

		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

// corruptRecord breaks one field of a bank record the way real exports do
func corruptRecord(record []string, rng *rand.Rand) []string {
	corrupted := append([]string(nil), record...)
	switch rng.Intn(3) {
	case 0:
		corrupted[1] = "not-a-date"
	case 1:
		corrupted[2] = "twelve dollars"
	default:
		corrupted[4] = ""
	}
	return corrupted
}

func writeDocumentsCSV(path string, rows []documentRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"vendor", "date", "total", "currency", "description", "confidence"}); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.vendor,
			row.issuedAt.Format("2006-01-02"),
			row.total.StringFixed(2),
			row.currency,
			row.description,
			fmt.Sprintf("%.2f", row.confidence),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}
