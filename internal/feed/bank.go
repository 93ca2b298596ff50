package feed

import (
	"io"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/models"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
	"accounting-reconciliation-engine/pkg/logger"
)

// BankColumns maps the engine's bank transaction fields onto the headers of
// a particular export format. Aliases let one configuration accept several
// bank formats: each alias names an alternate header spelling and the
// configured column it stands for.
type BankColumns struct {
	AccountID   string            `json:"account_id_column"`
	BookedAt    string            `json:"booked_at_column"`
	Amount      string            `json:"amount_column"`
	Currency    string            `json:"currency_column"`
	Description string            `json:"description_column"`
	Reference   string            `json:"reference_column"`
	Aliases     map[string]string `json:"aliases,omitempty"`
}

// DefaultBankColumns returns the standard export layout with aliases for the
// header spellings common across bank feeds.
func DefaultBankColumns() *BankColumns {
	return &BankColumns{
		AccountID:   "account_id",
		BookedAt:    "date",
		Amount:      "amount",
		Currency:    "currency",
		Description: "description",
		Reference:   "reference",
		Aliases: map[string]string{
			"account":          "account_id",
			"account_number":   "account_id",
			"booked_at":        "date",
			"booking_date":     "date",
			"posting_date":     "date",
			"value_date":       "date",
			"transaction_date": "date",
			"amt":              "amount",
			"value":            "amount",
			"ccy":              "currency",
			"currency_code":    "currency",
			"memo":             "description",
			"details":          "description",
			"narrative":        "description",
			"ref":              "reference",
			"reference_number": "reference",
		},
	}
}

// Validate checks the column mapping
func (c *BankColumns) Validate() error {
	for name, value := range map[string]string{
		"booked_at_column":   c.BookedAt,
		"amount_column":      c.Amount,
		"description_column": c.Description,
	} {
		if value == "" {
			return engineerrors.ConfigurationError(engineerrors.CodeMissingConfig, name, "", nil)
		}
	}
	return nil
}

// required returns the columns a usable bank export must carry. Account,
// currency, and reference are optional: single-account exports omit the
// account and the currency defaults to USD.
func (c *BankColumns) required() []string {
	return []string{c.BookedAt, c.Amount, c.Description}
}

// defaults returns the column order assumed for headerless files
func (c *BankColumns) defaults() []string {
	return []string{c.AccountID, c.BookedAt, c.Amount, c.Currency, c.Description, c.Reference}
}

// BankCSVReader turns bank export CSV rows into bank transactions for one
// tenant. Malformed rows are skipped and reported through ImportStats.
type BankCSVReader struct {
	tenantID uuid.UUID
	columns  *BankColumns
	config   *ReadConfig
	logger   logger.Logger
}

// NewBankCSVReader creates a reader that imports into the given tenant
func NewBankCSVReader(tenantID uuid.UUID, columns *BankColumns, config *ReadConfig) (*BankCSVReader, error) {
	if tenantID == uuid.Nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "tenant_id", "nil", nil)
	}
	if columns == nil {
		columns = DefaultBankColumns()
	}
	if err := columns.Validate(); err != nil {
		return nil, err
	}
	if config == nil {
		config = DefaultReadConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &BankCSVReader{
		tenantID: tenantID,
		columns:  columns,
		config:   config,
		logger:   logger.GetGlobalLogger().WithComponent("bank_feed"),
	}, nil
}

// ReadFile imports a bank export file
func (r *BankCSVReader) ReadFile(path string) ([]*models.BankTransaction, *ImportStats, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return r.Read(file, path)
}

// Read imports a bank export stream. The source name appears in row errors
// and log lines only.
func (r *BankCSVReader) Read(src io.Reader, source string) ([]*models.BankTransaction, *ImportStats, error) {
	rows := newRowReader(src, source, r.config)
	stats := &ImportStats{Source: source}

	if err := rows.readHeader(r.columns.defaults(), r.columns.Aliases, r.columns.required()); err != nil {
		return nil, stats, err
	}

	var transactions []*models.BankTransaction
	for {
		row, err := rows.next()
		if err != nil {
			if err == io.EOF {
				break
			}
			stats.AddError(engineerrors.NewImportError(
				engineerrors.CodeInvalidFormat,
				&engineerrors.ImportContext{File: source, Line: rows.line + 1},
				"row does not parse as CSV", err))
			if rows.tooManyErrors(stats) {
				return transactions, stats, r.abort(stats)
			}
			continue
		}

		tx, rowErr := r.parseRow(rows, row)
		if rowErr != nil {
			stats.AddError(rowErr)
			if rows.tooManyErrors(stats) {
				return transactions, stats, r.abort(stats)
			}
			continue
		}

		transactions = append(transactions, tx)
		stats.RowsParsed++
	}
	stats.LinesRead = rows.line

	r.logger.WithFields(logger.Fields{
		"source":       source,
		"lines_read":   stats.LinesRead,
		"rows_parsed":  stats.RowsParsed,
		"rows_skipped": stats.RowsSkipped,
	}).Info("Bank feed import complete")

	if stats.HasErrors() {
		r.logger.WithField("sample_errors", stats.SampleErrors(3)).Warn("Some bank feed rows were skipped")
	}

	return transactions, stats, nil
}

// parseRow converts one CSV row into a validated bank transaction
func (r *BankCSVReader) parseRow(rows *rowReader, row []string) (*models.BankTransaction, *engineerrors.ImportError) {
	source, line := rows.source, rows.line

	description := rows.field(row, r.columns.Description)
	if description == "" {
		return nil, engineerrors.EmptyValueError(source, line, r.columns.Description)
	}

	amountText := rows.field(row, r.columns.Amount)
	amount, err := models.ParseDecimalFromString(amountText)
	if err != nil {
		return nil, engineerrors.InvalidAmountError(source, line, r.columns.Amount, amountText)
	}

	dateText := rows.field(row, r.columns.BookedAt)
	bookedAt, err := models.ParseTimeWithFormats(dateText)
	if err != nil {
		return nil, engineerrors.InvalidDateError(source, line, r.columns.BookedAt, dateText)
	}

	currencyText := rows.field(row, r.columns.Currency)
	currency, err := models.ParseCurrency(currencyText)
	if err != nil {
		return nil, engineerrors.InvalidCurrencyError(source, line, r.columns.Currency, currencyText)
	}

	tx := models.NewBankTransaction(r.tenantID, rows.field(row, r.columns.AccountID), bookedAt, amount, currency, description)
	tx.Reference = rows.field(row, r.columns.Reference)

	if err := tx.Validate(); err != nil {
		return nil, engineerrors.NewImportError(
			engineerrors.CodeInvalidData,
			&engineerrors.ImportContext{File: source, Line: line, Value: description},
			"bank transaction failed validation", err)
	}

	return tx, nil
}

func (r *BankCSVReader) abort(stats *ImportStats) error {
	return engineerrors.New(engineerrors.CategoryParse, engineerrors.CodeInvalidData,
		stats.String()).
		WithContext("source", stats.Source).
		WithSuggestion("Fix the malformed rows or raise the error budget and retry the import")
}
