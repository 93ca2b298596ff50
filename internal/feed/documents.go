package feed

import (
	"io"
	"strconv"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/models"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
	"accounting-reconciliation-engine/pkg/logger"
)

// DocumentColumns maps document fields onto the headers of an extraction
// export. The confidence column carries the upstream extraction confidence;
// a blank value means the extractor did not report one and reads as 1.
type DocumentColumns struct {
	Vendor      string            `json:"vendor_column"`
	IssuedAt    string            `json:"issued_at_column"`
	Total       string            `json:"total_column"`
	Currency    string            `json:"currency_column"`
	Description string            `json:"description_column"`
	Confidence  string            `json:"confidence_column"`
	Aliases     map[string]string `json:"aliases,omitempty"`
}

// DefaultDocumentColumns returns the standard extraction export layout
func DefaultDocumentColumns() *DocumentColumns {
	return &DocumentColumns{
		Vendor:      "vendor",
		IssuedAt:    "date",
		Total:       "total",
		Currency:    "currency",
		Description: "description",
		Confidence:  "confidence",
		Aliases: map[string]string{
			"supplier":          "vendor",
			"merchant":          "vendor",
			"payee":             "vendor",
			"issued_at":         "date",
			"issue_date":        "date",
			"invoice_date":      "date",
			"document_date":     "date",
			"amount":            "total",
			"total_amount":      "total",
			"gross_amount":      "total",
			"ccy":               "currency",
			"currency_code":     "currency",
			"memo":              "description",
			"line_items":        "description",
			"source_confidence": "confidence",
			"extraction_score":  "confidence",
		},
	}
}

// Validate checks the column mapping
func (c *DocumentColumns) Validate() error {
	for name, value := range map[string]string{
		"vendor_column":    c.Vendor,
		"issued_at_column": c.IssuedAt,
		"total_column":     c.Total,
	} {
		if value == "" {
			return engineerrors.ConfigurationError(engineerrors.CodeMissingConfig, name, "", nil)
		}
	}
	return nil
}

func (c *DocumentColumns) required() []string {
	return []string{c.Vendor, c.IssuedAt, c.Total}
}

func (c *DocumentColumns) defaults() []string {
	return []string{c.Vendor, c.IssuedAt, c.Total, c.Currency, c.Description, c.Confidence}
}

// DocumentCSVReader turns extraction export rows into documents for one
// tenant. Malformed rows are skipped and reported through ImportStats.
type DocumentCSVReader struct {
	tenantID uuid.UUID
	columns  *DocumentColumns
	config   *ReadConfig
	logger   logger.Logger
}

// NewDocumentCSVReader creates a reader that imports into the given tenant
func NewDocumentCSVReader(tenantID uuid.UUID, columns *DocumentColumns, config *ReadConfig) (*DocumentCSVReader, error) {
	if tenantID == uuid.Nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "tenant_id", "nil", nil)
	}
	if columns == nil {
		columns = DefaultDocumentColumns()
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

	return &DocumentCSVReader{
		tenantID: tenantID,
		columns:  columns,
		config:   config,
		logger:   logger.GetGlobalLogger().WithComponent("document_feed"),
	}, nil
}

// ReadFile imports an extraction export file
func (r *DocumentCSVReader) ReadFile(path string) ([]*models.Document, *ImportStats, error) {
	file, err := openFile(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	return r.Read(file, path)
}

// Read imports an extraction export stream
func (r *DocumentCSVReader) Read(src io.Reader, source string) ([]*models.Document, *ImportStats, error) {
	rows := newRowReader(src, source, r.config)
	stats := &ImportStats{Source: source}

	if err := rows.readHeader(r.columns.defaults(), r.columns.Aliases, r.columns.required()); err != nil {
		return nil, stats, err
	}

	var documents []*models.Document
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
				return documents, stats, r.abort(stats)
			}
			continue
		}

		doc, rowErr := r.parseRow(rows, row)
		if rowErr != nil {
			stats.AddError(rowErr)
			if rows.tooManyErrors(stats) {
				return documents, stats, r.abort(stats)
			}
			continue
		}

		documents = append(documents, doc)
		stats.RowsParsed++
	}
	stats.LinesRead = rows.line

	r.logger.WithFields(logger.Fields{
		"source":       source,
		"lines_read":   stats.LinesRead,
		"rows_parsed":  stats.RowsParsed,
		"rows_skipped": stats.RowsSkipped,
	}).Info("Document feed import complete")

	if stats.HasErrors() {
		r.logger.WithField("sample_errors", stats.SampleErrors(3)).Warn("Some document feed rows were skipped")
	}

	return documents, stats, nil
}

// parseRow converts one CSV row into a validated document
func (r *DocumentCSVReader) parseRow(rows *rowReader, row []string) (*models.Document, *engineerrors.ImportError) {
	source, line := rows.source, rows.line

	vendor := rows.field(row, r.columns.Vendor)
	if vendor == "" {
		return nil, engineerrors.EmptyValueError(source, line, r.columns.Vendor)
	}

	totalText := rows.field(row, r.columns.Total)
	total, err := models.ParseDecimalFromString(totalText)
	if err != nil {
		return nil, engineerrors.InvalidAmountError(source, line, r.columns.Total, totalText)
	}

	dateText := rows.field(row, r.columns.IssuedAt)
	issuedAt, err := models.ParseTimeWithFormats(dateText)
	if err != nil {
		return nil, engineerrors.InvalidDateError(source, line, r.columns.IssuedAt, dateText)
	}

	currencyText := rows.field(row, r.columns.Currency)
	currency, err := models.ParseCurrency(currencyText)
	if err != nil {
		return nil, engineerrors.InvalidCurrencyError(source, line, r.columns.Currency, currencyText)
	}

	confidence := 1.0
	if confidenceText := rows.field(row, r.columns.Confidence); confidenceText != "" {
		confidence, err = strconv.ParseFloat(confidenceText, 64)
		if err != nil || confidence < 0 || confidence > 1 {
			return nil, engineerrors.InvalidConfidenceError(source, line, r.columns.Confidence, confidenceText)
		}
	}

	doc := models.NewDocument(r.tenantID, vendor, rows.field(row, r.columns.Description), total, issuedAt, confidence)
	doc.Currency = currency

	if err := doc.Validate(); err != nil {
		return nil, engineerrors.NewImportError(
			engineerrors.CodeInvalidData,
			&engineerrors.ImportContext{File: source, Line: line, Value: vendor},
			"document failed validation", err)
	}

	return doc, nil
}

func (r *DocumentCSVReader) abort(stats *ImportStats) error {
	return engineerrors.New(engineerrors.CategoryParse, engineerrors.CodeInvalidData,
		stats.String()).
		WithContext("source", stats.Source).
		WithSuggestion("Fix the malformed rows or raise the error budget and retry the import")
}
