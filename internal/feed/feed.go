// Package feed imports bank exports and document extracts from CSV files so
// operators can seed a store or replay a statement period. Column names are
// configurable with aliases so one reader accepts several export formats,
// malformed rows are collected and skipped rather than failing the import,
// and every row that survives parsing is validated before it is returned.
package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

// ReadConfig holds options shared by all CSV readers
type ReadConfig struct {
	// HasHeader is true when the first row names the columns. Without a
	// header the reader falls back to the configured column order.
	HasHeader bool

	// Delimiter separates fields. Some European exports use semicolons.
	Delimiter rune

	// SkipEmptyRows drops rows whose every field is blank.
	SkipEmptyRows bool

	// MaxErrors aborts the import once this many rows have failed.
	// Zero means collect errors without limit.
	MaxErrors int
}

// DefaultReadConfig returns the options that fit most bank exports
func DefaultReadConfig() *ReadConfig {
	return &ReadConfig{
		HasHeader:     true,
		Delimiter:     ',',
		SkipEmptyRows: true,
		MaxErrors:     100,
	}
}

// Validate checks the read configuration
func (c *ReadConfig) Validate() error {
	if c.Delimiter == 0 {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "delimiter", "none", nil)
	}
	if c.MaxErrors < 0 {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "max_errors", c.MaxErrors, nil)
	}
	return nil
}

// ImportStats summarizes one import: how many lines were read, how many rows
// parsed into valid records, and the per-row errors for everything skipped.
type ImportStats struct {
	Source      string                       `json:"source"`
	LinesRead   int                          `json:"lines_read"`
	RowsParsed  int                          `json:"rows_parsed"`
	RowsSkipped int                          `json:"rows_skipped"`
	Errors      []*engineerrors.ImportError  `json:"errors,omitempty"`
}

// AddError records a skipped row
func (s *ImportStats) AddError(err *engineerrors.ImportError) {
	s.Errors = append(s.Errors, err)
	s.RowsSkipped++
}

// HasErrors reports whether any rows were skipped
func (s *ImportStats) HasErrors() bool {
	return len(s.Errors) > 0
}

// String returns a one-line summary of the import
func (s *ImportStats) String() string {
	return fmt.Sprintf("read %d lines from %s: %d rows imported, %d skipped",
		s.LinesRead, s.Source, s.RowsParsed, s.RowsSkipped)
}

// SampleErrors returns up to max row errors for logging
func (s *ImportStats) SampleErrors(max int) []string {
	limit := len(s.Errors)
	if max > 0 && max < limit {
		limit = max
	}
	samples := make([]string, 0, limit)
	for _, err := range s.Errors[:limit] {
		samples = append(samples, err.Error())
	}
	return samples
}

// rowReader walks a CSV stream row by row, resolving configured column names
// (and their aliases) against the header line. All header matching is
// case-insensitive.
type rowReader struct {
	config  *ReadConfig
	csv     *csv.Reader
	source  string
	line    int
	columns map[string]int
}

func newRowReader(src io.Reader, source string, config *ReadConfig) *rowReader {
	reader := csv.NewReader(src)
	reader.Comma = config.Delimiter
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	return &rowReader{
		config: config,
		csv:    reader,
		source: source,
	}
}

// readHeader binds column names to indices. Aliases map alternate header
// spellings onto the configured names; defaults gives the column order used
// when the file carries no header row. Returns the missing required columns
// as an import error.
func (r *rowReader) readHeader(defaults []string, aliases map[string]string, required []string) error {
	headers := defaults
	if r.config.HasHeader {
		row, err := r.csv.Read()
		if err != nil {
			if err == io.EOF {
				return engineerrors.MissingColumnError(r.source, required, nil)
			}
			return engineerrors.EncodingError(r.source, 1, err)
		}
		r.line++
		headers = row
	}

	r.columns = make(map[string]int, len(headers))
	for i, header := range headers {
		name := strings.ToLower(strings.TrimSpace(header))
		if canonical, ok := aliases[name]; ok {
			name = strings.ToLower(canonical)
		}
		if _, taken := r.columns[name]; !taken {
			r.columns[name] = i
		}
	}

	var missing []string
	for _, name := range required {
		if _, ok := r.columns[strings.ToLower(name)]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return engineerrors.MissingColumnError(r.source, required, headers)
	}

	return nil
}

// next returns the following data row, skipping blank rows when configured.
// io.EOF marks the end of the stream.
func (r *rowReader) next() ([]string, error) {
	for {
		row, err := r.csv.Read()
		if err != nil {
			return nil, err
		}
		r.line++

		if r.config.SkipEmptyRows && isBlank(row) {
			continue
		}
		return row, nil
	}
}

// field returns the trimmed value of a configured column in the given row.
// Missing optional columns read as empty.
func (r *rowReader) field(row []string, column string) string {
	index, ok := r.columns[strings.ToLower(column)]
	if !ok || index >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[index])
}

func isBlank(row []string) bool {
	for _, field := range row {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// tooManyErrors reports whether the import should abort under the
// configured error budget.
func (r *rowReader) tooManyErrors(stats *ImportStats) bool {
	return r.config.MaxErrors > 0 && len(stats.Errors) >= r.config.MaxErrors
}

// openFile opens a CSV file for one of the readers
func openFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, engineerrors.FileError(engineerrors.CodeFileNotFound, path, err)
		}
		if os.IsPermission(err) {
			return nil, engineerrors.FileError(engineerrors.CodeFilePermission, path, err)
		}
		return nil, engineerrors.FileError(engineerrors.CodeDirectoryError, path, err)
	}
	return file, nil
}
