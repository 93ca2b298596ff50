// Package models defines the core entities of the reconciliation engine:
// bank-feed transactions, accounting documents, ledger entries, the matches
// and exceptions produced while pairing them, and the per-tenant matching
// thresholds. All monetary values use decimal arithmetic and every persisted
// row is scoped to a tenant.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RecordKind identifies the side a matchable record came from
type RecordKind string

const (
	// RecordKindDocument marks records derived from extracted documents
	RecordKindDocument RecordKind = "document"
	// RecordKindLedgerEntry marks records derived from posted ledger entries
	RecordKindLedgerEntry RecordKind = "ledger_entry"
)

// String returns the string representation of RecordKind
func (k RecordKind) String() string {
	return string(k)
}

// IsValid checks if the record kind is valid
func (k RecordKind) IsValid() bool {
	return k == RecordKindDocument || k == RecordKindLedgerEntry
}

// DocumentStatus represents the lifecycle state of a document
type DocumentStatus string

const (
	// DocumentStatusPending marks documents awaiting reconciliation
	DocumentStatusPending DocumentStatus = "pending"
	// DocumentStatusPosted marks documents accepted into the books
	DocumentStatusPosted DocumentStatus = "posted"
)

// String returns the string representation of DocumentStatus
func (s DocumentStatus) String() string {
	return string(s)
}

// IsValid checks if the document status is valid
func (s DocumentStatus) IsValid() bool {
	return s == DocumentStatusPending || s == DocumentStatusPosted
}

// BankTransaction represents a single transaction pulled from a bank feed.
// The reconciler is the only writer of the Reconciled flag and the matched
// record links; everything else is owned by feed ingestion.
type BankTransaction struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID       `gorm:"type:uuid;index" json:"tenant_id"`
	AccountID         string          `gorm:"index" json:"account_id"`
	BookedAt          time.Time       `gorm:"index" json:"booked_at"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);index" json:"amount"`
	Currency          string          `json:"currency"`
	Description       string          `json:"description"`
	Reference         string          `json:"reference,omitempty"`
	Reconciled        bool            `gorm:"index" json:"reconciled"`
	MatchedDocumentID *uuid.UUID      `gorm:"type:uuid" json:"matched_document_id,omitempty"`
	MatchedEntryID    *uuid.UUID      `gorm:"type:uuid" json:"matched_entry_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewBankTransaction creates a new BankTransaction with a fresh identifier
func NewBankTransaction(tenantID uuid.UUID, accountID string, bookedAt time.Time, amount decimal.Decimal, currency, description string) *BankTransaction {
	return &BankTransaction{
		ID:          uuid.New(),
		TenantID:    tenantID,
		AccountID:   accountID,
		BookedAt:    bookedAt,
		Amount:      amount,
		Currency:    currency,
		Description: description,
	}
}

// Validate performs basic validation on the BankTransaction
func (t *BankTransaction) Validate() error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("transaction id cannot be nil")
	}

	if t.TenantID == uuid.Nil {
		return fmt.Errorf("transaction tenant id cannot be nil")
	}

	if t.Amount.IsZero() {
		return fmt.Errorf("transaction amount cannot be zero")
	}

	if t.BookedAt.IsZero() {
		return fmt.Errorf("transaction booking time cannot be zero")
	}

	return nil
}

// String returns a string representation of the BankTransaction
func (t *BankTransaction) String() string {
	return fmt.Sprintf("BankTransaction{ID: %s, Amount: %s %s, BookedAt: %s, Reconciled: %t}",
		t.ID, t.Amount.String(), t.Currency, t.BookedAt.Format("2006-01-02"), t.Reconciled)
}

// GetAbsoluteAmount returns the absolute value of the transaction amount
func (t *BankTransaction) GetAbsoluteAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// IsOutflow returns true if the transaction moves money out of the account
func (t *BankTransaction) IsOutflow() bool {
	return t.Amount.IsNegative()
}

// BookedDay returns the booking time truncated to its calendar day in UTC
func (t *BankTransaction) BookedDay() time.Time {
	return DayOf(t.BookedAt)
}

// Document represents the extracted fields of an invoice or receipt.
// SourceConfidence carries the upstream extraction confidence in [0, 1];
// the engine consumes it as a matching signal but never recomputes it.
type Document struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID         uuid.UUID       `gorm:"type:uuid;index" json:"tenant_id"`
	Vendor           string          `gorm:"index" json:"vendor"`
	Description      string          `json:"description"`
	Total            decimal.Decimal `gorm:"type:decimal(20,2);index" json:"total"`
	Currency         string          `json:"currency"`
	IssuedAt         time.Time       `gorm:"index" json:"issued_at"`
	SourceConfidence float64         `json:"source_confidence"`
	Status           DocumentStatus  `gorm:"index" json:"status"`
	Reconciled       bool            `gorm:"index" json:"reconciled"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// NewDocument creates a new pending Document with a fresh identifier
func NewDocument(tenantID uuid.UUID, vendor, description string, total decimal.Decimal, issuedAt time.Time, sourceConfidence float64) *Document {
	return &Document{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Vendor:           vendor,
		Description:      description,
		Total:            total,
		IssuedAt:         issuedAt,
		SourceConfidence: sourceConfidence,
		Status:           DocumentStatusPending,
	}
}

// Validate performs basic validation on the Document
func (d *Document) Validate() error {
	if d.ID == uuid.Nil {
		return fmt.Errorf("document id cannot be nil")
	}

	if d.TenantID == uuid.Nil {
		return fmt.Errorf("document tenant id cannot be nil")
	}

	if strings.TrimSpace(d.Vendor) == "" {
		return fmt.Errorf("document vendor cannot be empty")
	}

	if d.Total.IsZero() {
		return fmt.Errorf("document total cannot be zero")
	}

	if d.IssuedAt.IsZero() {
		return fmt.Errorf("document issue date cannot be zero")
	}

	if d.SourceConfidence < 0 || d.SourceConfidence > 1 {
		return fmt.Errorf("document source confidence must be within [0, 1], got %f", d.SourceConfidence)
	}

	if d.Status != "" && !d.Status.IsValid() {
		return fmt.Errorf("invalid document status: %s", d.Status)
	}

	return nil
}

// String returns a string representation of the Document
func (d *Document) String() string {
	return fmt.Sprintf("Document{ID: %s, Vendor: %s, Total: %s, IssuedAt: %s}",
		d.ID, d.Vendor, d.Total.String(), d.IssuedAt.Format("2006-01-02"))
}

// ToMatchableRecord converts the document into the matcher's candidate view
func (d *Document) ToMatchableRecord() *MatchableRecord {
	return &MatchableRecord{
		Kind:             RecordKindDocument,
		ID:               d.ID,
		TenantID:         d.TenantID,
		Amount:           d.Total,
		Date:             d.IssuedAt,
		Vendor:           d.Vendor,
		Description:      d.Description,
		SourceConfidence: d.SourceConfidence,
	}
}

// LedgerEntry represents a manually posted accounting entry
type LedgerEntry struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID       `gorm:"type:uuid;index" json:"tenant_id"`
	Account           string          `gorm:"index" json:"account"`
	Memo              string          `json:"memo"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,2);index" json:"amount"`
	PostedAt          time.Time       `gorm:"index" json:"posted_at"`
	Reconciled        bool            `gorm:"index" json:"reconciled"`
	BankTransactionID *uuid.UUID      `gorm:"type:uuid" json:"bank_transaction_id,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// NewLedgerEntry creates a new LedgerEntry with a fresh identifier
func NewLedgerEntry(tenantID uuid.UUID, account, memo string, amount decimal.Decimal, postedAt time.Time) *LedgerEntry {
	return &LedgerEntry{
		ID:       uuid.New(),
		TenantID: tenantID,
		Account:  account,
		Memo:     memo,
		Amount:   amount,
		PostedAt: postedAt,
	}
}

// Validate performs basic validation on the LedgerEntry
func (e *LedgerEntry) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("ledger entry id cannot be nil")
	}

	if e.TenantID == uuid.Nil {
		return fmt.Errorf("ledger entry tenant id cannot be nil")
	}

	if e.Amount.IsZero() {
		return fmt.Errorf("ledger entry amount cannot be zero")
	}

	if e.PostedAt.IsZero() {
		return fmt.Errorf("ledger entry posting date cannot be zero")
	}

	return nil
}

// String returns a string representation of the LedgerEntry
func (e *LedgerEntry) String() string {
	return fmt.Sprintf("LedgerEntry{ID: %s, Account: %s, Amount: %s, PostedAt: %s}",
		e.ID, e.Account, e.Amount.String(), e.PostedAt.Format("2006-01-02"))
}

// ToMatchableRecord converts the entry into the matcher's candidate view.
// Ledger entries have no extraction step, so their source confidence is 1.
func (e *LedgerEntry) ToMatchableRecord() *MatchableRecord {
	return &MatchableRecord{
		Kind:             RecordKindLedgerEntry,
		ID:               e.ID,
		TenantID:         e.TenantID,
		Amount:           e.Amount,
		Date:             e.PostedAt,
		Description:      e.Memo,
		SourceConfidence: 1.0,
	}
}

// MatchableRecord is the uniform candidate view the matcher scores against a
// bank transaction. It is built from documents and ledger entries on demand
// and never persisted.
type MatchableRecord struct {
	Kind             RecordKind      `json:"kind"`
	ID               uuid.UUID       `json:"id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	Amount           decimal.Decimal `json:"amount"`
	Date             time.Time       `json:"date"`
	Vendor           string          `json:"vendor,omitempty"`
	Description      string          `json:"description,omitempty"`
	SourceConfidence float64         `json:"source_confidence"`
}

// Validate performs basic validation on the MatchableRecord
func (r *MatchableRecord) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("invalid record kind: %s", r.Kind)
	}

	if r.ID == uuid.Nil {
		return fmt.Errorf("record id cannot be nil")
	}

	if r.SourceConfidence < 0 || r.SourceConfidence > 1 {
		return fmt.Errorf("record source confidence must be within [0, 1], got %f", r.SourceConfidence)
	}

	return nil
}

// VendorText returns the text compared against the transaction description
// for the vendor signal. Ledger entries carry no vendor, so their memo text
// stands in.
func (r *MatchableRecord) VendorText() string {
	if strings.TrimSpace(r.Vendor) != "" {
		return r.Vendor
	}
	return r.Description
}

// DescriptionText returns the text compared against the transaction
// description for the description signal. Documents extracted from a vendor
// name alone carry no line-item text, so the vendor stands in.
func (r *MatchableRecord) DescriptionText() string {
	if strings.TrimSpace(r.Description) != "" {
		return r.Description
	}
	return r.Vendor
}

// String returns a string representation of the MatchableRecord
func (r *MatchableRecord) String() string {
	return fmt.Sprintf("MatchableRecord{Kind: %s, ID: %s, Amount: %s, Date: %s}",
		r.Kind, r.ID, r.Amount.String(), r.Date.Format("2006-01-02"))
}

// Utility functions shared by feed ingestion and fixtures

// DayOf truncates a timestamp to its calendar day in UTC
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute whole-day distance between two timestamps
func DaysBetween(a, b time.Time) int {
	diff := DayOf(a).Sub(DayOf(b))
	if diff < 0 {
		diff = -diff
	}
	return int(diff / (24 * time.Hour))
}

// ParseDecimalFromString parses a decimal value from string with validation
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	// Remove common currency symbols and thousand separators
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "")
	s = strings.ReplaceAll(s, "£", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}

// ParseTimeWithFormats attempts to parse time from string using multiple common formats
func ParseTimeWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("time string cannot be empty")
	}

	// Common time formats used in bank exports and document extracts
	formats := []string{
		time.RFC3339,          // "2006-01-02T15:04:05Z07:00"
		"2006-01-02 15:04:05", // "2006-01-02 15:04:05"
		"2006-01-02T15:04:05", // "2006-01-02T15:04:05"
		"2006-01-02",          // "2006-01-02"
		"01/02/2006 15:04:05", // "01/02/2006 15:04:05"
		"01/02/2006",          // "01/02/2006"
		"02-01-2006",          // "02-01-2006"
		"2006/01/02",          // "2006/01/02"
		"Jan 2, 2006",         // "Jan 2, 2006"
		"January 2, 2006",     // "January 2, 2006"
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse time '%s': %w", s, lastErr)
}

// ParseCurrency validates and normalizes a three-letter currency code.
// An empty input falls back to USD, matching the feed import default.
func ParseCurrency(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "USD", nil
	}
	if len(s) != 3 {
		return "", fmt.Errorf("invalid currency code '%s': must be a three-letter ISO code", s)
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("invalid currency code '%s': must be a three-letter ISO code", s)
		}
	}
	return s, nil
}

// CompareAmountsWithTolerance compares two decimal amounts with a tolerance
func CompareAmountsWithTolerance(a, b, tolerance decimal.Decimal) bool {
	diff := a.Sub(b).Abs()
	return diff.LessThanOrEqual(tolerance)
}

// CompareDatesWithTolerance compares two dates within a day tolerance
func CompareDatesWithTolerance(a, b time.Time, toleranceDays int) bool {
	return DaysBetween(a, b) <= toleranceDays
}
