package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// MatchType describes how a transaction and a record were paired
type MatchType string

const (
	// MatchTypeExact marks pairs with identical amounts on the same day
	MatchTypeExact MatchType = "exact"
	// MatchTypePartial marks pairs whose amounts differ within tolerance
	MatchTypePartial MatchType = "partial"
	// MatchTypeFuzzy marks pairs held together mostly by text similarity
	MatchTypeFuzzy MatchType = "fuzzy"
	// MatchTypeManual marks pairs linked explicitly by a reviewer
	MatchTypeManual MatchType = "manual"
)

// String returns the string representation of MatchType
func (t MatchType) String() string {
	return string(t)
}

// IsValid checks if the match type is valid
func (t MatchType) IsValid() bool {
	switch t {
	case MatchTypeExact, MatchTypePartial, MatchTypeFuzzy, MatchTypeManual:
		return true
	}
	return false
}

// MatchStatus tracks the lifecycle of a persisted match.
// Pending marks suggestions awaiting review; exception marks proposals
// that were rejected or displaced and now need attention.
type MatchStatus string

const (
	MatchStatusMatched   MatchStatus = "matched"
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusException MatchStatus = "exception"
)

// String returns the string representation of MatchStatus
func (s MatchStatus) String() string {
	return string(s)
}

// IsValid checks if the match status is valid
func (s MatchStatus) IsValid() bool {
	switch s {
	case MatchStatusMatched, MatchStatusPending, MatchStatusException:
		return true
	}
	return false
}

// MatchSignals holds the per-signal similarity scores for one candidate
// pairing. Every field is within [0, 1].
type MatchSignals struct {
	Amount           float64 `json:"amount"`
	Date             float64 `json:"date"`
	Vendor           float64 `json:"vendor"`
	SourceConfidence float64 `json:"source_confidence"`
	Description      float64 `json:"description"`
}

// Validate checks that every signal value is within [0, 1]
func (s MatchSignals) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("signal %s must be within [0, 1], got %f", name, v)
		}
		return nil
	}

	if err := check("amount", s.Amount); err != nil {
		return err
	}
	if err := check("date", s.Date); err != nil {
		return err
	}
	if err := check("vendor", s.Vendor); err != nil {
		return err
	}
	if err := check("source_confidence", s.SourceConfidence); err != nil {
		return err
	}
	return check("description", s.Description)
}

// ToJSON serializes the signals into a JSON column value for persistence
func (s MatchSignals) ToJSON() (datatypes.JSON, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize match signals: %w", err)
	}
	return datatypes.JSON(b), nil
}

// SignalsFromJSON decodes a persisted signal snapshot
func SignalsFromJSON(data datatypes.JSON) (MatchSignals, error) {
	var s MatchSignals
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("failed to decode match signals: %w", err)
	}
	return s, nil
}

// SignalWeights holds the relative importance of each matching signal.
// Weights are blended per tenant by the threshold learner and are kept
// normalized so they sum to 1.
type SignalWeights struct {
	Amount           float64 `gorm:"column:weight_amount" json:"amount"`
	Date             float64 `gorm:"column:weight_date" json:"date"`
	Vendor           float64 `gorm:"column:weight_vendor" json:"vendor"`
	SourceConfidence float64 `gorm:"column:weight_source_confidence" json:"source_confidence"`
	Description      float64 `gorm:"column:weight_description" json:"description"`
}

// DefaultSignalWeights returns the starting weights applied to new tenants
func DefaultSignalWeights() SignalWeights {
	return SignalWeights{
		Amount:           0.35,
		Date:             0.25,
		Vendor:           0.15,
		SourceConfidence: 0.10,
		Description:      0.15,
	}
}

// Total returns the sum of all weights
func (w SignalWeights) Total() float64 {
	return w.Amount + w.Date + w.Vendor + w.SourceConfidence + w.Description
}

// Normalize scales the weights so they sum to 1. Weights with a zero total
// are returned unchanged; callers must treat that as a configuration error.
func (w SignalWeights) Normalize() SignalWeights {
	total := w.Total()
	if total <= 0 {
		return w
	}
	return SignalWeights{
		Amount:           w.Amount / total,
		Date:             w.Date / total,
		Vendor:           w.Vendor / total,
		SourceConfidence: w.SourceConfidence / total,
		Description:      w.Description / total,
	}
}

// Validate checks that weights are non-negative with a positive total
func (w SignalWeights) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || v < 0 {
			return fmt.Errorf("weight %s cannot be negative, got %f", name, v)
		}
		return nil
	}

	if err := check("amount", w.Amount); err != nil {
		return err
	}
	if err := check("date", w.Date); err != nil {
		return err
	}
	if err := check("vendor", w.Vendor); err != nil {
		return err
	}
	if err := check("source_confidence", w.SourceConfidence); err != nil {
		return err
	}
	if err := check("description", w.Description); err != nil {
		return err
	}

	if w.Total() <= 0 {
		return fmt.Errorf("signal weights must have a positive total, got %f", w.Total())
	}

	return nil
}

// ReconciliationMatch is the persisted outcome of pairing a bank transaction
// with a document or ledger entry. At most one active match exists per
// reconciled transaction; the store's conditional update enforces this.
type ReconciliationMatch struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID       `gorm:"type:uuid;index" json:"tenant_id"`
	BankTransactionID uuid.UUID       `gorm:"type:uuid;index" json:"bank_transaction_id"`
	DocumentID        *uuid.UUID      `gorm:"type:uuid" json:"document_id,omitempty"`
	LedgerEntryID     *uuid.UUID      `gorm:"type:uuid" json:"ledger_entry_id,omitempty"`
	MatchType         MatchType       `gorm:"index" json:"match_type"`
	Confidence        float64         `json:"confidence"`
	AmountDelta       decimal.Decimal `gorm:"type:decimal(20,2)" json:"amount_delta"`
	DateDeltaDays     int             `json:"date_delta_days"`
	Status            MatchStatus     `gorm:"index" json:"status"`
	AutoMatched       bool            `json:"auto_matched"`
	Signals           datatypes.JSON  `json:"signals,omitempty"`
	MatchedBy         string          `json:"matched_by"`
	Notes             string          `json:"notes,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// RecordID returns the matched record's identifier and kind
func (m *ReconciliationMatch) RecordID() (uuid.UUID, RecordKind, bool) {
	if m.DocumentID != nil {
		return *m.DocumentID, RecordKindDocument, true
	}
	if m.LedgerEntryID != nil {
		return *m.LedgerEntryID, RecordKindLedgerEntry, true
	}
	return uuid.Nil, "", false
}

// Validate performs basic validation on the ReconciliationMatch
func (m *ReconciliationMatch) Validate() error {
	if m.ID == uuid.Nil {
		return fmt.Errorf("match id cannot be nil")
	}

	if m.TenantID == uuid.Nil {
		return fmt.Errorf("match tenant id cannot be nil")
	}

	if m.BankTransactionID == uuid.Nil {
		return fmt.Errorf("match bank transaction id cannot be nil")
	}

	if m.DocumentID == nil && m.LedgerEntryID == nil {
		return fmt.Errorf("match must reference a document or a ledger entry")
	}

	if m.DocumentID != nil && m.LedgerEntryID != nil {
		return fmt.Errorf("match cannot reference both a document and a ledger entry")
	}

	if !m.MatchType.IsValid() {
		return fmt.Errorf("invalid match type: %s", m.MatchType)
	}

	if !m.Status.IsValid() {
		return fmt.Errorf("invalid match status: %s", m.Status)
	}

	if math.IsNaN(m.Confidence) || m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("match confidence must be within [0, 1], got %f", m.Confidence)
	}

	return nil
}

// String returns a string representation of the ReconciliationMatch
func (m *ReconciliationMatch) String() string {
	return fmt.Sprintf("ReconciliationMatch{ID: %s, Transaction: %s, Type: %s, Confidence: %.3f, Status: %s}",
		m.ID, m.BankTransactionID, m.MatchType, m.Confidence, m.Status)
}

// ReviewDecision captures a reviewer's verdict on a proposed match. The
// threshold learner consumes batches of these to nudge tenant thresholds.
type ReviewDecision struct {
	MatchID    uuid.UUID    `json:"match_id"`
	TenantID   uuid.UUID    `json:"tenant_id"`
	Accepted   bool         `json:"accepted"`
	Confidence float64      `json:"confidence"`
	Signals    MatchSignals `json:"signals"`
	ReviewerID uuid.UUID    `json:"reviewer_id"`
	DecidedAt  time.Time    `json:"decided_at"`
}

// Validate performs basic validation on the ReviewDecision
func (d *ReviewDecision) Validate() error {
	if d.MatchID == uuid.Nil {
		return fmt.Errorf("review decision match id cannot be nil")
	}

	if math.IsNaN(d.Confidence) || d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("review decision confidence must be within [0, 1], got %f", d.Confidence)
	}

	return d.Signals.Validate()
}
