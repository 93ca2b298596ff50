package models

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// ExceptionType classifies why a transaction needs human attention
type ExceptionType string

const (
	ExceptionTypeUnmatched       ExceptionType = "unmatched"
	ExceptionTypeDuplicate       ExceptionType = "duplicate"
	ExceptionTypeMissingDocument ExceptionType = "missing_document"
	ExceptionTypeAmountMismatch  ExceptionType = "amount_mismatch"
	ExceptionTypeDateMismatch    ExceptionType = "date_mismatch"
	ExceptionTypeUnusualSpend    ExceptionType = "unusual_spend"
	ExceptionTypeAnomaly         ExceptionType = "anomaly"
)

// String returns the string representation of ExceptionType
func (t ExceptionType) String() string {
	return string(t)
}

// IsValid checks if the exception type is valid
func (t ExceptionType) IsValid() bool {
	switch t {
	case ExceptionTypeUnmatched, ExceptionTypeDuplicate, ExceptionTypeMissingDocument,
		ExceptionTypeAmountMismatch, ExceptionTypeDateMismatch,
		ExceptionTypeUnusualSpend, ExceptionTypeAnomaly:
		return true
	}
	return false
}

// DefaultSeverity returns the severity assigned to this exception type when
// the anomaly score does not escalate it
func (t ExceptionType) DefaultSeverity() ExceptionSeverity {
	switch t {
	case ExceptionTypeDuplicate, ExceptionTypeAmountMismatch, ExceptionTypeUnusualSpend:
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// ExceptionSeverity ranks how urgently an exception needs attention
type ExceptionSeverity string

const (
	SeverityLow      ExceptionSeverity = "low"
	SeverityMedium   ExceptionSeverity = "medium"
	SeverityHigh     ExceptionSeverity = "high"
	SeverityCritical ExceptionSeverity = "critical"
)

// String returns the string representation of ExceptionSeverity
func (s ExceptionSeverity) String() string {
	return string(s)
}

// IsValid checks if the severity is valid
func (s ExceptionSeverity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Rank returns a sortable weight; higher means more urgent
func (s ExceptionSeverity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ExceptionStatus tracks the triage lifecycle of an exception
type ExceptionStatus string

const (
	ExceptionStatusOpen       ExceptionStatus = "open"
	ExceptionStatusInProgress ExceptionStatus = "in_progress"
	ExceptionStatusResolved   ExceptionStatus = "resolved"
	ExceptionStatusDismissed  ExceptionStatus = "dismissed"
)

// String returns the string representation of ExceptionStatus
func (s ExceptionStatus) String() string {
	return string(s)
}

// IsValid checks if the exception status is valid
func (s ExceptionStatus) IsValid() bool {
	switch s {
	case ExceptionStatusOpen, ExceptionStatusInProgress, ExceptionStatusResolved, ExceptionStatusDismissed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the triage lifecycle
func (s ExceptionStatus) IsTerminal() bool {
	return s == ExceptionStatusResolved || s == ExceptionStatusDismissed
}

// CanTransitionTo reports whether a status change is allowed.
// Open exceptions may be assigned, resolved, or dismissed; in-progress
// exceptions may be resolved or dismissed; terminal states accept nothing.
func (s ExceptionStatus) CanTransitionTo(next ExceptionStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case ExceptionStatusOpen:
		return next == ExceptionStatusInProgress || next.IsTerminal()
	case ExceptionStatusInProgress:
		return next.IsTerminal()
	}
	return false
}

// PlaybookStep is a single remediation action attached to an exception
type PlaybookStep struct {
	Step        int    `json:"step"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// PlaybookToJSON serializes playbook steps into a JSON column value
func PlaybookToJSON(steps []PlaybookStep) (datatypes.JSON, error) {
	b, err := json.Marshal(steps)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize playbook: %w", err)
	}
	return datatypes.JSON(b), nil
}

// PlaybookFromJSON decodes persisted playbook steps
func PlaybookFromJSON(data datatypes.JSON) ([]PlaybookStep, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var steps []PlaybookStep
	if err := json.Unmarshal(data, &steps); err != nil {
		return nil, fmt.Errorf("failed to decode playbook: %w", err)
	}
	return steps, nil
}

// ReconciliationException is a persisted item in the review queue: a
// transaction, document, or match that automatic reconciliation could not
// settle, with a remediation playbook attached.
type ReconciliationException struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID         `gorm:"type:uuid;index" json:"tenant_id"`
	Type              ExceptionType     `gorm:"index" json:"type"`
	Severity          ExceptionSeverity `gorm:"index" json:"severity"`
	Status            ExceptionStatus   `gorm:"index" json:"status"`
	BankTransactionID *uuid.UUID        `gorm:"type:uuid;index" json:"bank_transaction_id,omitempty"`
	DocumentID        *uuid.UUID        `gorm:"type:uuid" json:"document_id,omitempty"`
	LedgerEntryID     *uuid.UUID        `gorm:"type:uuid" json:"ledger_entry_id,omitempty"`
	MatchID           *uuid.UUID        `gorm:"type:uuid" json:"match_id,omitempty"`
	Description       string            `json:"description"`
	AnomalyScore      float64           `json:"anomaly_score"`
	Playbook          datatypes.JSON    `json:"playbook,omitempty"`
	AssignedTo        *uuid.UUID        `gorm:"type:uuid" json:"assigned_to,omitempty"`
	ResolvedBy        *uuid.UUID        `gorm:"type:uuid" json:"resolved_by,omitempty"`
	ResolutionNotes   string            `json:"resolution_notes,omitempty"`
	ResolvedAt        *time.Time        `json:"resolved_at,omitempty"`
	CreatedAt         time.Time         `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Validate performs basic validation on the ReconciliationException
func (e *ReconciliationException) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("exception id cannot be nil")
	}

	if e.TenantID == uuid.Nil {
		return fmt.Errorf("exception tenant id cannot be nil")
	}

	if !e.Type.IsValid() {
		return fmt.Errorf("invalid exception type: %s", e.Type)
	}

	if !e.Severity.IsValid() {
		return fmt.Errorf("invalid exception severity: %s", e.Severity)
	}

	if !e.Status.IsValid() {
		return fmt.Errorf("invalid exception status: %s", e.Status)
	}

	if math.IsNaN(e.AnomalyScore) || e.AnomalyScore < 0 || e.AnomalyScore > 1 {
		return fmt.Errorf("exception anomaly score must be within [0, 1], got %f", e.AnomalyScore)
	}

	return nil
}

// String returns a string representation of the ReconciliationException
func (e *ReconciliationException) String() string {
	return fmt.Sprintf("ReconciliationException{ID: %s, Type: %s, Severity: %s, Status: %s}",
		e.ID, e.Type, e.Severity, e.Status)
}

// EventType classifies entries in the append-only reconciliation history
type EventType string

const (
	EventTypeMatched            EventType = "matched"
	EventTypeUnmatched          EventType = "unmatched"
	EventTypeManualMatch        EventType = "manual_match"
	EventTypeMatchRejected      EventType = "match_rejected"
	EventTypeExceptionOpened    EventType = "exception_opened"
	EventTypeExceptionResolved  EventType = "exception_resolved"
	EventTypeExceptionDismissed EventType = "exception_dismissed"
)

// String returns the string representation of EventType
func (t EventType) String() string {
	return string(t)
}

// IsValid checks if the event type is valid
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeMatched, EventTypeUnmatched, EventTypeManualMatch, EventTypeMatchRejected,
		EventTypeExceptionOpened, EventTypeExceptionResolved, EventTypeExceptionDismissed:
		return true
	}
	return false
}

// SystemActor labels events produced by the engine rather than a reviewer
const SystemActor = "system"

// ReconciliationEvent is one row of the append-only reconciliation history.
// Events are never updated or deleted; the summary rollup and the audit
// trail both read from this table.
type ReconciliationEvent struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID          uuid.UUID      `gorm:"type:uuid;index" json:"tenant_id"`
	BankTransactionID *uuid.UUID     `gorm:"type:uuid;index" json:"bank_transaction_id,omitempty"`
	MatchID           *uuid.UUID     `gorm:"type:uuid" json:"match_id,omitempty"`
	ExceptionID       *uuid.UUID     `gorm:"type:uuid" json:"exception_id,omitempty"`
	EventType         EventType      `gorm:"index" json:"event_type"`
	Reason            string         `json:"reason"`
	Confidence        float64        `json:"confidence,omitempty"`
	Signals           datatypes.JSON `json:"signals,omitempty"`
	Actor             string         `json:"actor"`
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`
}

// NewEvent creates an event stamped with the current time
func NewEvent(tenantID uuid.UUID, eventType EventType, actor, reason string) *ReconciliationEvent {
	return &ReconciliationEvent{
		ID:        uuid.New(),
		TenantID:  tenantID,
		EventType: eventType,
		Actor:     actor,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate performs basic validation on the ReconciliationEvent
func (e *ReconciliationEvent) Validate() error {
	if e.ID == uuid.Nil {
		return fmt.Errorf("event id cannot be nil")
	}

	if e.TenantID == uuid.Nil {
		return fmt.Errorf("event tenant id cannot be nil")
	}

	if !e.EventType.IsValid() {
		return fmt.Errorf("invalid event type: %s", e.EventType)
	}

	if e.Actor == "" {
		return fmt.Errorf("event actor cannot be empty")
	}

	return nil
}

// ReconciliationSummary is the read-only dashboard rollup for one tenant
type ReconciliationSummary struct {
	TenantID                uuid.UUID `json:"tenant_id"`
	TotalTransactions       int64     `json:"total_transactions"`
	ReconciledTransactions  int64     `json:"reconciled_transactions"`
	AutoMatchRate           float64   `json:"auto_match_rate"`
	OpenExceptions          int64     `json:"open_exceptions"`
	CriticalExceptions      int64     `json:"critical_exceptions"`
	AvgTimeToReconcileHours float64   `json:"avg_time_to_reconcile_hours"`
	GeneratedAt             time.Time `json:"generated_at"`
}

// ReconciledRate returns the fraction of transactions already reconciled
func (s *ReconciliationSummary) ReconciledRate() float64 {
	if s.TotalTransactions == 0 {
		return 0
	}
	return float64(s.ReconciledTransactions) / float64(s.TotalTransactions)
}
