// Package store defines the persistence boundary of the reconciliation
// engine and provides two implementations: a mutex-guarded in-memory store
// for tests and single-shot CLI runs, and a GORM-backed PostgreSQL store for
// everything else.
//
// All queries are tenant scoped. Implementations never return another
// tenant's rows, and callers always pass the tenant ID explicitly rather
// than relying on ambient state.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"accounting-reconciliation-engine/internal/models"
)

var (
	// ErrNotFound is returned when a requested row does not exist within
	// the tenant's scope.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyReconciled is returned by ConditionalReconcile when the
	// transaction was reconciled by an earlier call. Callers treat it as
	// a benign no-op, which is what makes retried batches idempotent.
	ErrAlreadyReconciled = errors.New("transaction already reconciled")
)

// TransactionFilter narrows ListUnreconciledTransactions. Zero values are
// ignored; when set, From is inclusive and To exclusive on the booking time.
type TransactionFilter struct {
	AccountID string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// TransactionStore persists bank feed transactions.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, tx *models.BankTransaction) error
	CreateTransactions(ctx context.Context, txs []*models.BankTransaction) error
	GetTransaction(ctx context.Context, tenantID, id uuid.UUID) (*models.BankTransaction, error)

	// ListUnreconciledTransactions pages through unreconciled transactions
	// newest booking first. Batch runs process pages in this order.
	ListUnreconciledTransactions(ctx context.Context, tenantID uuid.UUID, filter TransactionFilter) ([]*models.BankTransaction, error)

	// ListTransactionsSince returns transactions booked at or after the
	// given time, newest first. Used for spend baselines.
	ListTransactionsSince(ctx context.Context, tenantID uuid.UUID, accountID string, since time.Time) ([]*models.BankTransaction, error)

	// ConditionalReconcile settles the transaction named by the match, but
	// only if it is not reconciled yet. One atomic write covers the match
	// row (inserted, or replaced by ID when a pending suggestion is
	// accepted), the transaction's reconciled flag and matched-record ids,
	// and the record side: documents flip to reconciled and posted, ledger
	// entries flip to reconciled and back-link the transaction. Returns
	// ErrAlreadyReconciled if an earlier call settled the transaction and
	// ErrNotFound if the transaction or the matched record does not exist
	// in the tenant's scope. A nil match ID is assigned before the write.
	ConditionalReconcile(ctx context.Context, match *models.ReconciliationMatch) error
}

// CandidateSource persists documents and ledger entries and serves the
// matcher's candidate window queries. The Find methods return only
// unreconciled records; the date window is [from, to) and the amount band
// compares magnitudes with both bounds inclusive.
type CandidateSource interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	CreateDocuments(ctx context.Context, docs []*models.Document) error
	GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*models.Document, error)

	CreateLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error
	CreateLedgerEntries(ctx context.Context, entries []*models.LedgerEntry) error
	GetLedgerEntry(ctx context.Context, tenantID, id uuid.UUID) (*models.LedgerEntry, error)

	FindCandidateDocuments(ctx context.Context, tenantID uuid.UUID, minAmount, maxAmount decimal.Decimal, from, to time.Time) ([]*models.Document, error)
	FindCandidateLedgerEntries(ctx context.Context, tenantID uuid.UUID, minAmount, maxAmount decimal.Decimal, from, to time.Time) ([]*models.LedgerEntry, error)
}

// MatchFilter narrows ListMatches. Nil fields are ignored.
type MatchFilter struct {
	Status            *models.MatchStatus
	BankTransactionID *uuid.UUID
	AutoMatched       *bool
	Limit             int
	Offset            int
}

// MatchStore persists reconciliation matches, both confirmed and pending.
type MatchStore interface {
	CreateMatch(ctx context.Context, match *models.ReconciliationMatch) error
	GetMatch(ctx context.Context, tenantID, id uuid.UUID) (*models.ReconciliationMatch, error)
	UpdateMatch(ctx context.Context, match *models.ReconciliationMatch) error
	ListMatches(ctx context.Context, tenantID uuid.UUID, filter MatchFilter) ([]*models.ReconciliationMatch, error)
}

// ExceptionFilter narrows ListExceptions. Nil fields are ignored.
type ExceptionFilter struct {
	Status            *models.ExceptionStatus
	Type              *models.ExceptionType
	Severity          *models.ExceptionSeverity
	AssignedTo        *uuid.UUID
	BankTransactionID *uuid.UUID
	Limit             int
	Offset            int
}

// ExceptionStore persists reconciliation exceptions.
type ExceptionStore interface {
	CreateException(ctx context.Context, exc *models.ReconciliationException) error
	GetException(ctx context.Context, tenantID, id uuid.UUID) (*models.ReconciliationException, error)
	UpdateException(ctx context.Context, exc *models.ReconciliationException) error
	ListExceptions(ctx context.Context, tenantID uuid.UUID, filter ExceptionFilter) ([]*models.ReconciliationException, error)
}

// ThresholdStore persists per-tenant matching thresholds.
type ThresholdStore interface {
	// GetThresholds returns ErrNotFound for tenants that have never been
	// tuned; callers fall back to models.DefaultThresholds.
	GetThresholds(ctx context.Context, tenantID uuid.UUID) (*models.MatchingThresholds, error)

	// SaveThresholds inserts or replaces the tenant's thresholds.
	SaveThresholds(ctx context.Context, thresholds *models.MatchingThresholds) error
}

// EventFilter narrows ListEvents. Nil fields are ignored.
type EventFilter struct {
	BankTransactionID *uuid.UUID
	Type              *models.EventType
	Limit             int
	Offset            int
}

// EventStore appends to the reconciliation audit trail. Events are never
// updated or deleted.
type EventStore interface {
	AppendEvent(ctx context.Context, event *models.ReconciliationEvent) error
	ListEvents(ctx context.Context, tenantID uuid.UUID, filter EventFilter) ([]*models.ReconciliationEvent, error)
}

// SummaryStore computes tenant-level reconciliation health rollups.
type SummaryStore interface {
	BuildSummary(ctx context.Context, tenantID uuid.UUID) (*models.ReconciliationSummary, error)
}

// Store is the full persistence surface the reconciliation service runs on.
type Store interface {
	TransactionStore
	CandidateSource
	MatchStore
	ExceptionStore
	ThresholdStore
	EventStore
	SummaryStore
}
