// Package exceptions manages the review queue: it opens exceptions with a
// severity and a remediation playbook attached, and walks them through the
// triage lifecycle (open, in progress, resolved or dismissed). Every state
// change that closes an exception lands in the event history for audit.
package exceptions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/store"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
	"accounting-reconciliation-engine/pkg/logger"
)

// Anomaly scores above these bounds escalate the severity regardless of the
// exception type's default.
const (
	criticalAnomalyScore = 0.9
	highAnomalyScore     = 0.7
)

// Store is the persistence surface the manager needs: exception rows plus
// the append-only event history.
type Store interface {
	store.ExceptionStore
	store.EventStore
}

// CreateRequest carries everything needed to open an exception. Record links
// are optional; at least a description should explain what the reviewer is
// looking at.
type CreateRequest struct {
	TenantID          uuid.UUID
	Type              models.ExceptionType
	BankTransactionID *uuid.UUID
	DocumentID        *uuid.UUID
	LedgerEntryID     *uuid.UUID
	MatchID           *uuid.UUID
	Description       string
	AnomalyScore      float64
}

// Manager opens exceptions and drives their triage lifecycle
type Manager struct {
	store  Store
	logger logger.Logger
}

// NewManager creates an exception manager backed by the given store
func NewManager(excStore Store) *Manager {
	return &Manager{
		store:  excStore,
		logger: logger.GetGlobalLogger().WithComponent("exception_manager"),
	}
}

// Create opens a new exception. Severity comes from the anomaly score when it
// is high enough to escalate, otherwise from the type's default; the type's
// remediation playbook is attached and an exception_opened event is appended.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.ReconciliationException, error) {
	playbook, err := models.PlaybookToJSON(PlaybookFor(req.Type))
	if err != nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeInvalidData, "playbook", req.Type.String(), err)
	}

	now := time.Now().UTC()
	exc := &models.ReconciliationException{
		ID:                uuid.New(),
		TenantID:          req.TenantID,
		Type:              req.Type,
		Severity:          severityFor(req.Type, req.AnomalyScore),
		Status:            models.ExceptionStatusOpen,
		BankTransactionID: req.BankTransactionID,
		DocumentID:        req.DocumentID,
		LedgerEntryID:     req.LedgerEntryID,
		MatchID:           req.MatchID,
		Description:       req.Description,
		AnomalyScore:      req.AnomalyScore,
		Playbook:          playbook,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := exc.Validate(); err != nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeInvalidData, "exception", exc.String(), err)
	}

	if err := m.store.CreateException(ctx, exc); err != nil {
		return nil, err
	}
	m.appendEvent(ctx, exc, models.EventTypeExceptionOpened, models.SystemActor, req.Description)

	m.logger.WithFields(logger.Fields{
		"tenant_id":    exc.TenantID,
		"exception_id": exc.ID,
		"type":         exc.Type,
		"severity":     exc.Severity,
	}).Info("Exception opened")

	return exc, nil
}

// Get returns a single exception by id
func (m *Manager) Get(ctx context.Context, tenantID, excID uuid.UUID) (*models.ReconciliationException, error) {
	return m.store.GetException(ctx, tenantID, excID)
}

// List returns the tenant's exceptions ordered by severity rank, most urgent
// first, then by recency within each severity.
func (m *Manager) List(ctx context.Context, tenantID uuid.UUID, filter store.ExceptionFilter) ([]*models.ReconciliationException, error) {
	return m.store.ListExceptions(ctx, tenantID, filter)
}

// Assign moves an open exception to in_progress and records the assignee
func (m *Manager) Assign(ctx context.Context, tenantID, excID, assigneeID uuid.UUID) (*models.ReconciliationException, error) {
	if assigneeID == uuid.Nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "assignee_id", "nil", nil)
	}

	exc, err := m.store.GetException(ctx, tenantID, excID)
	if err != nil {
		return nil, err
	}
	if !exc.Status.CanTransitionTo(models.ExceptionStatusInProgress) {
		return nil, transitionError(exc.Status, models.ExceptionStatusInProgress)
	}

	exc.Status = models.ExceptionStatusInProgress
	exc.AssignedTo = &assigneeID
	if err := m.store.UpdateException(ctx, exc); err != nil {
		return nil, err
	}

	m.logger.WithFields(logger.Fields{
		"tenant_id":    exc.TenantID,
		"exception_id": exc.ID,
		"assigned_to":  assigneeID,
	}).Info("Exception assigned")

	return exc, nil
}

// Resolve closes an exception as resolved, or as dismissed when dismissed is
// true. The actor is required; the resolution notes and timestamps are
// persisted and the matching event is appended.
func (m *Manager) Resolve(ctx context.Context, tenantID, excID, actorID uuid.UUID, notes string, dismissed bool) (*models.ReconciliationException, error) {
	if actorID == uuid.Nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "actor_id", "nil", nil)
	}

	exc, err := m.store.GetException(ctx, tenantID, excID)
	if err != nil {
		return nil, err
	}

	target := models.ExceptionStatusResolved
	eventType := models.EventTypeExceptionResolved
	if dismissed {
		target = models.ExceptionStatusDismissed
		eventType = models.EventTypeExceptionDismissed
	}
	if !exc.Status.CanTransitionTo(target) {
		return nil, transitionError(exc.Status, target)
	}

	now := time.Now().UTC()
	exc.Status = target
	exc.ResolvedBy = &actorID
	exc.ResolvedAt = &now
	exc.ResolutionNotes = notes
	if err := m.store.UpdateException(ctx, exc); err != nil {
		return nil, err
	}
	m.appendEvent(ctx, exc, eventType, actorID.String(), notes)

	m.logger.WithFields(logger.Fields{
		"tenant_id":    exc.TenantID,
		"exception_id": exc.ID,
		"status":       exc.Status,
		"resolved_by":  actorID,
	}).Info("Exception closed")

	return exc, nil
}

// appendEvent writes the exception's audit event. The exception row is the
// source of truth; a failed event append is logged and does not undo the
// state change.
func (m *Manager) appendEvent(ctx context.Context, exc *models.ReconciliationException, eventType models.EventType, actor, reason string) {
	event := models.NewEvent(exc.TenantID, eventType, actor, reason)
	excID := exc.ID
	event.ExceptionID = &excID
	event.BankTransactionID = exc.BankTransactionID
	event.MatchID = exc.MatchID

	if err := m.store.AppendEvent(ctx, event); err != nil {
		m.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id":    exc.TenantID,
			"exception_id": exc.ID,
			"event_type":   eventType,
		}).Error("Failed to append exception event")
	}
}

// severityFor escalates by anomaly score before falling back to the type's
// default severity.
func severityFor(excType models.ExceptionType, anomalyScore float64) models.ExceptionSeverity {
	switch {
	case anomalyScore > criticalAnomalyScore:
		return models.SeverityCritical
	case anomalyScore > highAnomalyScore:
		return models.SeverityHigh
	default:
		return excType.DefaultSeverity()
	}
}

func transitionError(from, to models.ExceptionStatus) error {
	return engineerrors.ValidationError(engineerrors.CodeInvalidData, "status", from.String(),
		fmt.Errorf("cannot transition to %s", to))
}
