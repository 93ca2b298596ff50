package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/matcher"
	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/store"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
	"accounting-reconciliation-engine/pkg/logger"
)

// AcceptMatch settles a pending suggestion on the reviewer's authority. The
// decision feeds the tenant's threshold learner, and the review exceptions
// the settlement makes moot are resolved. Accepting a match whose
// transaction was settled in the meantime returns store.ErrAlreadyReconciled.
func (s *Service) AcceptMatch(ctx context.Context, tenantID, matchID, reviewerID uuid.UUID, notes string) (*models.ReconciliationMatch, error) {
	if reviewerID == uuid.Nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "reviewer_id", "nil", nil)
	}

	match, err := s.store.GetMatch(ctx, tenantID, matchID)
	if err != nil {
		return nil, err
	}

	match.Status = models.MatchStatusMatched
	match.MatchedBy = reviewerID.String()
	if notes != "" {
		match.Notes = notes
	}

	if err := s.store.ConditionalReconcile(ctx, match); err != nil {
		return nil, err
	}

	s.learnFromDecision(ctx, match, true, reviewerID)
	s.resolveReviewExceptions(ctx, tenantID, match.BankTransactionID, reviewerID, "match accepted")

	reason := notes
	if reason == "" {
		reason = "accepted by reviewer"
	}
	s.appendEvent(ctx, matchEvent(match, models.EventTypeMatched, reviewerID.String(), reason))

	s.logger.WithFields(logger.Fields{
		"tenant_id":   tenantID,
		"match_id":    matchID,
		"reviewer_id": reviewerID,
	}).Info("Match accepted")

	return match, nil
}

// RejectMatch marks a pending suggestion as a bad proposal. The transaction
// stays unreconciled and its review exception stays open for the reviewer to
// disposition. Settled matches cannot be rejected; unmatching a settled
// transaction is a separate, deliberate operation.
func (s *Service) RejectMatch(ctx context.Context, tenantID, matchID, reviewerID uuid.UUID, notes string) (*models.ReconciliationMatch, error) {
	if reviewerID == uuid.Nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "reviewer_id", "nil", nil)
	}

	match, err := s.store.GetMatch(ctx, tenantID, matchID)
	if err != nil {
		return nil, err
	}

	switch match.Status {
	case models.MatchStatusMatched:
		return nil, engineerrors.ValidationError(engineerrors.CodeInvalidData, "status", match.Status,
			fmt.Errorf("cannot reject a settled match"))
	case models.MatchStatusException:
		return nil, engineerrors.ValidationError(engineerrors.CodeInvalidData, "status", match.Status,
			fmt.Errorf("match is already rejected"))
	}

	match.Status = models.MatchStatusException
	if notes != "" {
		match.Notes = notes
	}
	if err := s.store.UpdateMatch(ctx, match); err != nil {
		return nil, err
	}

	s.learnFromDecision(ctx, match, false, reviewerID)

	reason := notes
	if reason == "" {
		reason = "rejected by reviewer"
	}
	s.appendEvent(ctx, matchEvent(match, models.EventTypeMatchRejected, reviewerID.String(), reason))

	s.logger.WithFields(logger.Fields{
		"tenant_id":   tenantID,
		"match_id":    matchID,
		"reviewer_id": reviewerID,
	}).Info("Match rejected")

	return match, nil
}

// ManualMatch links a transaction to a record the reviewer picked by hand.
// Manual links settle at full confidence, displace any pending suggestion,
// and resolve the open review exceptions for the transaction.
func (s *Service) ManualMatch(ctx context.Context, tenantID, txID uuid.UUID, ref RecordRef, actorID uuid.UUID, notes string) (*models.ReconciliationMatch, error) {
	if actorID == uuid.Nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "actor_id", "nil", nil)
	}

	tx, err := s.store.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		return nil, err
	}
	if tx.Reconciled {
		return nil, store.ErrAlreadyReconciled
	}

	rec, reconciled, err := s.loadRecord(ctx, tenantID, ref)
	if err != nil {
		return nil, err
	}
	if reconciled {
		return nil, engineerrors.ValidationError(engineerrors.CodeInvalidData, "record", ref.ID,
			fmt.Errorf("%s is already reconciled", ref.Kind))
	}

	candidate := &matcher.Candidate{
		Record:        rec,
		Signals:       matcher.CalculateSignals(tx, rec),
		Confidence:    1.0,
		MatchType:     models.MatchTypeManual,
		AmountDelta:   tx.Amount.Abs().Sub(rec.Amount.Abs()).Abs(),
		DateDeltaDays: models.DaysBetween(tx.BookedAt, rec.Date),
	}
	match, err := buildMatch(tx, candidate, models.MatchStatusMatched, false, actorID.String())
	if err != nil {
		return nil, err
	}
	if notes != "" {
		match.Notes = notes
	}

	if err := s.store.ConditionalReconcile(ctx, match); err != nil {
		return nil, err
	}

	s.displacePendingMatches(ctx, tenantID, txID, match.ID)
	s.resolveReviewExceptions(ctx, tenantID, txID, actorID, "manually matched")

	reason := notes
	if reason == "" {
		reason = fmt.Sprintf("linked to %s %s by reviewer", ref.Kind, ref.ID)
	}
	s.appendEvent(ctx, matchEvent(match, models.EventTypeManualMatch, actorID.String(), reason))

	s.logger.WithFields(logger.Fields{
		"tenant_id":      tenantID,
		"transaction_id": txID,
		"record_kind":    ref.Kind,
		"record_id":      ref.ID,
		"actor_id":       actorID,
	}).Info("Transaction manually matched")

	return match, nil
}

// loadRecord fetches the referenced record and reports whether it is
// already reconciled.
func (s *Service) loadRecord(ctx context.Context, tenantID uuid.UUID, ref RecordRef) (*models.MatchableRecord, bool, error) {
	switch ref.Kind {
	case models.RecordKindDocument:
		doc, err := s.store.GetDocument(ctx, tenantID, ref.ID)
		if err != nil {
			return nil, false, err
		}
		return doc.ToMatchableRecord(), doc.Reconciled, nil
	case models.RecordKindLedgerEntry:
		entry, err := s.store.GetLedgerEntry(ctx, tenantID, ref.ID)
		if err != nil {
			return nil, false, err
		}
		return entry.ToMatchableRecord(), entry.Reconciled, nil
	}
	return nil, false, engineerrors.ValidationError(engineerrors.CodeInvalidData, "record_kind", ref.Kind,
		fmt.Errorf("unknown record kind"))
}

// displacePendingMatches retires pending suggestions that a settlement has
// overtaken. Best-effort: the settled match is already the source of truth.
func (s *Service) displacePendingMatches(ctx context.Context, tenantID, txID, keepID uuid.UUID) {
	pendingStatus := models.MatchStatusPending
	matches, err := s.store.ListMatches(ctx, tenantID, store.MatchFilter{
		BankTransactionID: &txID,
		Status:            &pendingStatus,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id":      tenantID,
			"transaction_id": txID,
		}).Warn("Pending match lookup failed during displacement")
		return
	}

	for _, m := range matches {
		if m.ID == keepID {
			continue
		}
		m.Status = models.MatchStatusException
		m.Notes = "displaced by manual match"
		if err := s.store.UpdateMatch(ctx, m); err != nil {
			s.logger.WithError(err).WithFields(logger.Fields{
				"tenant_id": tenantID,
				"match_id":  m.ID,
			}).Warn("Failed to displace pending match")
			continue
		}
		s.appendEvent(ctx, matchEvent(m, models.EventTypeMatchRejected, models.SystemActor, "displaced by manual match"))
	}
}

// resolveReviewExceptions closes the open review exceptions a settlement
// makes moot. Duplicate and unusual-spend exceptions outlive settlement;
// those reviews are about the transaction itself, not the missing match.
func (s *Service) resolveReviewExceptions(ctx context.Context, tenantID, txID, actorID uuid.UUID, notes string) {
	excs, err := s.store.ListExceptions(ctx, tenantID, store.ExceptionFilter{BankTransactionID: &txID})
	if err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id":      tenantID,
			"transaction_id": txID,
		}).Warn("Exception lookup failed after settlement")
		return
	}

	for _, exc := range excs {
		if exc.Status.IsTerminal() {
			continue
		}
		switch exc.Type {
		case models.ExceptionTypeUnmatched, models.ExceptionTypeAmountMismatch, models.ExceptionTypeDateMismatch:
		default:
			continue
		}
		if _, err := s.exceptions.Resolve(ctx, tenantID, exc.ID, actorID, notes, false); err != nil {
			s.logger.WithError(err).WithFields(logger.Fields{
				"tenant_id":    tenantID,
				"exception_id": exc.ID,
			}).Warn("Failed to resolve review exception after settlement")
		}
	}
}

// learnFromDecision feeds one reviewer verdict to the tenant's threshold
// learner. Learning is advisory and never fails the review operation.
func (s *Service) learnFromDecision(ctx context.Context, match *models.ReconciliationMatch, accepted bool, reviewerID uuid.UUID) {
	signals, err := models.SignalsFromJSON(match.Signals)
	if err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id": match.TenantID,
			"match_id":  match.ID,
		}).Warn("Skipping threshold feedback, match signals did not decode")
		return
	}

	decision := models.ReviewDecision{
		MatchID:    match.ID,
		TenantID:   match.TenantID,
		Accepted:   accepted,
		Confidence: match.Confidence,
		Signals:    signals,
		ReviewerID: reviewerID,
		DecidedAt:  time.Now().UTC(),
	}
	if _, err := s.thresholds.LearnFromFeedback(ctx, match.TenantID, []models.ReviewDecision{decision}); err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id": match.TenantID,
			"match_id":  match.ID,
		}).Warn("Threshold feedback failed")
	}
}
