// Package reconciler orchestrates the reconciliation workflow: it pulls
// unreconciled bank transactions, finds and classifies match candidates,
// settles confident matches through the store's conditional write, opens
// exceptions for everything that needs review, and feeds reviewer decisions
// back into the tenant's thresholds.
//
// The service runs in two modes. Single-transaction mode serves real-time
// webhooks and reviewer actions; batch mode pages through a tenant's
// backlog with a bounded worker pool. Both modes write through the same
// store contract, so concurrent runs settle each transaction at most once.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/exceptions"
	"accounting-reconciliation-engine/internal/matcher"
	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/notify"
	"accounting-reconciliation-engine/internal/store"
	"accounting-reconciliation-engine/internal/thresholds"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
	"accounting-reconciliation-engine/pkg/logger"
)

// Config holds processing options for the reconciliation service
type Config struct {
	// BatchLimit caps how many transactions one batch run processes.
	BatchLimit int

	// Workers bounds the concurrent per-transaction matching goroutines.
	Workers int

	// SpendLookbackDays is how far back the unusual-spend baseline reaches.
	// Zero disables the heuristic.
	SpendLookbackDays int

	// SpendScoreFloor is the anomaly score at which an unusual_spend
	// exception is opened.
	SpendScoreFloor float64

	// NotifyChannels are handed to the notification sender after each
	// batch. Empty means the sender's default channel.
	NotifyChannels []string
}

// DefaultConfig returns the default processing options
func DefaultConfig() *Config {
	return &Config{
		BatchLimit:        1000,
		Workers:           4,
		SpendLookbackDays: 90,
		SpendScoreFloor:   0.7,
	}
}

// Validate checks the configuration bounds
func (c *Config) Validate() error {
	if c.BatchLimit <= 0 {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "batch_limit", c.BatchLimit, nil)
	}
	if c.Workers <= 0 {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "workers", c.Workers, nil)
	}
	if c.SpendLookbackDays < 0 {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "spend_lookback_days", c.SpendLookbackDays, nil)
	}
	if c.SpendScoreFloor < 0 || c.SpendScoreFloor > 1 {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "spend_score_floor", c.SpendScoreFloor, nil)
	}
	return nil
}

// OutcomeStatus is the disposition of one transaction after matching
type OutcomeStatus string

const (
	// OutcomeAutoMatched means the top candidate cleared the auto cutoff
	// and the transaction was settled without review.
	OutcomeAutoMatched OutcomeStatus = "auto_matched"

	// OutcomeSuggested means a pending match was recorded for review.
	OutcomeSuggested OutcomeStatus = "suggested"

	// OutcomeUnmatched means no candidate qualified for settlement or
	// suggestion; an exception carries the transaction to the review queue.
	OutcomeUnmatched OutcomeStatus = "unmatched"

	// OutcomeAlreadyReconciled means the transaction was settled before
	// this evaluation ran. A benign no-op.
	OutcomeAlreadyReconciled OutcomeStatus = "already_reconciled"
)

// String returns the string representation of OutcomeStatus
func (s OutcomeStatus) String() string {
	return string(s)
}

// MatchOutcome is the result of evaluating one bank transaction
type MatchOutcome struct {
	Status      OutcomeStatus                     `json:"status"`
	Transaction *models.BankTransaction           `json:"transaction"`
	Match       *models.ReconciliationMatch       `json:"match,omitempty"`
	Candidates  []*matcher.Candidate              `json:"candidates,omitempty"`
	Exceptions  []*models.ReconciliationException `json:"exceptions,omitempty"`
}

// RecordRef names the document or ledger entry a reviewer links by hand
type RecordRef struct {
	Kind models.RecordKind `json:"kind"`
	ID   uuid.UUID         `json:"id"`
}

// Service coordinates matching, settlement, exceptions, thresholds, and
// notifications over a shared store.
type Service struct {
	store      store.Store
	finder     *matcher.Finder
	thresholds *thresholds.Manager
	exceptions *exceptions.Manager
	notifier   notify.Sender
	config     *Config
	logger     logger.Logger
}

// NewService creates a reconciliation service. The notifier may be nil, in
// which case notifications go to the structured log.
func NewService(
	engineStore store.Store,
	finder *matcher.Finder,
	thresholdManager *thresholds.Manager,
	exceptionManager *exceptions.Manager,
	notifier notify.Sender,
	config *Config,
) (*Service, error) {
	if engineStore == nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "store", nil, nil)
	}
	if finder == nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "finder", nil, nil)
	}
	if thresholdManager == nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "threshold_manager", nil, nil)
	}
	if exceptionManager == nil {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "exception_manager", nil, nil)
	}
	if notifier == nil {
		notifier = notify.NewLogSender()
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Service{
		store:      engineStore,
		finder:     finder,
		thresholds: thresholdManager,
		exceptions: exceptionManager,
		notifier:   notifier,
		config:     config,
		logger:     logger.GetGlobalLogger().WithComponent("reconciliation_service"),
	}, nil
}

// MatchTransaction evaluates a single bank transaction against the tenant's
// candidate records. A missing transaction surfaces store.ErrNotFound; an
// already settled one returns a benign OutcomeAlreadyReconciled.
func (s *Service) MatchTransaction(ctx context.Context, tenantID, txID uuid.UUID) (*MatchOutcome, error) {
	tx, err := s.store.GetTransaction(ctx, tenantID, txID)
	if err != nil {
		return nil, err
	}

	tenantThresholds, err := s.thresholds.GetThresholds(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return s.reconcileTransaction(ctx, tx, tenantThresholds)
}

// GetSummary reports the tenant's current reconciliation position
func (s *Service) GetSummary(ctx context.Context, tenantID uuid.UUID) (*models.ReconciliationSummary, error) {
	return s.store.BuildSummary(ctx, tenantID)
}

// reconcileTransaction runs the matching flow for one transaction: find
// candidates, classify the best one, and act on its tier. Both single and
// batch modes funnel through here.
func (s *Service) reconcileTransaction(ctx context.Context, tx *models.BankTransaction, tenantThresholds *models.MatchingThresholds) (*MatchOutcome, error) {
	if tx.Reconciled {
		return &MatchOutcome{Status: OutcomeAlreadyReconciled, Transaction: tx}, nil
	}

	candidates, err := s.finder.FindCandidates(ctx, tx, tenantThresholds)
	if err != nil {
		return nil, err
	}

	var outcome *MatchOutcome
	if len(candidates) == 0 {
		outcome = s.markUnmatched(ctx, tx, nil, "no qualifying candidates in the matching window")
	} else {
		best := candidates[0]
		switch best.Tier {
		case matcher.TierAuto:
			outcome, err = s.settleAuto(ctx, tx, best, candidates)
		case matcher.TierSuggest:
			outcome, err = s.suggest(ctx, tx, best, candidates)
		default:
			// Too weak to propose; the candidate context still reaches the
			// review queue through the exception description.
			reason := fmt.Sprintf("best candidate scored %.3f, below the suggestion cutoff %.2f",
				best.Confidence, tenantThresholds.SuggestMatch)
			outcome = s.markUnmatched(ctx, tx, candidates, reason)
		}
		if err != nil {
			return nil, err
		}
	}

	if outcome.Status != OutcomeAlreadyReconciled {
		if exc := s.checkUnusualSpend(ctx, tx); exc != nil {
			outcome.Exceptions = append(outcome.Exceptions, exc)
		}
	}

	return outcome, nil
}

// settleAuto persists the match and settles the transaction in one
// conditional write. Losing a settlement race to a concurrent run is benign.
func (s *Service) settleAuto(ctx context.Context, tx *models.BankTransaction, best *matcher.Candidate, candidates []*matcher.Candidate) (*MatchOutcome, error) {
	match, err := buildMatch(tx, best, models.MatchStatusMatched, true, models.SystemActor)
	if err != nil {
		return nil, err
	}

	if err := s.store.ConditionalReconcile(ctx, match); err != nil {
		if errors.Is(err, store.ErrAlreadyReconciled) {
			s.logger.WithFields(logger.Fields{
				"tenant_id":      tx.TenantID,
				"transaction_id": tx.ID,
			}).Debug("Transaction settled by a concurrent run")
			return &MatchOutcome{Status: OutcomeAlreadyReconciled, Transaction: tx}, nil
		}
		return nil, err
	}

	s.appendEvent(ctx, matchEvent(match, models.EventTypeMatched, models.SystemActor, strings.Join(best.Reasons, "; ")))

	s.logger.WithFields(logger.Fields{
		"tenant_id":      tx.TenantID,
		"transaction_id": tx.ID,
		"match_id":       match.ID,
		"record_kind":    best.Record.Kind,
		"confidence":     match.Confidence,
	}).Info("Transaction auto-matched")

	return &MatchOutcome{
		Status:      OutcomeAutoMatched,
		Transaction: tx,
		Match:       match,
		Candidates:  candidates,
	}, nil
}

// suggest records the best candidate as a pending match and opens a review
// exception typed after the dominant signal gap. Re-running matching while a
// proposal is pending returns the existing proposal instead of stacking a
// new one.
func (s *Service) suggest(ctx context.Context, tx *models.BankTransaction, best *matcher.Candidate, candidates []*matcher.Candidate) (*MatchOutcome, error) {
	pendingStatus := models.MatchStatusPending
	txID := tx.ID
	existing, err := s.store.ListMatches(ctx, tx.TenantID, store.MatchFilter{
		BankTransactionID: &txID,
		Status:            &pendingStatus,
		Limit:             1,
	})
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return &MatchOutcome{
			Status:      OutcomeSuggested,
			Transaction: tx,
			Match:       existing[0],
			Candidates:  candidates,
		}, nil
	}

	match, err := buildMatch(tx, best, models.MatchStatusPending, false, models.SystemActor)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateMatch(ctx, match); err != nil {
		return nil, err
	}

	outcome := &MatchOutcome{
		Status:      OutcomeSuggested,
		Transaction: tx,
		Match:       match,
		Candidates:  candidates,
	}

	excType := suggestionExceptionType(best)
	if !s.hasActiveException(ctx, tx.TenantID, tx.ID, excType) {
		matchID := match.ID
		docID, entryID := recordLinks(best.Record)
		exc, excErr := s.exceptions.Create(ctx, exceptions.CreateRequest{
			TenantID:          tx.TenantID,
			Type:              excType,
			BankTransactionID: &txID,
			DocumentID:        docID,
			LedgerEntryID:     entryID,
			MatchID:           &matchID,
			Description: fmt.Sprintf("Suggested %s match scored %.3f: %s",
				best.Record.Kind, best.Confidence, strings.Join(best.Reasons, "; ")),
		})
		if excErr != nil {
			s.logger.WithError(excErr).WithFields(logger.Fields{
				"tenant_id":      tx.TenantID,
				"transaction_id": tx.ID,
			}).Error("Failed to open review exception for suggestion")
		} else {
			outcome.Exceptions = append(outcome.Exceptions, exc)
		}
	}

	s.logger.WithFields(logger.Fields{
		"tenant_id":      tx.TenantID,
		"transaction_id": tx.ID,
		"match_id":       match.ID,
		"confidence":     match.Confidence,
	}).Info("Match suggested for review")

	return outcome, nil
}

// markUnmatched records the unmatched verdict and opens an unmatched
// exception unless one is already active for the transaction.
func (s *Service) markUnmatched(ctx context.Context, tx *models.BankTransaction, candidates []*matcher.Candidate, reason string) *MatchOutcome {
	s.appendEvent(ctx, txEvent(tx, models.EventTypeUnmatched, models.SystemActor, reason))

	outcome := &MatchOutcome{
		Status:      OutcomeUnmatched,
		Transaction: tx,
		Candidates:  candidates,
	}

	if s.hasActiveException(ctx, tx.TenantID, tx.ID, models.ExceptionTypeUnmatched) {
		return outcome
	}

	txID := tx.ID
	exc, err := s.exceptions.Create(ctx, exceptions.CreateRequest{
		TenantID:          tx.TenantID,
		Type:              models.ExceptionTypeUnmatched,
		BankTransactionID: &txID,
		Description: fmt.Sprintf("No match for %s %s booked %s: %s",
			tx.Amount.String(), tx.Currency, tx.BookedAt.Format("2006-01-02"), reason),
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id":      tx.TenantID,
			"transaction_id": tx.ID,
		}).Error("Failed to open unmatched exception")
		return outcome
	}

	outcome.Exceptions = append(outcome.Exceptions, exc)
	return outcome
}

// checkUnusualSpend scores the transaction against the account's recent
// spend history and opens an unusual_spend exception when it stands out.
// The heuristic is advisory: lookup or write failures are logged, never
// surfaced.
func (s *Service) checkUnusualSpend(ctx context.Context, tx *models.BankTransaction) *models.ReconciliationException {
	if s.config.SpendLookbackDays <= 0 {
		return nil
	}

	since := tx.BookedAt.AddDate(0, 0, -s.config.SpendLookbackDays)
	history, err := s.store.ListTransactionsSince(ctx, tx.TenantID, tx.AccountID, since)
	if err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id":      tx.TenantID,
			"transaction_id": tx.ID,
		}).Warn("Spend history lookup failed, skipping unusual-spend check")
		return nil
	}

	score := exceptions.ScoreUnusualSpend(tx, history)
	if score < s.config.SpendScoreFloor {
		return nil
	}
	if s.hasActiveException(ctx, tx.TenantID, tx.ID, models.ExceptionTypeUnusualSpend) {
		return nil
	}

	txID := tx.ID
	exc, err := s.exceptions.Create(ctx, exceptions.CreateRequest{
		TenantID:          tx.TenantID,
		Type:              models.ExceptionTypeUnusualSpend,
		BankTransactionID: &txID,
		Description: fmt.Sprintf("Spend of %s %s is far above this account's recent typical spend",
			tx.Amount.Abs().String(), tx.Currency),
		AnomalyScore: score,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id":      tx.TenantID,
			"transaction_id": tx.ID,
		}).Error("Failed to open unusual-spend exception")
		return nil
	}
	return exc
}

// hasActiveException reports whether a non-terminal exception of the given
// type already references the transaction. Lookup failures count as no,
// which at worst opens a redundant exception for a reviewer to dismiss.
func (s *Service) hasActiveException(ctx context.Context, tenantID, txID uuid.UUID, excType models.ExceptionType) bool {
	excs, err := s.store.ListExceptions(ctx, tenantID, store.ExceptionFilter{
		Type:              &excType,
		BankTransactionID: &txID,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id":      tenantID,
			"transaction_id": txID,
		}).Warn("Exception lookup failed")
		return false
	}
	for _, exc := range excs {
		if !exc.Status.IsTerminal() {
			return true
		}
	}
	return false
}

// suggestionExceptionType picks the review exception type from the signal
// that kept the candidate below the auto cutoff. Small gaps on both axes
// stay generic.
func suggestionExceptionType(c *matcher.Candidate) models.ExceptionType {
	const dominantGap = 0.25

	amountGap := 1 - c.Signals.Amount
	dateGap := 1 - c.Signals.Date

	switch {
	case amountGap >= dominantGap && amountGap >= dateGap:
		return models.ExceptionTypeAmountMismatch
	case dateGap >= dominantGap:
		return models.ExceptionTypeDateMismatch
	default:
		return models.ExceptionTypeUnmatched
	}
}

// buildMatch maps a scored candidate onto the persisted match row
func buildMatch(tx *models.BankTransaction, c *matcher.Candidate, status models.MatchStatus, autoMatched bool, matchedBy string) (*models.ReconciliationMatch, error) {
	signalsJSON, err := c.Signals.ToJSON()
	if err != nil {
		return nil, engineerrors.MatchingError(engineerrors.CodeMatchingFailed, "serialize match signals", err)
	}

	match := &models.ReconciliationMatch{
		ID:                uuid.New(),
		TenantID:          tx.TenantID,
		BankTransactionID: tx.ID,
		MatchType:         c.MatchType,
		Confidence:        c.Confidence,
		AmountDelta:       c.AmountDelta,
		DateDeltaDays:     c.DateDeltaDays,
		Status:            status,
		AutoMatched:       autoMatched,
		Signals:           signalsJSON,
		MatchedBy:         matchedBy,
	}

	docID, entryID := recordLinks(c.Record)
	match.DocumentID = docID
	match.LedgerEntryID = entryID

	return match, nil
}

// recordLinks splits a matchable record reference into the document and
// ledger entry id columns.
func recordLinks(rec *models.MatchableRecord) (*uuid.UUID, *uuid.UUID) {
	id := rec.ID
	switch rec.Kind {
	case models.RecordKindDocument:
		return &id, nil
	case models.RecordKindLedgerEntry:
		return nil, &id
	}
	return nil, nil
}

// matchEvent builds an audit event carrying the match context
func matchEvent(match *models.ReconciliationMatch, eventType models.EventType, actor, reason string) *models.ReconciliationEvent {
	event := models.NewEvent(match.TenantID, eventType, actor, reason)
	txID := match.BankTransactionID
	matchID := match.ID
	event.BankTransactionID = &txID
	event.MatchID = &matchID
	event.Confidence = match.Confidence
	event.Signals = match.Signals
	return event
}

// txEvent builds an audit event for a transaction-level verdict
func txEvent(tx *models.BankTransaction, eventType models.EventType, actor, reason string) *models.ReconciliationEvent {
	event := models.NewEvent(tx.TenantID, eventType, actor, reason)
	txID := tx.ID
	event.BankTransactionID = &txID
	return event
}

// appendEvent writes to the audit trail. The trail is secondary to the
// rows it describes; failures are logged, not returned.
func (s *Service) appendEvent(ctx context.Context, event *models.ReconciliationEvent) {
	if err := s.store.AppendEvent(ctx, event); err != nil {
		s.logger.WithError(err).WithFields(logger.Fields{
			"tenant_id":  event.TenantID,
			"event_type": event.EventType,
		}).Error("Failed to append event")
	}
}
