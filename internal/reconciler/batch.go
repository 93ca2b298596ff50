package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/exceptions"
	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/notify"
	"accounting-reconciliation-engine/internal/store"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
	"accounting-reconciliation-engine/pkg/logger"
)

// BatchResult summarizes one batch run for a tenant. Matched, Suggested,
// Unmatched, Failed, and Skipped partition Total; Exceptions counts the
// exception rows the run opened, including the duplicate sweep.
type BatchResult struct {
	TenantID   uuid.UUID     `json:"tenant_id"`
	Total      int           `json:"total"`
	Matched    int           `json:"matched"`
	Suggested  int           `json:"suggested"`
	Unmatched  int           `json:"unmatched"`
	Exceptions int           `json:"exceptions"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	StartedAt  time.Time     `json:"started_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

// ReconcileUnmatched processes the tenant's unreconciled backlog, newest
// bookings first, up to the configured batch limit. Safe to re-run: settled
// transactions are skipped as already matched, pending suggestions and
// active exceptions are not duplicated.
func (s *Service) ReconcileUnmatched(ctx context.Context, tenantID uuid.UUID) (*BatchResult, error) {
	return s.runBatch(ctx, tenantID, store.TransactionFilter{Limit: s.config.BatchLimit})
}

// ReconcileStatement reconciles one account over a statement period. The
// period is half-open: bookings on periodEnd belong to the next statement.
func (s *Service) ReconcileStatement(ctx context.Context, tenantID uuid.UUID, accountID string, periodStart, periodEnd time.Time) (*BatchResult, error) {
	if accountID == "" {
		return nil, engineerrors.ValidationError(engineerrors.CodeMissingField, "account_id", "", nil)
	}
	if !periodEnd.After(periodStart) {
		return nil, engineerrors.ValidationError(engineerrors.CodeInvalidData, "period",
			fmt.Sprintf("%s..%s", periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02")),
			fmt.Errorf("period end must be after period start"))
	}

	return s.runBatch(ctx, tenantID, store.TransactionFilter{
		AccountID: accountID,
		From:      periodStart,
		To:        periodEnd,
		Limit:     s.config.BatchLimit,
	})
}

// runBatch matches one page of transactions with a bounded worker pool.
// One transaction's failure never aborts the rest; cancellation skips the
// undispatched remainder and lets in-flight workers finish.
func (s *Service) runBatch(ctx context.Context, tenantID uuid.UUID, filter store.TransactionFilter) (*BatchResult, error) {
	startTime := time.Now()
	result := &BatchResult{TenantID: tenantID, StartedAt: startTime.UTC()}

	transactions, err := s.store.ListUnreconciledTransactions(ctx, tenantID, filter)
	if err != nil {
		return nil, err
	}
	result.Total = len(transactions)

	s.logger.WithFields(logger.Fields{
		"tenant_id":    tenantID,
		"transactions": result.Total,
		"workers":      s.config.Workers,
	}).Info("Starting reconciliation batch")

	// Thresholds are read once and shared across workers. Feedback landing
	// mid-batch applies from the next run.
	tenantThresholds, err := s.thresholds.GetThresholds(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	semaphore := make(chan struct{}, s.config.Workers)

	for _, tx := range transactions {
		if ctx.Err() != nil {
			mu.Lock()
			result.Skipped++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(tx *models.BankTransaction) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			outcome, err := s.reconcileTransaction(ctx, tx, tenantThresholds)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				s.logger.WithError(err).WithFields(logger.Fields{
					"tenant_id":      tenantID,
					"transaction_id": tx.ID,
				}).Error("Transaction failed to reconcile")
				return
			}
			switch outcome.Status {
			case OutcomeAutoMatched, OutcomeAlreadyReconciled:
				result.Matched++
			case OutcomeSuggested:
				result.Suggested++
			case OutcomeUnmatched:
				result.Unmatched++
			}
			result.Exceptions += len(outcome.Exceptions)
		}(tx)
	}

	wg.Wait()

	if ctx.Err() == nil {
		result.Exceptions += s.flagDuplicates(ctx, tenantID, transactions)
	}

	result.Elapsed = time.Since(startTime)

	s.notifyBatch(ctx, tenantID, result)

	s.logger.WithFields(logger.Fields{
		"tenant_id":  tenantID,
		"total":      result.Total,
		"matched":    result.Matched,
		"suggested":  result.Suggested,
		"unmatched":  result.Unmatched,
		"exceptions": result.Exceptions,
		"failed":     result.Failed,
		"skipped":    result.Skipped,
		"elapsed":    result.Elapsed.String(),
	}).Info("Reconciliation batch complete")

	return result, nil
}

// flagDuplicates sweeps the batch for repeated charges and opens one
// duplicate exception per group, anchored on the group's first transaction.
// Returns the number of exceptions opened.
func (s *Service) flagDuplicates(ctx context.Context, tenantID uuid.UUID, transactions []*models.BankTransaction) int {
	opened := 0
	for _, group := range exceptions.DetectDuplicates(transactions) {
		anchor := group.Transactions[0]
		if s.hasActiveException(ctx, tenantID, anchor.ID, models.ExceptionTypeDuplicate) {
			continue
		}

		anchorID := anchor.ID
		if _, err := s.exceptions.Create(ctx, exceptions.CreateRequest{
			TenantID:          tenantID,
			Type:              models.ExceptionTypeDuplicate,
			BankTransactionID: &anchorID,
			Description:       group.Reason,
			AnomalyScore:      group.Confidence,
		}); err != nil {
			s.logger.WithError(err).WithFields(logger.Fields{
				"tenant_id":      tenantID,
				"transaction_id": anchor.ID,
			}).Error("Failed to open duplicate exception")
			continue
		}
		opened++
	}
	return opened
}

// notifyBatch reports the batch summary through the notification sender.
// Delivery failures never fail the batch.
func (s *Service) notifyBatch(ctx context.Context, tenantID uuid.UUID, result *BatchResult) {
	variables := notify.Variables{
		"matched":    result.Matched,
		"suggested":  result.Suggested,
		"unmatched":  result.Unmatched,
		"exceptions": result.Exceptions,
	}
	if _, err := s.notifier.Notify(ctx, tenantID, notify.TemplateBatchSummary, variables, s.config.NotifyChannels); err != nil {
		s.logger.WithError(err).WithField("tenant_id", tenantID).Warn("Batch summary notification failed")
	}
}
