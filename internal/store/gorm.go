package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"accounting-reconciliation-engine/internal/models"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

// GormStore is the PostgreSQL-backed Store.
type GormStore struct {
	db *gorm.DB
}

var _ Store = (*GormStore)(nil)

// Open connects to PostgreSQL. Timestamps are generated in UTC so rows sort
// consistently across app servers in different zones.
func Open(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, engineerrors.StoreError(engineerrors.CodeStoreUnavailable, "open database", err)
	}
	return &GormStore{db: db}, nil
}

// AutoMigrate creates or updates the engine's tables.
func (s *GormStore) AutoMigrate() error {
	err := s.db.AutoMigrate(
		&models.BankTransaction{},
		&models.Document{},
		&models.LedgerEntry{},
		&models.ReconciliationMatch{},
		&models.ReconciliationException{},
		&models.MatchingThresholds{},
		&models.ReconciliationEvent{},
	)
	if err != nil {
		return engineerrors.StoreError(engineerrors.CodeMigrationFailed, "migrate schema", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return engineerrors.StoreError(engineerrors.CodeStoreUnavailable, "ping database", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return engineerrors.StoreError(engineerrors.CodeStoreUnavailable, "ping database", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps GORM's not-found to the store sentinel and wraps everything
// else as a store error.
func translate(code engineerrors.ErrorCode, operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return engineerrors.StoreError(code, operation, err)
}

func (s *GormStore) CreateTransaction(ctx context.Context, tx *models.BankTransaction) error {
	err := s.db.WithContext(ctx).Create(tx).Error
	return translate(engineerrors.CodeWriteFailed, "create transaction", err)
}

func (s *GormStore) CreateTransactions(ctx context.Context, txs []*models.BankTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).CreateInBatches(txs, 500).Error
	return translate(engineerrors.CodeWriteFailed, "create transactions", err)
}

func (s *GormStore) GetTransaction(ctx context.Context, tenantID, id uuid.UUID) (*models.BankTransaction, error) {
	var tx models.BankTransaction
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&tx).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "get transaction", err)
	}
	return &tx, nil
}

func (s *GormStore) ListUnreconciledTransactions(ctx context.Context, tenantID uuid.UUID, filter TransactionFilter) ([]*models.BankTransaction, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND reconciled = false", tenantID).
		Order("booked_at DESC, id ASC")
	if filter.AccountID != "" {
		query = query.Where("account_id = ?", filter.AccountID)
	}
	if !filter.From.IsZero() {
		query = query.Where("booked_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("booked_at < ?", filter.To)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var txs []*models.BankTransaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "list unreconciled transactions", err)
	}
	return txs, nil
}

func (s *GormStore) ListTransactionsSince(ctx context.Context, tenantID uuid.UUID, accountID string, since time.Time) ([]*models.BankTransaction, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ? AND booked_at >= ?", tenantID, since).
		Order("booked_at DESC, id ASC")
	if accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}

	var txs []*models.BankTransaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "list transactions since", err)
	}
	return txs, nil
}

// ConditionalReconcile settles a transaction inside one database
// transaction. The reconciled flip is a guarded UPDATE whose WHERE clause
// carries the reconciled = false check, so two concurrent calls cannot
// both win; the loser sees zero rows affected and everything rolls back.
// Only after winning does the call upsert the match row and flip the
// matched record.
func (s *GormStore) ConditionalReconcile(ctx context.Context, match *models.ReconciliationMatch) error {
	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		result := dbtx.Model(&models.BankTransaction{}).
			Where("tenant_id = ? AND id = ? AND reconciled = false", match.TenantID, match.BankTransactionID).
			Updates(map[string]interface{}{
				"reconciled":          true,
				"matched_document_id": match.DocumentID,
				"matched_entry_id":    match.LedgerEntryID,
				"updated_at":          now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			err := dbtx.Model(&models.BankTransaction{}).
				Where("tenant_id = ? AND id = ?", match.TenantID, match.BankTransactionID).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count == 0 {
				return ErrNotFound
			}
			return ErrAlreadyReconciled
		}

		if match.CreatedAt.IsZero() {
			match.CreatedAt = now
		}
		match.UpdatedAt = now
		err := dbtx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(match).Error
		if err != nil {
			return err
		}

		if match.DocumentID != nil {
			result := dbtx.Model(&models.Document{}).
				Where("tenant_id = ? AND id = ?", match.TenantID, *match.DocumentID).
				Updates(map[string]interface{}{
					"reconciled": true,
					"status":     models.DocumentStatusPosted,
					"updated_at": now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		if match.LedgerEntryID != nil {
			result := dbtx.Model(&models.LedgerEntry{}).
				Where("tenant_id = ? AND id = ?", match.TenantID, *match.LedgerEntryID).
				Updates(map[string]interface{}{
					"reconciled":          true,
					"bank_transaction_id": match.BankTransactionID,
					"updated_at":          now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return ErrNotFound
			}
		}
		return nil
	})

	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyReconciled) {
		return err
	}
	return translate(engineerrors.CodeWriteFailed, "conditional reconcile", err)
}

func (s *GormStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	err := s.db.WithContext(ctx).Create(doc).Error
	return translate(engineerrors.CodeWriteFailed, "create document", err)
}

func (s *GormStore) CreateDocuments(ctx context.Context, docs []*models.Document) error {
	if len(docs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).CreateInBatches(docs, 500).Error
	return translate(engineerrors.CodeWriteFailed, "create documents", err)
}

func (s *GormStore) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&doc).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "get document", err)
	}
	return &doc, nil
}

func (s *GormStore) CreateLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	err := s.db.WithContext(ctx).Create(entry).Error
	return translate(engineerrors.CodeWriteFailed, "create ledger entry", err)
}

func (s *GormStore) CreateLedgerEntries(ctx context.Context, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).CreateInBatches(entries, 500).Error
	return translate(engineerrors.CodeWriteFailed, "create ledger entries", err)
}

func (s *GormStore) GetLedgerEntry(ctx context.Context, tenantID, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&entry).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "get ledger entry", err)
	}
	return &entry, nil
}

func (s *GormStore) FindCandidateDocuments(ctx context.Context, tenantID uuid.UUID, minAmount, maxAmount decimal.Decimal, from, to time.Time) ([]*models.Document, error) {
	var docs []*models.Document
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND reconciled = false", tenantID).
		Where("ABS(total) BETWEEN ? AND ?", minAmount, maxAmount).
		Where("issued_at >= ? AND issued_at < ?", from, to).
		Order("issued_at ASC, id ASC").
		Find(&docs).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "find candidate documents", err)
	}
	return docs, nil
}

func (s *GormStore) FindCandidateLedgerEntries(ctx context.Context, tenantID uuid.UUID, minAmount, maxAmount decimal.Decimal, from, to time.Time) ([]*models.LedgerEntry, error) {
	var entries []*models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND reconciled = false", tenantID).
		Where("ABS(amount) BETWEEN ? AND ?", minAmount, maxAmount).
		Where("posted_at >= ? AND posted_at < ?", from, to).
		Order("posted_at ASC, id ASC").
		Find(&entries).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "find candidate ledger entries", err)
	}
	return entries, nil
}

func (s *GormStore) CreateMatch(ctx context.Context, match *models.ReconciliationMatch) error {
	err := s.db.WithContext(ctx).Create(match).Error
	return translate(engineerrors.CodeWriteFailed, "create match", err)
}

func (s *GormStore) GetMatch(ctx context.Context, tenantID, id uuid.UUID) (*models.ReconciliationMatch, error) {
	var match models.ReconciliationMatch
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&match).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "get match", err)
	}
	return &match, nil
}

func (s *GormStore) UpdateMatch(ctx context.Context, match *models.ReconciliationMatch) error {
	result := s.db.WithContext(ctx).Model(&models.ReconciliationMatch{}).
		Where("tenant_id = ? AND id = ?", match.TenantID, match.ID).
		Select("*").Omit("id", "tenant_id", "created_at").
		Updates(match)
	if result.Error != nil {
		return engineerrors.StoreError(engineerrors.CodeWriteFailed, "update match", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListMatches(ctx context.Context, tenantID uuid.UUID, filter MatchFilter) ([]*models.ReconciliationMatch, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC, id ASC")
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.BankTransactionID != nil {
		query = query.Where("bank_transaction_id = ?", *filter.BankTransactionID)
	}
	if filter.AutoMatched != nil {
		query = query.Where("auto_matched = ?", *filter.AutoMatched)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var matches []*models.ReconciliationMatch
	if err := query.Find(&matches).Error; err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "list matches", err)
	}
	return matches, nil
}

func (s *GormStore) CreateException(ctx context.Context, exc *models.ReconciliationException) error {
	err := s.db.WithContext(ctx).Create(exc).Error
	return translate(engineerrors.CodeWriteFailed, "create exception", err)
}

func (s *GormStore) GetException(ctx context.Context, tenantID, id uuid.UUID) (*models.ReconciliationException, error) {
	var exc models.ReconciliationException
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&exc).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "get exception", err)
	}
	return &exc, nil
}

func (s *GormStore) UpdateException(ctx context.Context, exc *models.ReconciliationException) error {
	result := s.db.WithContext(ctx).Model(&models.ReconciliationException{}).
		Where("tenant_id = ? AND id = ?", exc.TenantID, exc.ID).
		Select("*").Omit("id", "tenant_id", "created_at").
		Updates(exc)
	if result.Error != nil {
		return engineerrors.StoreError(engineerrors.CodeWriteFailed, "update exception", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExceptions returns the review queue ordered by severity rank, most
// urgent first, then by recency within a severity.
func (s *GormStore) ListExceptions(ctx context.Context, tenantID uuid.UUID, filter ExceptionFilter) ([]*models.ReconciliationException, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("CASE severity WHEN 'critical' THEN 4 WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END DESC").
		Order("created_at DESC, id ASC")
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Type != nil {
		query = query.Where("type = ?", *filter.Type)
	}
	if filter.Severity != nil {
		query = query.Where("severity = ?", *filter.Severity)
	}
	if filter.AssignedTo != nil {
		query = query.Where("assigned_to = ?", *filter.AssignedTo)
	}
	if filter.BankTransactionID != nil {
		query = query.Where("bank_transaction_id = ?", *filter.BankTransactionID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var excs []*models.ReconciliationException
	if err := query.Find(&excs).Error; err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "list exceptions", err)
	}
	return excs, nil
}

func (s *GormStore) GetThresholds(ctx context.Context, tenantID uuid.UUID) (*models.MatchingThresholds, error) {
	var thresholds models.MatchingThresholds
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		First(&thresholds).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "get thresholds", err)
	}
	return &thresholds, nil
}

// SaveThresholds upserts on the tenant ID, so first-time tuning and later
// learner updates go through the same call.
func (s *GormStore) SaveThresholds(ctx context.Context, thresholds *models.MatchingThresholds) error {
	thresholds.UpdatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(thresholds).Error
	return translate(engineerrors.CodeWriteFailed, "save thresholds", err)
}

func (s *GormStore) AppendEvent(ctx context.Context, event *models.ReconciliationEvent) error {
	err := s.db.WithContext(ctx).Create(event).Error
	return translate(engineerrors.CodeWriteFailed, "append event", err)
}

func (s *GormStore) ListEvents(ctx context.Context, tenantID uuid.UUID, filter EventFilter) ([]*models.ReconciliationEvent, error) {
	query := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at ASC, id ASC")
	if filter.BankTransactionID != nil {
		query = query.Where("bank_transaction_id = ?", *filter.BankTransactionID)
	}
	if filter.Type != nil {
		query = query.Where("event_type = ?", *filter.Type)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var events []*models.ReconciliationEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "list events", err)
	}
	return events, nil
}

func (s *GormStore) BuildSummary(ctx context.Context, tenantID uuid.UUID) (*models.ReconciliationSummary, error) {
	summary := &models.ReconciliationSummary{
		TenantID:    tenantID,
		GeneratedAt: time.Now().UTC(),
	}

	db := s.db.WithContext(ctx)

	err := db.Model(&models.BankTransaction{}).
		Where("tenant_id = ?", tenantID).
		Count(&summary.TotalTransactions).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "summary transaction count", err)
	}

	err = db.Model(&models.BankTransaction{}).
		Where("tenant_id = ? AND reconciled = true", tenantID).
		Count(&summary.ReconciledTransactions).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "summary reconciled count", err)
	}

	if summary.ReconciledTransactions > 0 {
		row := db.Model(&models.BankTransaction{}).
			Where("tenant_id = ? AND reconciled = true", tenantID).
			Select("COALESCE(AVG(EXTRACT(EPOCH FROM (updated_at - created_at)) / 3600.0), 0)").
			Row()
		if err := row.Scan(&summary.AvgTimeToReconcileHours); err != nil {
			return nil, translate(engineerrors.CodeQueryFailed, "summary reconcile time", err)
		}

		var autoMatched int64
		err = db.Model(&models.ReconciliationMatch{}).
			Where("tenant_id = ? AND status = ? AND auto_matched = true", tenantID, models.MatchStatusMatched).
			Count(&autoMatched).Error
		if err != nil {
			return nil, translate(engineerrors.CodeQueryFailed, "summary auto-match count", err)
		}
		summary.AutoMatchRate = float64(autoMatched) / float64(summary.ReconciledTransactions)
	}

	openStatuses := []models.ExceptionStatus{models.ExceptionStatusOpen, models.ExceptionStatusInProgress}

	err = db.Model(&models.ReconciliationException{}).
		Where("tenant_id = ? AND status IN ?", tenantID, openStatuses).
		Count(&summary.OpenExceptions).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "summary open exceptions", err)
	}

	err = db.Model(&models.ReconciliationException{}).
		Where("tenant_id = ? AND status IN ? AND severity = ?", tenantID, openStatuses, models.SeverityCritical).
		Count(&summary.CriticalExceptions).Error
	if err != nil {
		return nil, translate(engineerrors.CodeQueryFailed, "summary critical exceptions", err)
	}

	return summary, nil
}
