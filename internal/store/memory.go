package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"accounting-reconciliation-engine/internal/models"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs unit tests and
// one-shot CLI runs against seeded fixtures, and mirrors the PostgreSQL
// store's semantics: tenant scoping, sentinel errors, and an atomic
// ConditionalReconcile.
//
// Candidate lookups use day-keyed indexes so window queries scan only the
// days inside the window instead of every record.
type MemoryStore struct {
	mu sync.RWMutex

	transactions map[uuid.UUID]*models.BankTransaction
	documents    map[uuid.UUID]*models.Document
	entries      map[uuid.UUID]*models.LedgerEntry
	matches      map[uuid.UUID]*models.ReconciliationMatch
	exceptions   map[uuid.UUID]*models.ReconciliationException
	thresholds   map[uuid.UUID]*models.MatchingThresholds
	events       []*models.ReconciliationEvent

	// Insertion order per entity kind, for stable paging.
	txOrder    []uuid.UUID
	matchOrder []uuid.UUID
	excOrder   []uuid.UUID

	// Day-keyed candidate indexes: tenant -> YYYY-MM-DD -> records.
	docsByDay    map[uuid.UUID]map[string][]*models.Document
	entriesByDay map[uuid.UUID]map[string][]*models.LedgerEntry
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[uuid.UUID]*models.BankTransaction),
		documents:    make(map[uuid.UUID]*models.Document),
		entries:      make(map[uuid.UUID]*models.LedgerEntry),
		matches:      make(map[uuid.UUID]*models.ReconciliationMatch),
		exceptions:   make(map[uuid.UUID]*models.ReconciliationException),
		thresholds:   make(map[uuid.UUID]*models.MatchingThresholds),
		docsByDay:    make(map[uuid.UUID]map[string][]*models.Document),
		entriesByDay: make(map[uuid.UUID]map[string][]*models.LedgerEntry),
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// CreateTransaction stores a copy of the transaction.
func (s *MemoryStore) CreateTransaction(ctx context.Context, tx *models.BankTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTransactionLocked(tx)
}

// CreateTransactions stores copies of all transactions.
func (s *MemoryStore) CreateTransactions(ctx context.Context, txs []*models.BankTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tx := range txs {
		if err := s.createTransactionLocked(tx); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) createTransactionLocked(tx *models.BankTransaction) error {
	cp := *tx
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.transactions[cp.ID] = &cp
	s.txOrder = append(s.txOrder, cp.ID)
	tx.ID = cp.ID
	return nil
}

// GetTransaction returns a copy of the transaction or ErrNotFound.
func (s *MemoryStore) GetTransaction(ctx context.Context, tenantID, id uuid.UUID) (*models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok || tx.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

// ListUnreconciledTransactions pages unreconciled transactions newest
// booking first.
func (s *MemoryStore) ListUnreconciledTransactions(ctx context.Context, tenantID uuid.UUID, filter TransactionFilter) ([]*models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.BankTransaction
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if tx.TenantID != tenantID || tx.Reconciled {
			continue
		}
		if filter.AccountID != "" && tx.AccountID != filter.AccountID {
			continue
		}
		if !filter.From.IsZero() && tx.BookedAt.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !tx.BookedAt.Before(filter.To) {
			continue
		}
		matched = append(matched, tx)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].BookedAt.After(matched[j].BookedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	result := make([]*models.BankTransaction, 0, len(matched))
	for _, tx := range matched {
		cp := *tx
		result = append(result, &cp)
	}
	return result, nil
}

// ListTransactionsSince returns transactions booked at or after the given
// time, newest first.
func (s *MemoryStore) ListTransactionsSince(ctx context.Context, tenantID uuid.UUID, accountID string, since time.Time) ([]*models.BankTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.BankTransaction
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if tx.TenantID != tenantID || tx.BookedAt.Before(since) {
			continue
		}
		if accountID != "" && tx.AccountID != accountID {
			continue
		}
		cp := *tx
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].BookedAt.After(result[j].BookedAt)
	})
	return result, nil
}

// ConditionalReconcile settles a transaction under a single lock hold: the
// match row, the transaction flags, and the matched record all change
// together, or nothing does. Returns ErrAlreadyReconciled when a previous
// call won the race.
func (s *MemoryStore) ConditionalReconcile(ctx context.Context, match *models.ReconciliationMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[match.BankTransactionID]
	if !ok || tx.TenantID != match.TenantID {
		return ErrNotFound
	}
	if tx.Reconciled {
		return ErrAlreadyReconciled
	}

	// Locate the matched record before writing anything.
	var doc *models.Document
	var entry *models.LedgerEntry
	if match.DocumentID != nil {
		doc, ok = s.documents[*match.DocumentID]
		if !ok || doc.TenantID != match.TenantID {
			return ErrNotFound
		}
	}
	if match.LedgerEntryID != nil {
		entry, ok = s.entries[*match.LedgerEntryID]
		if !ok || entry.TenantID != match.TenantID {
			return ErrNotFound
		}
	}

	now := time.Now().UTC()

	cp := *match
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if existing, exists := s.matches[cp.ID]; exists {
		cp.CreatedAt = existing.CreatedAt
	} else {
		s.matchOrder = append(s.matchOrder, cp.ID)
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = now
		}
	}
	cp.UpdatedAt = now
	s.matches[cp.ID] = &cp
	match.ID = cp.ID

	tx.Reconciled = true
	tx.MatchedDocumentID = match.DocumentID
	tx.MatchedEntryID = match.LedgerEntryID
	tx.UpdatedAt = now

	if doc != nil {
		doc.Reconciled = true
		doc.Status = models.DocumentStatusPosted
		doc.UpdatedAt = now
	}
	if entry != nil {
		entry.Reconciled = true
		txID := match.BankTransactionID
		entry.BankTransactionID = &txID
		entry.UpdatedAt = now
	}
	return nil
}

// CreateDocument stores a copy of the document and indexes it by issue day.
func (s *MemoryStore) CreateDocument(ctx context.Context, doc *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createDocumentLocked(doc)
}

// CreateDocuments stores copies of all documents.
func (s *MemoryStore) CreateDocuments(ctx context.Context, docs []*models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range docs {
		if err := s.createDocumentLocked(doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) createDocumentLocked(doc *models.Document) error {
	cp := *doc
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.documents[cp.ID] = &cp

	byDay, ok := s.docsByDay[cp.TenantID]
	if !ok {
		byDay = make(map[string][]*models.Document)
		s.docsByDay[cp.TenantID] = byDay
	}
	key := dayKey(cp.IssuedAt)
	byDay[key] = append(byDay[key], &cp)

	doc.ID = cp.ID
	return nil
}

// GetDocument returns a copy of the document or ErrNotFound.
func (s *MemoryStore) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok || doc.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *doc
	return &cp, nil
}

// CreateLedgerEntry stores a copy of the entry and indexes it by posting day.
func (s *MemoryStore) CreateLedgerEntry(ctx context.Context, entry *models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLedgerEntryLocked(entry)
}

// CreateLedgerEntries stores copies of all entries.
func (s *MemoryStore) CreateLedgerEntries(ctx context.Context, entries []*models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		if err := s.createLedgerEntryLocked(entry); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemoryStore) createLedgerEntryLocked(entry *models.LedgerEntry) error {
	cp := *entry
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.entries[cp.ID] = &cp

	byDay, ok := s.entriesByDay[cp.TenantID]
	if !ok {
		byDay = make(map[string][]*models.LedgerEntry)
		s.entriesByDay[cp.TenantID] = byDay
	}
	key := dayKey(cp.PostedAt)
	byDay[key] = append(byDay[key], &cp)

	entry.ID = cp.ID
	return nil
}

// GetLedgerEntry returns a copy of the entry or ErrNotFound.
func (s *MemoryStore) GetLedgerEntry(ctx context.Context, tenantID, id uuid.UUID) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok || entry.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

// FindCandidateDocuments returns unreconciled documents inside the window,
// walking only the indexed days the window covers.
func (s *MemoryStore) FindCandidateDocuments(ctx context.Context, tenantID uuid.UUID, minAmount, maxAmount decimal.Decimal, from, to time.Time) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := s.docsByDay[tenantID]
	if byDay == nil {
		return nil, nil
	}

	var result []*models.Document
	for day := models.DayOf(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, doc := range byDay[dayKey(day)] {
			if doc.Reconciled {
				continue
			}
			abs := doc.Total.Abs()
			if abs.LessThan(minAmount) || abs.GreaterThan(maxAmount) {
				continue
			}
			cp := *doc
			result = append(result, &cp)
		}
	}
	return result, nil
}

// FindCandidateLedgerEntries returns unreconciled ledger entries inside the
// window, walking only the indexed days the window covers.
func (s *MemoryStore) FindCandidateLedgerEntries(ctx context.Context, tenantID uuid.UUID, minAmount, maxAmount decimal.Decimal, from, to time.Time) ([]*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byDay := s.entriesByDay[tenantID]
	if byDay == nil {
		return nil, nil
	}

	var result []*models.LedgerEntry
	for day := models.DayOf(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		for _, entry := range byDay[dayKey(day)] {
			if entry.Reconciled {
				continue
			}
			abs := entry.Amount.Abs()
			if abs.LessThan(minAmount) || abs.GreaterThan(maxAmount) {
				continue
			}
			cp := *entry
			result = append(result, &cp)
		}
	}
	return result, nil
}

// CreateMatch stores a copy of the match.
func (s *MemoryStore) CreateMatch(ctx context.Context, match *models.ReconciliationMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *match
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.matches[cp.ID] = &cp
	s.matchOrder = append(s.matchOrder, cp.ID)
	match.ID = cp.ID
	return nil
}

// GetMatch returns a copy of the match or ErrNotFound.
func (s *MemoryStore) GetMatch(ctx context.Context, tenantID, id uuid.UUID) (*models.ReconciliationMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	match, ok := s.matches[id]
	if !ok || match.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *match
	return &cp, nil
}

// UpdateMatch replaces a stored match.
func (s *MemoryStore) UpdateMatch(ctx context.Context, match *models.ReconciliationMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.matches[match.ID]
	if !ok || existing.TenantID != match.TenantID {
		return ErrNotFound
	}

	cp := *match
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.matches[cp.ID] = &cp
	return nil
}

// ListMatches returns matches in insertion order, narrowed by the filter.
func (s *MemoryStore) ListMatches(ctx context.Context, tenantID uuid.UUID, filter MatchFilter) ([]*models.ReconciliationMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.ReconciliationMatch
	skipped := 0
	for _, id := range s.matchOrder {
		match := s.matches[id]
		if match.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && match.Status != *filter.Status {
			continue
		}
		if filter.BankTransactionID != nil && match.BankTransactionID != *filter.BankTransactionID {
			continue
		}
		if filter.AutoMatched != nil && match.AutoMatched != *filter.AutoMatched {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		cp := *match
		result = append(result, &cp)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// CreateException stores a copy of the exception.
func (s *MemoryStore) CreateException(ctx context.Context, exc *models.ReconciliationException) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *exc
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	now := time.Now().UTC()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now

	s.exceptions[cp.ID] = &cp
	s.excOrder = append(s.excOrder, cp.ID)
	exc.ID = cp.ID
	return nil
}

// GetException returns a copy of the exception or ErrNotFound.
func (s *MemoryStore) GetException(ctx context.Context, tenantID, id uuid.UUID) (*models.ReconciliationException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exc, ok := s.exceptions[id]
	if !ok || exc.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *exc
	return &cp, nil
}

// UpdateException replaces a stored exception.
func (s *MemoryStore) UpdateException(ctx context.Context, exc *models.ReconciliationException) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.exceptions[exc.ID]
	if !ok || existing.TenantID != exc.TenantID {
		return ErrNotFound
	}

	cp := *exc
	cp.CreatedAt = existing.CreatedAt
	cp.UpdatedAt = time.Now().UTC()
	s.exceptions[cp.ID] = &cp
	return nil
}

// ListExceptions returns exceptions in insertion order, narrowed by the
// filter.
// ListExceptions returns the review queue ordered by severity rank, most
// urgent first, then by recency within a severity.
func (s *MemoryStore) ListExceptions(ctx context.Context, tenantID uuid.UUID, filter ExceptionFilter) ([]*models.ReconciliationException, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.ReconciliationException
	for _, id := range s.excOrder {
		exc := s.exceptions[id]
		if exc.TenantID != tenantID {
			continue
		}
		if filter.Status != nil && exc.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && exc.Type != *filter.Type {
			continue
		}
		if filter.Severity != nil && exc.Severity != *filter.Severity {
			continue
		}
		if filter.AssignedTo != nil && (exc.AssignedTo == nil || *exc.AssignedTo != *filter.AssignedTo) {
			continue
		}
		if filter.BankTransactionID != nil && (exc.BankTransactionID == nil || *exc.BankTransactionID != *filter.BankTransactionID) {
			continue
		}
		matched = append(matched, exc)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Severity.Rank() != matched[j].Severity.Rank() {
			return matched[i].Severity.Rank() > matched[j].Severity.Rank()
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	result := make([]*models.ReconciliationException, 0, len(matched))
	for _, exc := range matched {
		cp := *exc
		result = append(result, &cp)
	}
	return result, nil
}

// GetThresholds returns the tenant's thresholds or ErrNotFound.
func (s *MemoryStore) GetThresholds(ctx context.Context, tenantID uuid.UUID) (*models.MatchingThresholds, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	thresholds, ok := s.thresholds[tenantID]
	if !ok {
		return nil, ErrNotFound
	}
	return thresholds.Clone(), nil
}

// SaveThresholds inserts or replaces the tenant's thresholds.
func (s *MemoryStore) SaveThresholds(ctx context.Context, thresholds *models.MatchingThresholds) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := thresholds.Clone()
	cp.UpdatedAt = time.Now().UTC()
	s.thresholds[cp.TenantID] = cp
	return nil
}

// AppendEvent appends a copy of the event to the audit trail.
func (s *MemoryStore) AppendEvent(ctx context.Context, event *models.ReconciliationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	s.events = append(s.events, &cp)
	event.ID = cp.ID
	return nil
}

// ListEvents returns events in append order, narrowed by the filter.
func (s *MemoryStore) ListEvents(ctx context.Context, tenantID uuid.UUID, filter EventFilter) ([]*models.ReconciliationEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.ReconciliationEvent
	skipped := 0
	for _, event := range s.events {
		if event.TenantID != tenantID {
			continue
		}
		if filter.BankTransactionID != nil && (event.BankTransactionID == nil || *event.BankTransactionID != *filter.BankTransactionID) {
			continue
		}
		if filter.Type != nil && event.EventType != *filter.Type {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		cp := *event
		result = append(result, &cp)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// BuildSummary computes the tenant's reconciliation health rollup from the
// stored rows.
func (s *MemoryStore) BuildSummary(ctx context.Context, tenantID uuid.UUID) (*models.ReconciliationSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := &models.ReconciliationSummary{
		TenantID:    tenantID,
		GeneratedAt: time.Now().UTC(),
	}

	var reconcileHours float64
	for _, id := range s.txOrder {
		tx := s.transactions[id]
		if tx.TenantID != tenantID {
			continue
		}
		summary.TotalTransactions++
		if tx.Reconciled {
			summary.ReconciledTransactions++
			reconcileHours += tx.UpdatedAt.Sub(tx.CreatedAt).Hours()
		}
	}
	if summary.ReconciledTransactions > 0 {
		summary.AvgTimeToReconcileHours = reconcileHours / float64(summary.ReconciledTransactions)
	}

	var autoMatched int64
	for _, id := range s.matchOrder {
		match := s.matches[id]
		if match.TenantID != tenantID {
			continue
		}
		if match.Status == models.MatchStatusMatched && match.AutoMatched {
			autoMatched++
		}
	}
	if summary.ReconciledTransactions > 0 {
		summary.AutoMatchRate = float64(autoMatched) / float64(summary.ReconciledTransactions)
	}

	for _, id := range s.excOrder {
		exc := s.exceptions[id]
		if exc.TenantID != tenantID || exc.Status.IsTerminal() {
			continue
		}
		summary.OpenExceptions++
		if exc.Severity == models.SeverityCritical {
			summary.CriticalExceptions++
		}
	}

	return summary, nil
}

// Reset drops every stored row. Test helper.
func (s *MemoryStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = make(map[uuid.UUID]*models.BankTransaction)
	s.documents = make(map[uuid.UUID]*models.Document)
	s.entries = make(map[uuid.UUID]*models.LedgerEntry)
	s.matches = make(map[uuid.UUID]*models.ReconciliationMatch)
	s.exceptions = make(map[uuid.UUID]*models.ReconciliationException)
	s.thresholds = make(map[uuid.UUID]*models.MatchingThresholds)
	s.events = nil
	s.txOrder = nil
	s.matchOrder = nil
	s.excOrder = nil
	s.docsByDay = make(map[uuid.UUID]map[string][]*models.Document)
	s.entriesByDay = make(map[uuid.UUID]map[string][]*models.LedgerEntry)
}
