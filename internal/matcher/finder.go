package matcher

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"accounting-reconciliation-engine/internal/models"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

// RecordSource supplies unreconciled documents and ledger entries inside a
// tenant, amount band, and date window. Amounts are compared by magnitude
// with both bounds inclusive; the date window runs from inclusive to
// exclusive so it covers whole calendar days.
type RecordSource interface {
	FindCandidateDocuments(ctx context.Context, tenantID uuid.UUID, minAmount, maxAmount decimal.Decimal, from, to time.Time) ([]*models.Document, error)
	FindCandidateLedgerEntries(ctx context.Context, tenantID uuid.UUID, minAmount, maxAmount decimal.Decimal, from, to time.Time) ([]*models.LedgerEntry, error)
}

// Finder discovers and ranks match candidates for bank transactions.
type Finder struct {
	source RecordSource
	engine *Engine
}

// NewFinder creates a finder that pulls candidates from the given source and
// scores them with the given engine.
func NewFinder(source RecordSource, engine *Engine) *Finder {
	if engine == nil {
		engine = NewEngine(nil)
	}
	return &Finder{
		source: source,
		engine: engine,
	}
}

// FindCandidates returns every record near the transaction that scores at or
// above the surfacing floor, ranked best first and capped at the configured
// maximum. Ranking is deterministic: confidence descending, then amount delta
// ascending, then date delta ascending, then record ID. An empty slice means
// the transaction has no plausible counterpart.
func (f *Finder) FindCandidates(ctx context.Context, tx *models.BankTransaction, thresholds *models.MatchingThresholds) ([]*Candidate, error) {
	cfg := f.engine.config
	from, to := cfg.DateRange(tx.BookedAt)
	lo, hi := cfg.AmountRange(tx.Amount)

	documents, err := f.source.FindCandidateDocuments(ctx, tx.TenantID, lo, hi, from, to)
	if err != nil {
		return nil, engineerrors.MatchingError(engineerrors.CodeCandidateSearch, "find candidate documents", err)
	}

	entries, err := f.source.FindCandidateLedgerEntries(ctx, tx.TenantID, lo, hi, from, to)
	if err != nil {
		return nil, engineerrors.MatchingError(engineerrors.CodeCandidateSearch, "find candidate ledger entries", err)
	}

	candidates := make([]*Candidate, 0, len(documents)+len(entries))

	for _, doc := range documents {
		candidate, err := f.engine.Evaluate(tx, doc.ToMatchableRecord(), thresholds)
		if err != nil {
			return nil, err
		}
		if candidate.Tier == TierNone {
			continue
		}
		candidates = append(candidates, candidate)
	}

	for _, entry := range entries {
		candidate, err := f.engine.Evaluate(tx, entry.ToMatchableRecord(), thresholds)
		if err != nil {
			return nil, err
		}
		if candidate.Tier == TierNone {
			continue
		}
		candidates = append(candidates, candidate)
	}

	sortCandidates(candidates)

	if len(candidates) > cfg.MaxCandidates {
		candidates = candidates[:cfg.MaxCandidates]
	}

	return candidates, nil
}

// sortCandidates orders candidates best first. Ties on confidence fall back
// to the smaller amount delta, then the smaller date delta, then the record
// ID, so repeated runs over the same data rank identically.
func sortCandidates(candidates []*Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}

		amountCmp := a.AmountDelta.Cmp(b.AmountDelta)
		if amountCmp != 0 {
			return amountCmp < 0
		}

		if a.DateDeltaDays != b.DateDeltaDays {
			return a.DateDeltaDays < b.DateDeltaDays
		}

		return a.Record.ID.String() < b.Record.ID.String()
	})
}
