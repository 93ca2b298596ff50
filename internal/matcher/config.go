// Package matcher implements the candidate discovery and scoring engine that
// pairs bank transactions with documents and ledger entries.
//
// Matching is signal based. Each candidate record is compared against the
// transaction along five dimensions (amount, date, vendor, source confidence,
// description), the per-signal scores are blended into a single weighted
// confidence, and the confidence is classified against per-tenant thresholds
// into an action tier:
//   - TierAuto: reconcile without review
//   - TierSuggest: propose the match for review
//   - TierManual: surface as a weak manual-review candidate
//   - TierNone: discard
//
// Example usage:
//
//	engine := matcher.NewEngine(matcher.DefaultConfig())
//	finder := matcher.NewFinder(source, engine)
//
//	candidates, err := finder.FindCandidates(ctx, tx, thresholds)
//	if err != nil {
//		return err
//	}
//	if len(candidates) > 0 && candidates[0].Tier == matcher.TierAuto {
//		// reconcile immediately
//	}
package matcher

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"accounting-reconciliation-engine/internal/models"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

// MinCandidateScore is the floor below which a scored record is not worth
// surfacing at all, independent of tenant thresholds. Tenants tune the auto
// and suggest cutoffs; the floor stays fixed so the manual-review queue never
// fills with noise.
const MinCandidateScore = 0.3

// Config holds the candidate search parameters for the matching engine.
// It controls which records are even considered for scoring; the scoring
// itself is governed by per-tenant models.MatchingThresholds.
//
// Use the provided factory functions for common scenarios:
//   - DefaultConfig(): balanced window for most tenants
//   - StrictConfig(): tight window for high-volume accounts
//   - RelaxedConfig(): wide window for exploratory or catch-up runs
type Config struct {
	// DateWindowDays bounds candidate search to records dated within this
	// many days of the transaction, in either direction.
	DateWindowDays int `json:"date_window_days"`

	// AmountBand bounds candidate search to records whose absolute amount
	// is within this distance of the transaction's absolute amount.
	AmountBand decimal.Decimal `json:"amount_band"`

	// MaxCandidates caps how many scored candidates are returned per
	// transaction, after ranking.
	MaxCandidates int `json:"max_candidates"`
}

// DefaultConfig returns the candidate search parameters used in production:
// a seven day window, a 100.00 amount band, and at most 20 ranked candidates.
func DefaultConfig() *Config {
	return &Config{
		DateWindowDays: 7,
		AmountBand:     decimal.NewFromInt(100),
		MaxCandidates:  20,
	}
}

// StrictConfig returns a narrow search window for accounts with dense
// transaction volume, where a wide window produces too many near-ties.
func StrictConfig() *Config {
	return &Config{
		DateWindowDays: 3,
		AmountBand:     decimal.NewFromInt(10),
		MaxCandidates:  10,
	}
}

// RelaxedConfig returns a wide search window for catch-up reconciliation of
// stale accounts, where documents may trail transactions by weeks.
func RelaxedConfig() *Config {
	return &Config{
		DateWindowDays: 21,
		AmountBand:     decimal.NewFromInt(500),
		MaxCandidates:  50,
	}
}

// Validate checks if the search configuration is usable.
func (c *Config) Validate() error {
	if c.DateWindowDays < 0 {
		return engineerrors.ConfigurationError(
			engineerrors.CodeInvalidConfig,
			"date_window_days",
			fmt.Sprintf("%d", c.DateWindowDays),
			nil,
		)
	}

	if c.AmountBand.IsNegative() {
		return engineerrors.ConfigurationError(
			engineerrors.CodeInvalidConfig,
			"amount_band",
			c.AmountBand.String(),
			nil,
		)
	}

	if c.MaxCandidates <= 0 {
		return engineerrors.ConfigurationError(
			engineerrors.CodeInvalidConfig,
			"max_candidates",
			fmt.Sprintf("%d", c.MaxCandidates),
			nil,
		)
	}

	return nil
}

// Clone creates a deep copy of the search configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	return &Config{
		DateWindowDays: c.DateWindowDays,
		AmountBand:     c.AmountBand.Copy(),
		MaxCandidates:  c.MaxCandidates,
	}
}

// DateRange returns the candidate date window around the given transaction
// booking time. Both bounds are midnight UTC: from is inclusive, to is
// exclusive, and together they cover every moment of the window's calendar
// days regardless of the booking's time of day.
func (c *Config) DateRange(bookedAt time.Time) (from, to time.Time) {
	day := models.DayOf(bookedAt)
	from = day.AddDate(0, 0, -c.DateWindowDays)
	to = day.AddDate(0, 0, c.DateWindowDays+1)
	return from, to
}

// AmountRange returns the inclusive candidate amount band around the given
// transaction amount. The band is computed on absolute amounts so that
// outflows (negative bank amounts) line up with positively denominated
// documents. The lower bound is floored at zero.
func (c *Config) AmountRange(amount decimal.Decimal) (lo, hi decimal.Decimal) {
	abs := amount.Abs()
	lo = abs.Sub(c.AmountBand)
	if lo.IsNegative() {
		lo = decimal.Zero
	}
	hi = abs.Add(c.AmountBand)
	return lo, hi
}

// String returns a human-readable description of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DateWindow: ±%d days, AmountBand: ±%s, MaxCandidates: %d}",
		c.DateWindowDays, c.AmountBand.String(), c.MaxCandidates)
}
