package matcher

import (
	"fmt"

	"github.com/shopspring/decimal"

	"accounting-reconciliation-engine/internal/models"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

// Candidate is a scored pairing of a bank transaction with a document or
// ledger entry. Candidates below the surfacing floor are never produced;
// callers receive them ranked best first.
type Candidate struct {
	// Record is the document or ledger entry being considered.
	Record *models.MatchableRecord `json:"record"`

	// Signals holds the per-dimension similarity scores.
	Signals models.MatchSignals `json:"signals"`

	// Confidence is the weighted blend of the signals, in [0, 1].
	Confidence float64 `json:"confidence"`

	// Tier is the action classification of the confidence score.
	Tier MatchTier `json:"tier"`

	// MatchType labels the quality of the pairing (exact, partial, fuzzy).
	MatchType models.MatchType `json:"match_type"`

	// AmountDelta is the absolute difference between the magnitudes of the
	// two amounts.
	AmountDelta decimal.Decimal `json:"amount_delta"`

	// DateDeltaDays is the absolute difference in calendar days.
	DateDeltaDays int `json:"date_delta_days"`

	// Reasons lists human-readable explanations for the score, shown to
	// reviewers alongside suggested matches.
	Reasons []string `json:"reasons"`
}

// String returns a human-readable description of the candidate
func (c *Candidate) String() string {
	return fmt.Sprintf("Candidate{%s %s, Confidence: %.3f, Tier: %s, Type: %s}",
		c.Record.Kind, c.Record.ID, c.Confidence, c.Tier, c.MatchType)
}

// Engine scores candidate records against bank transactions. The engine
// itself is stateless apart from its search configuration; per-tenant
// thresholds and weights are passed into each call so one engine instance
// serves all tenants.
type Engine struct {
	config *Config
}

// NewEngine creates a matching engine with the given search configuration.
// A nil config falls back to DefaultConfig.
func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// GetConfig returns a copy of the engine's search configuration.
func (e *Engine) GetConfig() *Config {
	return e.config.Clone()
}

// UpdateConfig replaces the engine's search configuration after validation.
func (e *Engine) UpdateConfig(config *Config) error {
	if config == nil {
		return engineerrors.ConfigurationError(
			engineerrors.CodeMissingConfig, "matcher config", "nil", nil)
	}
	if err := config.Validate(); err != nil {
		return err
	}
	e.config = config.Clone()
	return nil
}

// Score blends per-dimension signals into a single confidence using the
// given weights. The result is normalized by the weight total, so weights
// need not sum to one. A weight set that sums to zero or less cannot rank
// anything and is reported as a configuration error.
func (e *Engine) Score(signals models.MatchSignals, weights models.SignalWeights) (float64, error) {
	total := weights.Total()
	if total <= 0 {
		return 0, engineerrors.ConfigurationError(
			engineerrors.CodeInvalidWeights,
			"signal weights",
			fmt.Sprintf("total %.4f", total),
			nil,
		)
	}

	weighted := signals.Amount*weights.Amount +
		signals.Date*weights.Date +
		signals.Vendor*weights.Vendor +
		signals.SourceConfidence*weights.SourceConfidence +
		signals.Description*weights.Description

	return weighted / total, nil
}

// Evaluate scores a single record against a transaction and classifies the
// result under the tenant's thresholds. It always returns a candidate, even
// one in TierNone; filtering is the finder's job.
func (e *Engine) Evaluate(tx *models.BankTransaction, rec *models.MatchableRecord, thresholds *models.MatchingThresholds) (*Candidate, error) {
	signals := CalculateSignals(tx, rec)

	confidence, err := e.Score(signals, thresholds.Weights)
	if err != nil {
		return nil, err
	}

	return &Candidate{
		Record:        rec,
		Signals:       signals,
		Confidence:    confidence,
		Tier:          Classify(confidence, thresholds),
		MatchType:     MatchTypeFor(signals),
		AmountDelta:   tx.Amount.Abs().Sub(rec.Amount.Abs()).Abs(),
		DateDeltaDays: models.DaysBetween(tx.BookedAt, rec.Date),
		Reasons:       buildReasons(signals),
	}, nil
}

// buildReasons translates raw signal scores into the explanations reviewers
// see next to a suggested match.
func buildReasons(signals models.MatchSignals) []string {
	reasons := make([]string, 0, 5)

	switch {
	case signals.Amount >= 1.0:
		reasons = append(reasons, "Exact amount match")
	case signals.Amount >= 0.8:
		reasons = append(reasons, "Close amount match")
	case signals.Amount > 0:
		reasons = append(reasons, "Amount within tolerance")
	}

	switch {
	case signals.Date >= 1.0:
		reasons = append(reasons, "Same day")
	case signals.Date >= 0.9:
		reasons = append(reasons, "Adjacent day")
	case signals.Date >= 0.5:
		reasons = append(reasons, "Date within a week")
	case signals.Date > 0:
		reasons = append(reasons, "Date within extended window")
	}

	switch {
	case signals.Vendor >= 0.8:
		reasons = append(reasons, "Strong vendor match")
	case signals.Vendor >= 0.4:
		reasons = append(reasons, "Partial vendor match")
	}

	switch {
	case signals.Description >= 0.8:
		reasons = append(reasons, "Strong description match")
	case signals.Description >= 0.4:
		reasons = append(reasons, "Partial description match")
	}

	if signals.SourceConfidence < 0.5 {
		reasons = append(reasons, "Low source extraction confidence")
	}

	return reasons
}
