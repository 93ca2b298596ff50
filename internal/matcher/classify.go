package matcher

import (
	"accounting-reconciliation-engine/internal/models"
)

// MatchTier represents the action the engine takes for a scored candidate.
// Tiers are ordered by strength so callers can compare them directly, e.g.
// tier >= TierSuggest.
type MatchTier int

const (
	// TierNone indicates the candidate scored below the surfacing floor
	// and is discarded.
	TierNone MatchTier = iota

	// TierManual indicates a weak candidate that is only shown inside the
	// manual-review workbench, never proposed.
	TierManual

	// TierSuggest indicates the candidate is proposed to a reviewer and a
	// pending match is recorded.
	TierSuggest

	// TierAuto indicates the candidate is confident enough to reconcile
	// without review.
	TierAuto
)

// String returns the string representation of MatchTier
func (t MatchTier) String() string {
	switch t {
	case TierAuto:
		return "auto"
	case TierSuggest:
		return "suggest"
	case TierManual:
		return "manual"
	case TierNone:
		return "none"
	default:
		return "unknown"
	}
}

// Classify maps a blended confidence score to an action tier using the
// tenant's cutoffs. Boundaries are inclusive upward: a score exactly at the
// auto cutoff auto-matches, and a score exactly at the suggest cutoff is
// suggested.
func Classify(confidence float64, thresholds *models.MatchingThresholds) MatchTier {
	switch {
	case confidence >= thresholds.AutoMatch:
		return TierAuto
	case confidence >= thresholds.SuggestMatch:
		return TierSuggest
	case confidence >= MinCandidateScore:
		return TierManual
	default:
		return TierNone
	}
}

// MatchTypeFor derives the match quality label from the raw signals. Exact
// means the amounts agree to the cent and the dates fall on the same day.
// Partial means the amounts are close but not equal, which covers fee-adjusted
// settlements and partial payments. Everything else, matches held together by
// text and proximity, is fuzzy. MatchTypeManual is reserved for matches a
// human creates and is never produced here.
func MatchTypeFor(signals models.MatchSignals) models.MatchType {
	switch {
	case signals.Amount == 1.0 && signals.Date == 1.0:
		return models.MatchTypeExact
	case signals.Amount > 0 && signals.Amount < 1.0:
		return models.MatchTypePartial
	default:
		return models.MatchTypeFuzzy
	}
}
