package matcher

import (
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"accounting-reconciliation-engine/internal/models"
)

// centTolerance is the sub-cent difference treated as an exact amount match.
var centTolerance = decimal.New(1, -2)

// CalculateSignals compares a bank transaction against a candidate record and
// returns the per-dimension similarity scores, each in [0, 1].
//
// Amounts are compared by magnitude, so a -125.50 bank outflow lines up with
// a 125.50 invoice. The transaction's description is the only text a bank feed
// provides, so it serves as the probe for both the vendor and description
// signals; on the record side, vendor and description fall back to each other
// when one is blank (ledger entries carry only a memo, some documents only a
// vendor name).
func CalculateSignals(tx *models.BankTransaction, rec *models.MatchableRecord) models.MatchSignals {
	return models.MatchSignals{
		Amount:           amountSignal(tx.Amount, rec.Amount),
		Date:             dateSignal(tx.BookedAt, rec.Date),
		Vendor:           TextSimilarity(tx.Description, rec.VendorText()),
		SourceConfidence: clamp01(rec.SourceConfidence),
		Description:      TextSimilarity(tx.Description, rec.DescriptionText()),
	}
}

// amountSignal scores how closely two monetary amounts agree. Differences
// under a cent score 1.0; beyond that the score decays linearly with the
// difference relative to the transaction amount, reaching zero once the
// difference exceeds ten percent of it. Transactions under 1.00 are scaled
// against 1.00 so tiny amounts are not punished for cent-level noise.
func amountSignal(txAmount, recAmount decimal.Decimal) float64 {
	diff := txAmount.Abs().Sub(recAmount.Abs()).Abs()
	if diff.LessThan(centTolerance) {
		return 1.0
	}

	base := txAmount.Abs()
	if base.LessThan(decimal.NewFromInt(1)) {
		base = decimal.NewFromInt(1)
	}

	ratio, _ := diff.Div(base).Float64()
	score := 1.0 - ratio*10
	if score < 0 {
		return 0
	}
	return score
}

// dateSignal scores calendar-day proximity on a step curve. Bank settlement
// commonly trails the document date by a business day or two, so the first
// week decays gently; past a week the score falls off linearly.
func dateSignal(txDate, recDate time.Time) float64 {
	days := models.DaysBetween(txDate, recDate)
	switch {
	case days == 0:
		return 1.0
	case days <= 1:
		return 0.9
	case days <= 3:
		return 0.7
	case days <= 7:
		return 0.5
	default:
		score := 0.5 - 0.05*float64(days-7)
		if score < 0 {
			return 0
		}
		return score
	}
}

// TextSimilarity computes the Jaccard similarity of the token sets of two
// free-text fields: the size of the intersection over the size of the union.
// Tokens are lowercased and tokens of two characters or fewer are dropped,
// so "of", "co", and separator noise do not dominate short vendor names.
// Returns 0 when either side has no usable tokens.
func TextSimilarity(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	intersection := 0
	for token := range ta {
		if _, ok := tb[token]; ok {
			intersection++
		}
	}

	union := len(ta) + len(tb) - intersection
	return float64(intersection) / float64(union)
}

// tokenize splits text on any non-alphanumeric rune, lowercases the pieces,
// and drops tokens of two characters or fewer.
func tokenize(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		if len(field) <= 2 {
			continue
		}
		tokens[field] = struct{}{}
	}
	return tokens
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
