package exceptions

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/matcher"
	"accounting-reconciliation-engine/internal/models"
)

const (
	// Below this many prior spends the baseline is too noisy to score.
	minSpendSamples = 5
	// Scale factor that makes the median absolute deviation comparable to
	// a standard deviation.
	madScale = 1.4826
	// Robust z-scores at or below the floor score zero; at or above the
	// ceiling they score one.
	zScoreFloor = 2.0
	zScoreCeil  = 8.0
	// When the history has no spread, score on the multiple of the typical
	// spend instead.
	flatRatioFloor = 2.0
	flatRatioCeil  = 10.0
)

const (
	// Two bookings this many days apart can still be the same charge
	// posting twice.
	duplicateDateWindowDays = 3
	// Description similarity below this rules a pair out unless the
	// descriptions are byte-identical.
	duplicateSimilarityFloor = 0.6
)

// ScoreUnusualSpend rates how far a spend sits above the account's recent
// typical spend, as a robust z-score against the median and median absolute
// deviation of the history, mapped into [0, 1]. Credits score zero, as does
// any transaction with too little history behind it. The returned score
// feeds severity escalation when an unusual_spend exception is opened.
func ScoreUnusualSpend(tx *models.BankTransaction, history []*models.BankTransaction) float64 {
	if tx.Amount.Sign() >= 0 {
		return 0
	}

	spends := make([]float64, 0, len(history))
	for _, h := range history {
		if h.ID == tx.ID || h.Amount.Sign() >= 0 {
			continue
		}
		spends = append(spends, h.Amount.Abs().InexactFloat64())
	}
	if len(spends) < minSpendSamples {
		return 0
	}

	value := tx.Amount.Abs().InexactFloat64()
	med := median(spends)

	deviations := make([]float64, len(spends))
	for i, v := range spends {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)

	if mad == 0 {
		if med == 0 {
			if value == 0 {
				return 0
			}
			return 1
		}
		return scaleTo01(value/med, flatRatioFloor, flatRatioCeil)
	}

	z := (value - med) / (mad * madScale)
	return scaleTo01(z, zScoreFloor, zScoreCeil)
}

// DuplicateGroup is a set of transactions that look like the same charge
// posted more than once.
type DuplicateGroup struct {
	Transactions []*models.BankTransaction
	Confidence   float64
	Reason       string
}

// DetectDuplicates groups transactions with the same amount on the same
// account, booked within a few days of each other, with matching or similar
// descriptions. Each group yields one exception; the confidence doubles as
// its anomaly score.
func DetectDuplicates(txs []*models.BankTransaction) []DuplicateGroup {
	var groups []DuplicateGroup
	processed := make(map[uuid.UUID]bool)

	for i, tx := range txs {
		if processed[tx.ID] {
			continue
		}

		group := []*models.BankTransaction{tx}
		for _, other := range txs[i+1:] {
			if processed[other.ID] {
				continue
			}
			if isPotentialDuplicate(tx, other) {
				group = append(group, other)
				processed[other.ID] = true
			}
		}
		processed[tx.ID] = true

		if len(group) > 1 {
			groups = append(groups, DuplicateGroup{
				Transactions: group,
				Confidence:   duplicateConfidence(group),
				Reason:       duplicateReason(group),
			})
		}
	}

	return groups
}

func isPotentialDuplicate(a, b *models.BankTransaction) bool {
	if a.TenantID != b.TenantID || a.AccountID != b.AccountID {
		return false
	}
	if !a.Amount.Equal(b.Amount) {
		return false
	}
	if daysApart(a.BookedAt, b.BookedAt) > duplicateDateWindowDays {
		return false
	}
	if a.Description == b.Description {
		return true
	}
	return matcher.TextSimilarity(a.Description, b.Description) >= duplicateSimilarityFloor
}

// duplicateConfidence averages per-pair similarity against the first
// transaction in the group. Amount equality is a precondition for grouping,
// so every pair starts from that score.
func duplicateConfidence(group []*models.BankTransaction) float64 {
	if len(group) < 2 {
		return 0
	}

	ref := group[0]
	total := 0.0
	for _, tx := range group[1:] {
		score := 0.4

		switch days := daysApart(ref.BookedAt, tx.BookedAt); {
		case days == 0:
			score += 0.3
		case days <= 1:
			score += 0.2
		default:
			score += 0.1
		}

		if ref.Description == tx.Description {
			score += 0.3
		} else {
			switch sim := matcher.TextSimilarity(ref.Description, tx.Description); {
			case sim >= 0.9:
				score += 0.3
			case sim >= 0.75:
				score += 0.2
			default:
				score += 0.1
			}
		}

		total += score
	}
	return total / float64(len(group)-1)
}

func duplicateReason(group []*models.BankTransaction) string {
	ref := group[0]
	return fmt.Sprintf("Found %d transactions of %s %s on account %s within %d days",
		len(group), ref.Amount.String(), ref.Currency, ref.AccountID, duplicateDateWindowDays)
}

func daysApart(a, b time.Time) int {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return int(d.Hours() / 24)
}

// scaleTo01 maps v linearly from [floor, ceil] onto [0, 1], clamping both
// ends.
func scaleTo01(v, floor, ceil float64) float64 {
	if v <= floor {
		return 0
	}
	if v >= ceil {
		return 1
	}
	return (v - floor) / (ceil - floor)
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
