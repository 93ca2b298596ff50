// Package thresholds serves per-tenant matching thresholds and adapts them
// from reviewer feedback.
//
// Tenants start from the shared defaults (auto-match 0.85, suggest 0.60,
// the standard signal weights) and drift independently as reviewers accept
// or reject proposed matches. Learning is a bounded heuristic, not model
// training: each feedback batch moves a cutoff by at most one fixed step
// and blends signal weights toward the signals that accepted matches
// actually exhibited. Cutoffs are clamped after every update, so no amount
// of hostile or noisy feedback can push a tenant into matching everything
// or nothing.
//
// The learner itself is a pure function over (current thresholds, feedback
// batch); Manager wraps it with store access.
package thresholds

import (
	"accounting-reconciliation-engine/internal/models"
)

const (
	// ThresholdStep is the fixed amount a cutoff moves per feedback batch.
	ThresholdStep = 0.05

	// WeightRetention is the fraction of the existing weight kept when
	// blending in observed signal reliability. The remainder comes from
	// the accepted items in the batch.
	WeightRetention = 0.8
)

// Learn folds one batch of reviewer decisions into a tenant's thresholds
// and returns the updated copy. The input is never mutated. An empty batch
// returns an unchanged clone.
//
// Cutoff rules, both judged against the auto cutoff as it stood before
// this batch:
//   - any rejected item at or above the auto cutoff lowers it by ThresholdStep
//   - any accepted item below the auto cutoff raises it by ThresholdStep
//
// Weights are recomputed from accepted items only: each signal's values are
// summed across the batch, normalized into a reliability share, blended with
// the existing weights at WeightRetention, and renormalized to sum to 1.
func Learn(current *models.MatchingThresholds, feedback []models.ReviewDecision) *models.MatchingThresholds {
	next := current.Clone()
	if len(feedback) == 0 {
		return next
	}

	anchor := current.AutoMatch

	var (
		rejectedAboveAuto bool
		acceptedBelowAuto bool
		acceptedCount     int
		signalSums        models.SignalWeights
	)

	for _, decision := range feedback {
		if !decision.Accepted {
			if decision.Confidence >= anchor {
				rejectedAboveAuto = true
			}
			continue
		}

		acceptedCount++
		signalSums.Amount += decision.Signals.Amount
		signalSums.Date += decision.Signals.Date
		signalSums.Vendor += decision.Signals.Vendor
		signalSums.SourceConfidence += decision.Signals.SourceConfidence
		signalSums.Description += decision.Signals.Description

		if decision.Confidence < anchor {
			acceptedBelowAuto = true
		}
	}

	if rejectedAboveAuto {
		next.AutoMatch -= ThresholdStep
	}
	if acceptedBelowAuto {
		next.AutoMatch += ThresholdStep
	}
	next.Clamp()

	// Accepted items with all-zero signal snapshots carry no reliability
	// information, so the weights stay as they were.
	if acceptedCount > 0 && signalSums.Total() > 0 {
		reliability := signalSums.Normalize()
		next.Weights = blendWeights(next.Weights, reliability).Normalize()
	}

	next.LearnedFromSamples += len(feedback)
	return next
}

func blendWeights(old, reliability models.SignalWeights) models.SignalWeights {
	mix := func(w, r float64) float64 {
		return WeightRetention*w + (1-WeightRetention)*r
	}
	return models.SignalWeights{
		Amount:           mix(old.Amount, reliability.Amount),
		Date:             mix(old.Date, reliability.Date),
		Vendor:           mix(old.Vendor, reliability.Vendor),
		SourceConfidence: mix(old.SourceConfidence, reliability.SourceConfidence),
		Description:      mix(old.Description, reliability.Description),
	}
}
