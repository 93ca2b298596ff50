package models

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Bounds for learned threshold drift. The learner clamps into these ranges
// after every update so feedback bursts cannot push a tenant into matching
// everything or nothing.
const (
	MinAutoMatchThreshold    = 0.5
	MaxAutoMatchThreshold    = 0.95
	MinSuggestMatchThreshold = 0.3
	MaxSuggestMatchThreshold = 0.8

	// DefaultAutoMatchThreshold is the starting automatic-match cutoff
	DefaultAutoMatchThreshold = 0.85
	// DefaultSuggestMatchThreshold is the starting suggestion cutoff
	DefaultSuggestMatchThreshold = 0.60
)

// MatchingThresholds holds the per-tenant matching parameters: the two
// confidence cutoffs and the signal weights. Tenants start from the shared
// defaults and drift independently as reviewer feedback arrives.
type MatchingThresholds struct {
	TenantID           uuid.UUID     `gorm:"type:uuid;primaryKey" json:"tenant_id"`
	AutoMatch          float64       `json:"auto_match"`
	SuggestMatch       float64       `json:"suggest_match"`
	Weights            SignalWeights `gorm:"embedded" json:"weights"`
	LearnedFromSamples int           `json:"learned_from_samples"`
	UpdatedAt          time.Time     `json:"updated_at"`
}

// DefaultThresholds returns the starting thresholds for a tenant
func DefaultThresholds(tenantID uuid.UUID) *MatchingThresholds {
	return &MatchingThresholds{
		TenantID:     tenantID,
		AutoMatch:    DefaultAutoMatchThreshold,
		SuggestMatch: DefaultSuggestMatchThreshold,
		Weights:      DefaultSignalWeights(),
	}
}

// Validate checks cutoff ranges, ordering, and weight sanity
func (t *MatchingThresholds) Validate() error {
	if math.IsNaN(t.AutoMatch) || t.AutoMatch < MinAutoMatchThreshold || t.AutoMatch > MaxAutoMatchThreshold {
		return fmt.Errorf("auto-match threshold must be within [%.2f, %.2f], got %f",
			MinAutoMatchThreshold, MaxAutoMatchThreshold, t.AutoMatch)
	}

	if math.IsNaN(t.SuggestMatch) || t.SuggestMatch < MinSuggestMatchThreshold || t.SuggestMatch > MaxSuggestMatchThreshold {
		return fmt.Errorf("suggest-match threshold must be within [%.2f, %.2f], got %f",
			MinSuggestMatchThreshold, MaxSuggestMatchThreshold, t.SuggestMatch)
	}

	if t.AutoMatch < t.SuggestMatch {
		return fmt.Errorf("auto-match threshold (%f) cannot be below suggest-match threshold (%f)",
			t.AutoMatch, t.SuggestMatch)
	}

	return t.Weights.Validate()
}

// Clamp forces the thresholds back into their allowed ranges while keeping
// the auto cutoff at or above the suggest cutoff
func (t *MatchingThresholds) Clamp() {
	t.AutoMatch = clampFloat(t.AutoMatch, MinAutoMatchThreshold, MaxAutoMatchThreshold)
	t.SuggestMatch = clampFloat(t.SuggestMatch, MinSuggestMatchThreshold, MaxSuggestMatchThreshold)

	// The auto floor (0.5) sits above the suggest floor (0.3), so pulling
	// the suggest cutoff down to the auto cutoff keeps it in range.
	if t.SuggestMatch > t.AutoMatch {
		t.SuggestMatch = t.AutoMatch
	}
}

// Clone returns an independent copy of the thresholds
func (t *MatchingThresholds) Clone() *MatchingThresholds {
	if t == nil {
		return nil
	}

	return &MatchingThresholds{
		TenantID:           t.TenantID,
		AutoMatch:          t.AutoMatch,
		SuggestMatch:       t.SuggestMatch,
		Weights:            t.Weights,
		LearnedFromSamples: t.LearnedFromSamples,
		UpdatedAt:          t.UpdatedAt,
	}
}

// String returns a string representation of the MatchingThresholds
func (t *MatchingThresholds) String() string {
	return fmt.Sprintf("MatchingThresholds{Tenant: %s, Auto: %.2f, Suggest: %.2f, Samples: %d}",
		t.TenantID, t.AutoMatch, t.SuggestMatch, t.LearnedFromSamples)
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
