package thresholds

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/store"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
)

func TestManager_GetThresholdsDefaults(t *testing.T) {
	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	got, err := m.GetThresholds(ctx, testTenant)
	if err != nil {
		t.Fatalf("GetThresholds failed: %v", err)
	}
	if got.TenantID != testTenant {
		t.Errorf("Expected tenant %s, got %s", testTenant, got.TenantID)
	}
	if got.AutoMatch != models.DefaultAutoMatchThreshold {
		t.Errorf("Expected default auto cutoff, got %f", got.AutoMatch)
	}
	if got.Weights != models.DefaultSignalWeights() {
		t.Errorf("Expected default weights, got %+v", got.Weights)
	}

	// Reading defaults must not write them.
	if _, err := s.GetThresholds(ctx, testTenant); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected store untouched after default read, got %v", err)
	}
}

func TestManager_LearnFromFeedbackPersists(t *testing.T) {
	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	feedback := []models.ReviewDecision{
		decision(false, 0.90, strongSignals()),
		decision(false, 0.91, strongSignals()),
	}

	updated, err := m.LearnFromFeedback(ctx, testTenant, feedback)
	if err != nil {
		t.Fatalf("LearnFromFeedback failed: %v", err)
	}
	if !closeEnough(updated.AutoMatch, 0.80) {
		t.Errorf("Expected auto cutoff 0.80, got %f", updated.AutoMatch)
	}

	// The tuned thresholds must survive a fresh read.
	reloaded, err := m.GetThresholds(ctx, testTenant)
	if err != nil {
		t.Fatalf("GetThresholds failed: %v", err)
	}
	if !closeEnough(reloaded.AutoMatch, 0.80) {
		t.Errorf("Expected persisted auto cutoff 0.80, got %f", reloaded.AutoMatch)
	}
	if reloaded.LearnedFromSamples != 2 {
		t.Errorf("Expected 2 learned samples, got %d", reloaded.LearnedFromSamples)
	}
}

func TestManager_LearnFromFeedbackEmptyBatch(t *testing.T) {
	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	got, err := m.LearnFromFeedback(ctx, testTenant, nil)
	if err != nil {
		t.Fatalf("LearnFromFeedback failed: %v", err)
	}
	if got.AutoMatch != models.DefaultAutoMatchThreshold {
		t.Errorf("Expected defaults back, got %f", got.AutoMatch)
	}

	if _, err := s.GetThresholds(ctx, testTenant); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Empty batch must not write, got %v", err)
	}
}

func TestManager_LearningIsPerTenant(t *testing.T) {
	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()
	other := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	if _, err := m.LearnFromFeedback(ctx, testTenant, []models.ReviewDecision{
		decision(false, 0.95, strongSignals()),
	}); err != nil {
		t.Fatalf("LearnFromFeedback failed: %v", err)
	}

	untouched, err := m.GetThresholds(ctx, other)
	if err != nil {
		t.Fatalf("GetThresholds failed: %v", err)
	}
	if untouched.AutoMatch != models.DefaultAutoMatchThreshold {
		t.Errorf("Other tenant must keep defaults, got %f", untouched.AutoMatch)
	}
}

func TestManager_Override(t *testing.T) {
	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	custom := models.DefaultThresholds(testTenant)
	custom.AutoMatch = 0.75
	custom.SuggestMatch = 0.50

	if err := m.Override(ctx, custom); err != nil {
		t.Fatalf("Override failed: %v", err)
	}

	got, err := m.GetThresholds(ctx, testTenant)
	if err != nil {
		t.Fatalf("GetThresholds failed: %v", err)
	}
	if got.AutoMatch != 0.75 || got.SuggestMatch != 0.50 {
		t.Errorf("Expected overridden cutoffs, got auto=%f suggest=%f", got.AutoMatch, got.SuggestMatch)
	}
}

func TestManager_OverrideRejectsInvalid(t *testing.T) {
	s := store.NewMemoryStore()
	m := NewManager(s)
	ctx := context.Background()

	tests := []struct {
		name       string
		thresholds *models.MatchingThresholds
		code       engineerrors.ErrorCode
	}{
		{
			name:       "nil thresholds",
			thresholds: nil,
			code:       engineerrors.CodeMissingConfig,
		},
		{
			name: "missing tenant",
			thresholds: func() *models.MatchingThresholds {
				th := models.DefaultThresholds(uuid.Nil)
				return th
			}(),
			code: engineerrors.CodeInvalidConfig,
		},
		{
			name: "auto below suggest",
			thresholds: func() *models.MatchingThresholds {
				th := models.DefaultThresholds(testTenant)
				th.AutoMatch = 0.55
				th.SuggestMatch = 0.70
				return th
			}(),
			code: engineerrors.CodeInvalidConfig,
		},
		{
			name: "cutoff out of range",
			thresholds: func() *models.MatchingThresholds {
				th := models.DefaultThresholds(testTenant)
				th.AutoMatch = 0.99
				return th
			}(),
			code: engineerrors.CodeInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.Override(ctx, tt.thresholds)
			if err == nil {
				t.Fatal("Expected an error")
			}

			engineErr, ok := engineerrors.AsEngineError(err)
			if !ok {
				t.Fatalf("Expected an engine error, got %T", err)
			}
			if engineErr.Code != tt.code {
				t.Errorf("Expected code %s, got %s", tt.code, engineErr.Code)
			}
		})
	}

	if _, err := s.GetThresholds(ctx, testTenant); !errors.Is(err, store.ErrNotFound) {
		t.Error("Rejected overrides must not write")
	}
}
