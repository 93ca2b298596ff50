package thresholds

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/internal/models"
	"accounting-reconciliation-engine/internal/store"
	engineerrors "accounting-reconciliation-engine/pkg/errors"
	"accounting-reconciliation-engine/pkg/logger"
)

// Manager serves per-tenant thresholds with get-or-default semantics and
// applies reviewer feedback through the learner. It holds no tenant state
// itself; multiple engine instances sharing one store stay consistent.
type Manager struct {
	store  store.ThresholdStore
	logger logger.Logger
}

// NewManager creates a threshold manager backed by the given store
func NewManager(thresholdStore store.ThresholdStore) *Manager {
	return &Manager{
		store:  thresholdStore,
		logger: logger.GetGlobalLogger().WithComponent("threshold_manager"),
	}
}

// GetThresholds returns the tenant's tuned thresholds, or the system
// defaults for tenants with no learning history. Defaults are not
// persisted on read; the first learning pass or override writes them.
func (m *Manager) GetThresholds(ctx context.Context, tenantID uuid.UUID) (*models.MatchingThresholds, error) {
	thresholds, err := m.store.GetThresholds(ctx, tenantID)
	if errors.Is(err, store.ErrNotFound) {
		return models.DefaultThresholds(tenantID), nil
	}
	if err != nil {
		return nil, err
	}
	return thresholds, nil
}

// Override replaces a tenant's thresholds wholesale. Values outside the
// allowed ranges are rejected before anything is written.
func (m *Manager) Override(ctx context.Context, thresholds *models.MatchingThresholds) error {
	if thresholds == nil {
		return engineerrors.ConfigurationError(engineerrors.CodeMissingConfig, "thresholds", nil, nil)
	}
	if thresholds.TenantID == uuid.Nil {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "thresholds.tenant_id", "nil", nil)
	}
	if err := thresholds.Validate(); err != nil {
		return engineerrors.ConfigurationError(engineerrors.CodeInvalidConfig, "thresholds", thresholds.String(), err)
	}

	if err := m.store.SaveThresholds(ctx, thresholds); err != nil {
		return err
	}

	m.logger.WithFields(logger.Fields{
		"tenant_id":     thresholds.TenantID,
		"auto_match":    thresholds.AutoMatch,
		"suggest_match": thresholds.SuggestMatch,
	}).Info("Thresholds overridden")

	return nil
}

// LearnFromFeedback folds a batch of reviewer decisions into the tenant's
// thresholds and persists the result. An empty batch reads and returns the
// current thresholds without writing.
func (m *Manager) LearnFromFeedback(ctx context.Context, tenantID uuid.UUID, feedback []models.ReviewDecision) (*models.MatchingThresholds, error) {
	current, err := m.GetThresholds(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if len(feedback) == 0 {
		return current, nil
	}

	updated := Learn(current, feedback)
	if err := m.store.SaveThresholds(ctx, updated); err != nil {
		return nil, err
	}

	m.logger.WithFields(logger.Fields{
		"tenant_id":      tenantID,
		"feedback_items": len(feedback),
		"auto_match":     updated.AutoMatch,
		"suggest_match":  updated.SuggestMatch,
		"total_samples":  updated.LearnedFromSamples,
	}).Info("Thresholds updated from reviewer feedback")

	return updated, nil
}
