// Package notify carries reconciliation outcomes to downstream delivery.
// Senders are best-effort: the engine fires them after the work is done,
// logs failures, and never blocks or retries.
package notify

import (
	"context"

	"github.com/google/uuid"

	"accounting-reconciliation-engine/pkg/logger"
)

// Template ids understood by the delivery subsystem.
const (
	// TemplateBatchSummary reports match and exception counts after a
	// batch run.
	TemplateBatchSummary = "reconciliation_batch_summary"

	// TemplateCriticalException escalates a newly opened critical
	// exception.
	TemplateCriticalException = "critical_exception_opened"
)

// Variables is the substitution payload for a notification template.
type Variables map[string]interface{}

// Sender delivers one notification across the requested channels and
// returns an id per accepted delivery.
type Sender interface {
	Notify(ctx context.Context, tenantID uuid.UUID, templateID string, variables Variables, channels []string) ([]string, error)
}

// LogSender writes notifications to the structured log. It is the only
// sender shipped with the engine; email and webhook senders live with the
// delivery subsystem and plug in through the Sender interface.
type LogSender struct {
	logger logger.Logger
}

// NewLogSender creates a sender that logs every notification
func NewLogSender() *LogSender {
	return &LogSender{
		logger: logger.GetGlobalLogger().WithComponent("notifier"),
	}
}

// Notify logs the notification once per channel. An empty channel list
// delivers to the log channel alone.
func (s *LogSender) Notify(ctx context.Context, tenantID uuid.UUID, templateID string, variables Variables, channels []string) ([]string, error) {
	if len(channels) == 0 {
		channels = []string{"log"}
	}

	deliveryIDs := make([]string, 0, len(channels))
	for _, channel := range channels {
		deliveryID := uuid.New().String()
		s.logger.WithFields(logger.Fields{
			"tenant_id":   tenantID,
			"template_id": templateID,
			"channel":     channel,
			"delivery_id": deliveryID,
			"variables":   variables,
		}).Info("Notification dispatched")
		deliveryIDs = append(deliveryIDs, deliveryID)
	}

	return deliveryIDs, nil
}
