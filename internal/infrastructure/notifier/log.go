// Package notifier holds notifiers that do not talk to an external system,
// plus the fan-out that combines several notifiers into one.
package notifier

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/port"
)

// LogNotifier writes each notification to the structured log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify always reports SENT
func (l *LogNotifier) Notify(_ context.Context, n *port.Notification) (port.DeliveryStatus, error) {
	ids := make([]string, 0, len(n.Recipients))
	for _, u := range n.Recipients {
		ids = append(ids, u.ID)
	}
	fields := []zap.Field{
		zap.String("type", n.Type),
		zap.Strings("recipients", ids),
		zap.String("summary", n.Summary()),
	}
	if n.Invoice != nil {
		fields = append(fields, zap.String("invoice_id", n.Invoice.ID))
	}
	l.logger.Info("Notification", fields...)
	return port.DeliverySent, nil
}

var _ port.Notifier = (*LogNotifier)(nil)
