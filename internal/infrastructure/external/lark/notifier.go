package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/port"
)

const (
	receiveIDTypeEmail = "email"
	msgTypeText        = "text"
)

// Notifier delivers notifications as Lark text messages addressed by email
type Notifier struct {
	sender MessageSender
	logger *zap.Logger
}

// NewNotifier creates a Lark-backed port.Notifier
func NewNotifier(sender MessageSender, logger *zap.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		logger: logger,
	}
}

// Notify sends one message per recipient. Any failed recipient marks the whole notice FAILED;
// the remaining recipients are still attempted.
func (n *Notifier) Notify(ctx context.Context, notification *port.Notification) (port.DeliveryStatus, error) {
	content, err := textContent(notification.Summary())
	if err != nil {
		return port.DeliveryFailed, err
	}

	var errs []error
	sent := 0
	for _, u := range notification.Recipients {
		if u.Email == "" {
			n.logger.Warn("Recipient has no email, skipping", zap.String("user_id", u.ID))
			continue
		}
		if _, err := n.sender.SendMessage(ctx, receiveIDTypeEmail, u.Email, msgTypeText, content); err != nil {
			errs = append(errs, fmt.Errorf("recipient %s: %w", u.ID, err))
			continue
		}
		sent++
	}

	if len(errs) > 0 {
		n.logger.Error("Lark notification failed",
			zap.String("type", notification.Type),
			zap.Int("sent", sent),
			zap.Int("failed", len(errs)))
		return port.DeliveryFailed, errors.Join(errs...)
	}

	n.logger.Info("Lark notification sent",
		zap.String("type", notification.Type),
		zap.Int("recipients", sent))
	return port.DeliverySent, nil
}

func textContent(text string) (string, error) {
	b, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("failed to encode message content: %w", err)
	}
	return string(b), nil
}

var _ port.Notifier = (*Notifier)(nil)
