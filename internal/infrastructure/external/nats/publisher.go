// Package nats publishes invoice notifications to a NATS subject per notification type.
//
// Subject convention: <prefix>.<type>, with the type lower-cased and dots replaced
// by underscores, e.g. invoices.notifications.invoice_submitted.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/port"
)

// DefaultSubjectPrefix is used when Config.SubjectPrefix is empty
const DefaultSubjectPrefix = "invoices.notifications"

// Config holds NATS connection settings
type Config struct {
	URL           string
	SubjectPrefix string
	ClientName    string
}

// Publisher is the subset of *nats.Conn the notifier needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials NATS with reconnects enabled
func Connect(cfg Config, logger *zap.Logger) (*nats.Conn, error) {
	name := cfg.ClientName
	if name == "" {
		name = "invoice-approval"
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("Connected to NATS", zap.String("url", cfg.URL))
	return conn, nil
}

// NotificationEvent is the JSON body published for each notification
type NotificationEvent struct {
	EventType     string    `json:"event_type"`
	InvoiceID     string    `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
	Project       string    `json:"project,omitempty"`
	Status        string    `json:"status"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	Recipients    []string  `json:"recipients"`
	Emails        []string  `json:"emails,omitempty"`
	Summary       string    `json:"summary"`
	PublishedAt   time.Time `json:"published_at"`
}

// Notifier implements port.Notifier on top of a NATS publisher
type Notifier struct {
	pub    Publisher
	prefix string
	logger *zap.Logger
	now    func() time.Time
}

// NewNotifier creates a NATS-backed notifier
func NewNotifier(pub Publisher, subjectPrefix string, logger *zap.Logger) *Notifier {
	if subjectPrefix == "" {
		subjectPrefix = DefaultSubjectPrefix
	}
	return &Notifier{
		pub:    pub,
		prefix: strings.TrimSuffix(subjectPrefix, "."),
		logger: logger,
		now:    time.Now,
	}
}

// Subject returns the subject a notification type is published on
func (n *Notifier) Subject(notificationType string) string {
	token := strings.ToLower(strings.ReplaceAll(notificationType, ".", "_"))
	return n.prefix + "." + token
}

// Notify publishes one message carrying every recipient
func (n *Notifier) Notify(ctx context.Context, notification *port.Notification) (port.DeliveryStatus, error) {
	if err := ctx.Err(); err != nil {
		return port.DeliveryFailed, err
	}

	evt := NotificationEvent{
		EventType:   notification.Type,
		Summary:     notification.Summary(),
		PublishedAt: n.now().UTC(),
	}
	if inv := notification.Invoice; inv != nil {
		evt.InvoiceID = inv.ID
		evt.InvoiceNumber = inv.InvoiceNumber
		evt.Project = inv.ProjectKey()
		evt.Status = inv.Status
		evt.Amount = inv.Amount
		evt.Currency = inv.Currency
	}
	for _, u := range notification.Recipients {
		evt.Recipients = append(evt.Recipients, u.ID)
		if u.Email != "" {
			evt.Emails = append(evt.Emails, u.Email)
		}
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return port.DeliveryFailed, fmt.Errorf("failed to marshal notification: %w", err)
	}

	subject := n.Subject(notification.Type)
	if err := n.pub.Publish(subject, data); err != nil {
		n.logger.Warn("Failed to publish notification",
			zap.String("subject", subject),
			zap.String("invoice_id", evt.InvoiceID),
			zap.Error(err))
		return port.DeliveryFailed, fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	n.logger.Debug("Notification published",
		zap.String("subject", subject),
		zap.String("invoice_id", evt.InvoiceID),
		zap.Int("recipients", len(evt.Recipients)))
	return port.DeliverySent, nil
}

var (
	_ port.Notifier = (*Notifier)(nil)
	_ Publisher     = (*nats.Conn)(nil)
)
