package port

import (
	"context"
	"fmt"
	"io"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/event"
)

// DeliveryStatus is the outcome reported by a Notifier
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "SENT"
	DeliveryFailed DeliveryStatus = "FAILED"
)

// Notification is one outbound notice about an invoice
type Notification struct {
	Type       string
	Invoice    *entity.Invoice
	Recipients []*entity.User
}

// Summary renders a one-line human description of the notice
func (n *Notification) Summary() string {
	inv := n.Invoice
	if inv == nil {
		return n.Type
	}
	amount := fmt.Sprintf("%.2f %s", inv.Amount, inv.Currency)
	switch n.Type {
	case event.TypeInvoiceSubmitted.String():
		return fmt.Sprintf("Invoice %s (%s) was submitted for project %s.", inv.InvoiceNumber, amount, projectLabel(inv))
	case event.TypePendingApproval.String():
		return fmt.Sprintf("Invoice %s (%s) for project %s is waiting for your approval.", inv.InvoiceNumber, amount, projectLabel(inv))
	case event.TypePaid.String():
		return fmt.Sprintf("Invoice %s (%s) has been approved for payment.", inv.InvoiceNumber, amount)
	case event.TypeRejected.String():
		return fmt.Sprintf("Invoice %s (%s) was rejected.", inv.InvoiceNumber, amount)
	case event.TypeAwaitingInfo.String():
		return fmt.Sprintf("More information is needed for invoice %s.", inv.InvoiceNumber)
	case event.TypeSettled.String():
		return fmt.Sprintf("Invoice %s (%s) has been paid.", inv.InvoiceNumber, amount)
	default:
		return fmt.Sprintf("Invoice %s is now %s.", inv.InvoiceNumber, inv.Status)
	}
}

func projectLabel(inv *entity.Invoice) string {
	if p := inv.ProjectKey(); p != "" {
		return p
	}
	return "(none)"
}

// Notifier delivers notifications. Implementations log their own outcome.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) (DeliveryStatus, error)
}

// AuditExporter renders an invoice's audit trail to w
type AuditExporter interface {
	WriteAudit(w io.Writer, invoice *entity.Invoice, entries []*entity.AuditEntry) error
}
