package event

// Type identifies the type of domain event
type Type string

const (
	TypeInvoiceSubmitted Type = "invoice.submitted"
	TypeStatusChanged    Type = "invoice.status_changed"

	// Notification-bearing transitions
	TypePendingApproval Type = "PENDING_APPROVAL"
	TypePaid            Type = "PAID"
	TypeRejected        Type = "REJECTED"
	TypeAwaitingInfo    Type = "AWAITING_INFO"
	TypeSettled         Type = "SETTLED"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeInvoiceSubmitted,
		TypeStatusChanged,
		TypePendingApproval,
		TypePaid,
		TypeRejected,
		TypeAwaitingInfo,
		TypeSettled:
		return true
	default:
		return false
	}
}

// IsNotification reports whether the event should reach a person
func (t Type) IsNotification() bool {
	return t != TypeStatusChanged && t.IsValid()
}
