package entity

import "time"

// AuditEntry is one append-only record of a mutating action on an invoice
type AuditEntry struct {
	ID        string    `json:"id"`
	InvoiceID string    `json:"invoiceId"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}
