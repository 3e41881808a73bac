package entity

import "time"

// Message is an automated note between parties on an invoice.
// Each info request opens its own thread, so ThreadID equals ID on creation.
type Message struct {
	ID          string    `json:"id"`
	InvoiceID   string    `json:"invoiceId"`
	ProjectID   string    `json:"projectId,omitempty"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Subject     string    `json:"subject"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	ThreadID    string    `json:"threadId"`
	CreatedAt   time.Time `json:"createdAt"`
}
