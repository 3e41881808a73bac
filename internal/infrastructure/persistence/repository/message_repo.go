package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/infrastructure/persistence/sqlite"
)

// MessageRepository implements port.MessageRepository
type MessageRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sql.DB, logger *zap.Logger) port.MessageRepository {
	return &MessageRepository{
		db:     db,
		logger: logger,
	}
}

// Create stores a message
func (r *MessageRepository) Create(ctx context.Context, msg *entity.Message) error {
	query := `
		INSERT INTO messages (
			id, invoice_id, project_id, sender_id, recipient_id,
			subject, content, message_type, thread_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		msg.ID,
		msg.InvoiceID,
		msg.ProjectID,
		msg.SenderID,
		msg.RecipientID,
		msg.Subject,
		msg.Content,
		msg.MessageType,
		msg.ThreadID,
		msg.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create message", zap.String("invoice_id", msg.InvoiceID), zap.Error(err))
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// ListByInvoiceID returns the invoice's messages, oldest first
func (r *MessageRepository) ListByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.Message, error) {
	query := `
		SELECT id, invoice_id, project_id, sender_id, recipient_id,
			subject, content, message_type, thread_id, created_at
		FROM messages
		WHERE invoice_id = ?
		ORDER BY created_at ASC, rowid ASC
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, invoiceID)
	if err != nil {
		r.logger.Error("Failed to list messages", zap.String("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var messages []*entity.Message
	for rows.Next() {
		var m entity.Message
		err := rows.Scan(
			&m.ID,
			&m.InvoiceID,
			&m.ProjectID,
			&m.SenderID,
			&m.RecipientID,
			&m.Subject,
			&m.Content,
			&m.MessageType,
			&m.ThreadID,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, &m)
	}
	return messages, rows.Err()
}
