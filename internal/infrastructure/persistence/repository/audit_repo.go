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

// AuditRepository implements port.AuditRepository. Rows are only ever inserted.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append records one audit entry
func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (id, invoice_id, username, action, details, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.InvoiceID,
		entry.Username,
		entry.Action,
		entry.Details,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("invoice_id", entry.InvoiceID),
			zap.String("action", entry.Action),
			zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByInvoiceID returns the invoice's entries in insertion order
func (r *AuditRepository) ListByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, invoice_id, username, action, details, timestamp
		FROM audit_entries
		WHERE invoice_id = ?
		ORDER BY timestamp ASC, rowid ASC
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, invoiceID)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.String("invoice_id", invoiceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var e entity.AuditEntry
		if err := rows.Scan(&e.ID, &e.InvoiceID, &e.Username, &e.Action, &e.Details, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
