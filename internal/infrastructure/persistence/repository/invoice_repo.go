package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/infrastructure/persistence/sqlite"
)

const defaultListLimit = 100

const invoiceColumnCount = 27

const invoiceColumns = `
	id, submitted_by_user_id, vendor_id, project, assigned_pm, status,
	pm_status, pm_approved_by, pm_approved_by_role, pm_approved_at, pm_notes,
	admin_status, admin_approved_by, admin_approved_by_role, admin_approved_at, admin_notes,
	hil_status, hil_approved_by, hil_approved_by_role, hil_approved_at, hil_notes,
	amount, currency, invoice_number, invoice_date, created_at, updated_at`

// InvoiceRepository implements port.InvoiceRepository
type InvoiceRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewInvoiceRepository creates a new invoice repository
func NewInvoiceRepository(db *sql.DB, logger *zap.Logger) port.InvoiceRepository {
	return &InvoiceRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new invoice
func (r *InvoiceRepository) Create(ctx context.Context, inv *entity.Invoice) error {
	query := `INSERT INTO invoices (` + invoiceColumns + `) VALUES (` + placeholders(invoiceColumnCount) + `)`

	args := []interface{}{
		inv.ID, inv.SubmittedByUserID, nullString(inv.VendorID), nullString(inv.Project), nullString(inv.AssignedPM), inv.Status,
	}
	args = append(args, recordArgs(inv.PMApproval)...)
	args = append(args, recordArgs(inv.AdminApproval)...)
	args = append(args, recordArgs(inv.HILReview)...)
	args = append(args, inv.Amount, inv.Currency, inv.InvoiceNumber, inv.Date.UTC(), inv.CreatedAt.UTC(), inv.UpdatedAt.UTC())

	if _, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to create invoice", zap.String("invoice_id", inv.ID), zap.Error(err))
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

// GetByID retrieves an invoice by ID
func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = ?`

	inv, err := scanInvoice(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.New(apperror.KindNotFound, "invoice %s not found", id)
	}
	if err != nil {
		r.logger.Error("Failed to get invoice by ID", zap.String("invoice_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

// Update applies the non-nil patch fields and returns the stored row
func (r *InvoiceRepository) Update(ctx context.Context, id string, patch entity.InvoicePatch) (*entity.Invoice, error) {
	var sets []string
	var args []interface{}

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *patch.Status)
	}
	for _, rec := range []struct {
		prefix string
		value  *entity.ApprovalRecord
	}{
		{"pm", patch.PMApproval},
		{"admin", patch.AdminApproval},
		{"hil", patch.HILReview},
	} {
		if rec.value == nil {
			continue
		}
		sets = append(sets,
			rec.prefix+"_status = ?",
			rec.prefix+"_approved_by = ?",
			rec.prefix+"_approved_by_role = ?",
			rec.prefix+"_approved_at = ?",
			rec.prefix+"_notes = ?",
		)
		args = append(args, recordArgs(*rec.value)...)
	}
	if patch.AssignedPM != nil {
		sets = append(sets, "assigned_pm = ?")
		args = append(args, nullString(patch.AssignedPM))
	}

	exec := sqlite.Executor(ctx, r.db)
	if len(sets) > 0 {
		sets = append(sets, "updated_at = ?")
		args = append(args, time.Now().UTC(), id)

		query := `UPDATE invoices SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
		result, err := exec.ExecContext(ctx, query, args...)
		if err != nil {
			r.logger.Error("Failed to update invoice", zap.String("invoice_id", id), zap.Error(err))
			return nil, fmt.Errorf("failed to update invoice: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return nil, apperror.New(apperror.KindNotFound, "invoice %s not found", id)
		}
	}

	return r.GetByID(ctx, id)
}

// List returns invoices matching filter, newest first
func (r *InvoiceRepository) List(ctx context.Context, filter entity.InvoiceFilter) ([]*entity.Invoice, error) {
	var where []string
	var args []interface{}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if v := filter.Visibility; v != nil {
		clause := "submitted_by_user_id = ?"
		args = append(args, v.SubmittedBy)
		if len(v.Projects) > 0 {
			clause += " OR project IN (" + placeholders(len(v.Projects)) + ")"
			for _, p := range v.Projects {
				args = append(args, p)
			}
		}
		where = append(where, "("+clause+")")
	}

	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list invoices", zap.Error(err))
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*entity.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanInvoice(row rowScanner) (*entity.Invoice, error) {
	var inv entity.Invoice
	var vendorID, project, assignedPM sql.NullString
	var pmAt, adminAt, hilAt sql.NullTime

	err := row.Scan(
		&inv.ID, &inv.SubmittedByUserID, &vendorID, &project, &assignedPM, &inv.Status,
		&inv.PMApproval.Status, &inv.PMApproval.ApprovedBy, &inv.PMApproval.ApprovedByRole, &pmAt, &inv.PMApproval.Notes,
		&inv.AdminApproval.Status, &inv.AdminApproval.ApprovedBy, &inv.AdminApproval.ApprovedByRole, &adminAt, &inv.AdminApproval.Notes,
		&inv.HILReview.Status, &inv.HILReview.ApprovedBy, &inv.HILReview.ApprovedByRole, &hilAt, &inv.HILReview.Notes,
		&inv.Amount, &inv.Currency, &inv.InvoiceNumber, &inv.Date, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.VendorID = stringPtr(vendorID)
	inv.Project = stringPtr(project)
	inv.AssignedPM = stringPtr(assignedPM)
	inv.PMApproval.ApprovedAt = timePtr(pmAt)
	inv.AdminApproval.ApprovedAt = timePtr(adminAt)
	inv.HILReview.ApprovedAt = timePtr(hilAt)
	return &inv, nil
}

func recordArgs(rec entity.ApprovalRecord) []interface{} {
	var at interface{}
	if rec.ApprovedAt != nil {
		at = rec.ApprovedAt.UTC()
	}
	status := rec.Status
	if status == "" {
		status = entity.ApprovalPending
	}
	return []interface{}{string(status), rec.ApprovedBy, rec.ApprovedByRole, at, rec.Notes}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
