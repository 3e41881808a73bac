// Package export renders invoice audit trails as Excel workbooks.
package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

const (
	SummarySheet = "Invoice"
	AuditSheet   = "Audit Trail"

	timeLayout = "2006-01-02 15:04:05"
)

var auditHeader = []interface{}{"Timestamp (UTC)", "User", "Action", "Details"}

// AuditWorkbook writes a two-sheet workbook: invoice summary then the audit rows in order
type AuditWorkbook struct {
	logger *zap.Logger
}

// NewAuditWorkbook creates an xlsx exporter
func NewAuditWorkbook(logger *zap.Logger) *AuditWorkbook {
	return &AuditWorkbook{logger: logger}
}

// WriteAudit implements port.AuditExporter
func (a *AuditWorkbook) WriteAudit(w io.Writer, inv *entity.Invoice, entries []*entity.AuditEntry) error {
	if inv == nil {
		return fmt.Errorf("invoice is required")
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := a.fillSummary(f, inv); err != nil {
		return err
	}

	if _, err := f.NewSheet(AuditSheet); err != nil {
		return fmt.Errorf("failed to create audit sheet: %w", err)
	}
	if err := f.SetSheetRow(AuditSheet, "A1", &auditHeader); err != nil {
		return fmt.Errorf("failed to write audit header: %w", err)
	}
	for i, e := range entries {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []interface{}{formatTime(e.Timestamp), e.Username, e.Action, e.Details}
		if err := f.SetSheetRow(AuditSheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write audit row %d: %w", i+1, err)
		}
	}
	if err := f.SetColWidth(AuditSheet, "A", "A", 20); err != nil {
		a.logger.Warn("Failed to set column width", zap.Error(err))
	}
	if err := f.SetColWidth(AuditSheet, "D", "D", 60); err != nil {
		a.logger.Warn("Failed to set column width", zap.Error(err))
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	a.logger.Info("Audit workbook exported",
		zap.String("invoice_id", inv.ID),
		zap.Int("entries", len(entries)))
	return nil
}

func (a *AuditWorkbook) fillSummary(f *excelize.File, inv *entity.Invoice) error {
	rows := [][]interface{}{
		{"Invoice ID", inv.ID},
		{"Invoice Number", inv.InvoiceNumber},
		{"Project", inv.ProjectKey()},
		{"Status", inv.Status},
		{"Amount", inv.Amount},
		{"Currency", inv.Currency},
		{"Invoice Date", inv.Date.UTC().Format("2006-01-02")},
		{"Submitted By", inv.SubmittedByUserID},
		{"PM Approval", approvalLabel(inv.PMApproval)},
		{"Admin Approval", approvalLabel(inv.AdminApproval)},
		{"HIL Review", approvalLabel(inv.HILReview)},
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("failed to write summary: %w", err)
		}
	}
	return nil
}

func approvalLabel(r entity.ApprovalRecord) string {
	if r.ApprovedBy == "" {
		return string(r.Status)
	}
	label := fmt.Sprintf("%s by %s", r.Status, r.ApprovedBy)
	if r.ApprovedByRole != "" {
		label += " (" + r.ApprovedByRole + ")"
	}
	if r.ApprovedAt != nil {
		label += " at " + formatTime(*r.ApprovedAt)
	}
	return label
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

var _ port.AuditExporter = (*AuditWorkbook)(nil)
