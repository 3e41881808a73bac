package service

import (
	"context"
	"io"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/rbac"
)

// AuditService is the read side of the audit log
type AuditService interface {
	List(ctx context.Context, actorID, invoiceID string) ([]*entity.AuditEntry, error)
	Export(ctx context.Context, actorID, invoiceID string, w io.Writer) error
}

type auditServiceImpl struct {
	auditRepo   port.AuditRepository
	invoiceRepo port.InvoiceRepository
	userRepo    port.UserRepository
	exporter    port.AuditExporter
	evaluator   *rbac.Evaluator
	logger      Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(
	auditRepo port.AuditRepository,
	invoiceRepo port.InvoiceRepository,
	userRepo port.UserRepository,
	exporter port.AuditExporter,
	evaluator *rbac.Evaluator,
	logger Logger,
) AuditService {
	if evaluator == nil {
		evaluator = rbac.NewEvaluator(nil)
	}
	return &auditServiceImpl{
		auditRepo:   auditRepo,
		invoiceRepo: invoiceRepo,
		userRepo:    userRepo,
		exporter:    exporter,
		evaluator:   evaluator,
		logger:      logger,
	}
}

func (s *auditServiceImpl) load(ctx context.Context, actorID, invoiceID string) (*entity.Invoice, []*entity.AuditEntry, error) {
	actor, subject, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, nil, err
	}
	if !s.evaluator.Allowed(subject, rbac.PermViewAuditLogs, nil) {
		return nil, nil, forbidden(actor, "view audit logs")
	}

	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, nil, apperror.Persistence(err, "load invoice")
	}

	entries, err := s.auditRepo.ListByInvoiceID(ctx, invoiceID)
	if err != nil {
		s.logger.Error("Failed to list audit entries", "invoice_id", invoiceID, "error", err)
		return nil, nil, apperror.Persistence(err, "list audit entries")
	}
	return inv, entries, nil
}

// List returns the invoice's audit entries, oldest first
func (s *auditServiceImpl) List(ctx context.Context, actorID, invoiceID string) ([]*entity.AuditEntry, error) {
	_, entries, err := s.load(ctx, actorID, invoiceID)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Export writes the invoice's audit trail as a workbook
func (s *auditServiceImpl) Export(ctx context.Context, actorID, invoiceID string, w io.Writer) error {
	inv, entries, err := s.load(ctx, actorID, invoiceID)
	if err != nil {
		return err
	}

	if err := s.exporter.WriteAudit(w, inv, entries); err != nil {
		s.logger.Error("Failed to export audit trail", "invoice_id", invoiceID, "error", err)
		return apperror.Wrap(apperror.KindInternal, err, "export audit trail")
	}

	s.logger.Info("Audit trail exported", "invoice_id", invoiceID, "entries", len(entries), "actor_id", actorID)
	return nil
}
