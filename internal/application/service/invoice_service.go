package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/invoice-approval/internal/application/dispatcher"
	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/event"
	"github.com/garyjia/invoice-approval/internal/domain/rbac"
	domainwf "github.com/garyjia/invoice-approval/internal/domain/workflow"
	"github.com/garyjia/invoice-approval/pkg/utils"
)

// SubmitInvoiceRequest carries the fields a submitter provides
type SubmitInvoiceRequest struct {
	InvoiceNumber string
	Amount        float64
	Currency      string
	Date          time.Time
	Project       string
	VendorID      string
	AssignedPM    string
	// Path is entity.SubmissionManual (default) or entity.SubmissionAuto
	Path string
}

// InvoiceService handles intake and visibility-filtered reads
type InvoiceService interface {
	Submit(ctx context.Context, actorID string, req SubmitInvoiceRequest) (*entity.Invoice, error)
	Get(ctx context.Context, actorID, invoiceID string) (*entity.Invoice, error)
	List(ctx context.Context, actorID string, filter entity.InvoiceFilter) ([]*entity.Invoice, error)
	Messages(ctx context.Context, actorID, invoiceID string) ([]*entity.Message, error)
}

type invoiceServiceImpl struct {
	invoiceRepo port.InvoiceRepository
	userRepo    port.UserRepository
	auditRepo   port.AuditRepository
	messageRepo port.MessageRepository
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	evaluator   *rbac.Evaluator
	logger      Logger
	now         func() time.Time
}

// NewInvoiceService creates a new InvoiceService
func NewInvoiceService(
	invoiceRepo port.InvoiceRepository,
	userRepo port.UserRepository,
	auditRepo port.AuditRepository,
	messageRepo port.MessageRepository,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	evaluator *rbac.Evaluator,
	logger Logger,
	now func() time.Time,
) InvoiceService {
	if evaluator == nil {
		evaluator = rbac.NewEvaluator(nil)
	}
	if now == nil {
		now = time.Now
	}
	return &invoiceServiceImpl{
		invoiceRepo: invoiceRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		messageRepo: messageRepo,
		txManager:   txManager,
		dispatcher:  d,
		evaluator:   evaluator,
		logger:      logger,
		now:         now,
	}
}

func (s *invoiceServiceImpl) validate(req *SubmitInvoiceRequest) error {
	req.InvoiceNumber = utils.SanitizeString(req.InvoiceNumber)
	if err := utils.ValidateInvoiceNumber(req.InvoiceNumber); err != nil {
		return apperror.Wrap(apperror.KindInvalidArgument, err, "invalid invoice number")
	}
	if err := utils.ValidateAmount(req.Amount); err != nil {
		return apperror.Wrap(apperror.KindInvalidArgument, err, "invalid amount")
	}
	if req.Currency != "" && !strings.EqualFold(req.Currency, entity.DefaultCurrency) {
		return apperror.New(apperror.KindInvalidArgument, "currency must be %s", entity.DefaultCurrency)
	}
	if req.Project != "" {
		if err := utils.ValidateProjectKey(req.Project); err != nil {
			return apperror.Wrap(apperror.KindInvalidArgument, err, "invalid project")
		}
	}
	switch req.Path {
	case "", entity.SubmissionManual, entity.SubmissionAuto:
	default:
		return apperror.New(apperror.KindInvalidArgument, "unknown submission path %q", req.Path)
	}
	return nil
}

// Submit records a new invoice with every approval record PENDING
func (s *invoiceServiceImpl) Submit(ctx context.Context, actorID string, req SubmitInvoiceRequest) (*entity.Invoice, error) {
	actor, subject, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	if !s.evaluator.Allowed(subject, rbac.PermSubmitInvoice, nil) {
		return nil, forbidden(actor, "submit invoices")
	}
	if err := s.validate(&req); err != nil {
		return nil, err
	}

	if req.AssignedPM != "" {
		pm, err := s.userRepo.GetByID(ctx, req.AssignedPM)
		if err != nil {
			return nil, apperror.Persistence(err, "load assigned PM")
		}
		if rbac.Normalize(pm.Role) != rbac.RoleProjectManager {
			return nil, apperror.New(apperror.KindInvalidArgument, "assigned PM %s is not a project manager", pm.ID)
		}
	}

	status := domainwf.StatePending
	if req.Path == entity.SubmissionAuto {
		status = domainwf.StateReceived
	}

	now := s.now()
	inv := &entity.Invoice{
		ID:                uuid.NewString(),
		SubmittedByUserID: actor.ID,
		VendorID:          entity.StringPtr(req.VendorID),
		Project:           entity.StringPtr(req.Project),
		AssignedPM:        entity.StringPtr(req.AssignedPM),
		Status:            status.String(),
		PMApproval:        entity.PendingRecord(),
		AdminApproval:     entity.PendingRecord(),
		HILReview:         entity.PendingRecord(),
		Amount:            req.Amount,
		Currency:          entity.DefaultCurrency,
		InvoiceNumber:     req.InvoiceNumber,
		Date:              req.Date,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if inv.Date.IsZero() {
		inv.Date = now
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.invoiceRepo.Create(txCtx, inv); err != nil {
			return apperror.Persistence(err, "create invoice")
		}
		entry := &entity.AuditEntry{
			ID:        uuid.NewString(),
			InvoiceID: inv.ID,
			Username:  actor.Username,
			Action:    entity.AuditActionSubmit,
			Details:   "submitted " + inv.InvoiceNumber + " as " + inv.Status,
			Timestamp: now,
		}
		if err := s.auditRepo.Append(txCtx, entry); err != nil {
			return apperror.Persistence(err, "append audit entry")
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to submit invoice", "invoice_number", req.InvoiceNumber, "error", err)
		return nil, err
	}

	s.logger.Info("Invoice submitted",
		"invoice_id", inv.ID,
		"invoice_number", inv.InvoiceNumber,
		"status", inv.Status,
		"submitted_by", actor.ID,
	)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.ForInvoice(event.TypeInvoiceSubmitted, inv, actor.ID))
	}
	return inv, nil
}

// visibility computes what subject may read; nil means unrestricted
func (s *invoiceServiceImpl) visibility(ctx context.Context, actor *entity.User, subject rbac.Subject) (*entity.InvoiceVisibility, error) {
	switch subject.Role {
	case rbac.RoleAdmin, rbac.RoleFinanceUser:
		return nil, nil
	case rbac.RoleProjectManager:
		projects := append([]string{}, subject.Projects...)
		delegators, err := s.userRepo.FindDelegators(ctx, actor.ID)
		if err != nil {
			return nil, apperror.Persistence(err, "find delegators")
		}
		now := s.now()
		for _, d := range delegators {
			if d.DelegationLive(now) && rbac.Normalize(d.Role) == rbac.RoleProjectManager {
				projects = append(projects, d.AssignedProjects...)
			}
		}
		return &entity.InvoiceVisibility{SubmittedBy: actor.ID, Projects: projects}, nil
	default:
		return &entity.InvoiceVisibility{SubmittedBy: actor.ID}, nil
	}
}

func canSee(v *entity.InvoiceVisibility, inv *entity.Invoice) bool {
	if v == nil {
		return true
	}
	if inv.SubmittedByUserID == v.SubmittedBy {
		return true
	}
	project := inv.ProjectKey()
	if project == "" {
		return false
	}
	for _, p := range v.Projects {
		if p == project {
			return true
		}
	}
	return false
}

// Get returns the invoice when the actor may see it. Invisible invoices read as NotFound.
func (s *invoiceServiceImpl) Get(ctx context.Context, actorID, invoiceID string) (*entity.Invoice, error) {
	actor, subject, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	v, err := s.visibility(ctx, actor, subject)
	if err != nil {
		return nil, err
	}

	inv, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.Persistence(err, "load invoice")
	}
	if !canSee(v, inv) {
		return nil, apperror.New(apperror.KindNotFound, "invoice %s not found", invoiceID)
	}
	return inv, nil
}

// List returns the invoices visible to the actor
func (s *invoiceServiceImpl) List(ctx context.Context, actorID string, filter entity.InvoiceFilter) ([]*entity.Invoice, error) {
	actor, subject, err := loadActor(ctx, s.userRepo, actorID)
	if err != nil {
		return nil, err
	}
	v, err := s.visibility(ctx, actor, subject)
	if err != nil {
		return nil, err
	}
	if filter.Status != "" && !domainwf.State(filter.Status).IsValid() {
		return nil, apperror.New(apperror.KindInvalidArgument, "unknown status %q", filter.Status)
	}

	filter.Visibility = v
	invoices, err := s.invoiceRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list invoices", "actor_id", actorID, "error", err)
		return nil, apperror.Persistence(err, "list invoices")
	}
	return invoices, nil
}

// Messages returns the automated notes on a visible invoice
func (s *invoiceServiceImpl) Messages(ctx context.Context, actorID, invoiceID string) ([]*entity.Message, error) {
	if _, err := s.Get(ctx, actorID, invoiceID); err != nil {
		return nil, err
	}
	msgs, err := s.messageRepo.ListByInvoiceID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.Persistence(err, "list messages")
	}
	return msgs, nil
}
