package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/garyjia/invoice-approval/internal/application/dispatcher"
	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/event"
	"github.com/garyjia/invoice-approval/internal/domain/rbac"
	domainwf "github.com/garyjia/invoice-approval/internal/domain/workflow"
	"github.com/garyjia/invoice-approval/pkg/keylock"
)

const tracerName = "github.com/garyjia/invoice-approval/workflow"

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	invoiceRepo port.InvoiceRepository
	userRepo    port.UserRepository
	auditRepo   port.AuditRepository
	messageRepo port.MessageRepository
	txManager   port.TransactionManager
	dispatcher  dispatcher.Dispatcher
	evaluator   *rbac.Evaluator
	locks       *keylock.Locker
	tracer      trace.Tracer
	logger      Logger
	now         func() time.Time
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithEvaluator replaces the default permission policy
func WithEvaluator(ev *rbac.Evaluator) EngineOption {
	return func(e *engineImpl) {
		e.evaluator = ev
	}
}

// WithLocker shares a per-invoice locker with other writers
func WithLocker(l *keylock.Locker) EngineOption {
	return func(e *engineImpl) {
		e.locks = l
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = l
	}
}

// WithClock overrides time.Now, used for approval stamps and delegation liveness
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// WithTracerProvider uses tp instead of the global provider
func WithTracerProvider(tp trace.TracerProvider) EngineOption {
	return func(e *engineImpl) {
		e.tracer = tp.Tracer(tracerName)
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	invoiceRepo port.InvoiceRepository,
	userRepo port.UserRepository,
	auditRepo port.AuditRepository,
	messageRepo port.MessageRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		invoiceRepo: invoiceRepo,
		userRepo:    userRepo,
		auditRepo:   auditRepo,
		messageRepo: messageRepo,
		txManager:   txManager,
		evaluator:   rbac.NewEvaluator(nil),
		locks:       keylock.New(),
		tracer:      otel.Tracer(tracerName),
		logger:      nopLogger{},
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// authorization is the outcome of resolving the effective actor
type authorization struct {
	actor     *entity.User
	delegator *entity.User
}

// SubmitTransition validates, authorizes and applies one action
func (e *engineImpl) SubmitTransition(ctx context.Context, req TransitionRequest) (result *TransitionResult, err error) {
	ctx, span := e.tracer.Start(ctx, "workflow.SubmitTransition",
		trace.WithAttributes(
			attribute.String("invoice.id", req.InvoiceID),
			attribute.String("workflow.action", req.Action),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperror.KindOf(err)))
		} else {
			span.SetAttributes(
				attribute.String("invoice.status", result.NewStatus.String()),
				attribute.Bool("workflow.idempotent", result.Idempotent),
			)
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	if strings.TrimSpace(req.ActorID) == "" {
		return nil, apperror.New(apperror.KindUnauthenticated, "no actor on request")
	}

	trigger, err := domainwf.ParseTrigger(req.Action)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindInvalidAction, err, "action %q is not supported", req.Action)
	}

	actor, err := e.userRepo.GetByID(ctx, req.ActorID)
	if err != nil {
		if errors.Is(err, apperror.NotFound) {
			return nil, apperror.New(apperror.KindUnauthenticated, "actor %s does not resolve", req.ActorID)
		}
		return nil, apperror.Persistence(err, "load actor")
	}

	release, err := e.locks.Lock(ctx, req.InvoiceID)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindPersistenceFailure, err, "acquire invoice lock")
	}
	defer release()

	var evt *event.Event
	err = e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var txErr error
		result, evt, txErr = e.apply(txCtx, actor, trigger, req)
		return txErr
	})
	if err != nil {
		e.logger.Error("Transition failed",
			"invoice_id", req.InvoiceID,
			"actor_id", req.ActorID,
			"action", trigger.String(),
			"kind", apperror.KindOf(err),
			"error", err,
		)
		return nil, err
	}

	if result.Idempotent {
		e.logger.Info("Transition already applied",
			"invoice_id", req.InvoiceID,
			"action", trigger.String(),
			"status", result.NewStatus.String(),
		)
		return result, nil
	}

	e.logger.Info("Transition applied",
		"invoice_id", req.InvoiceID,
		"actor_id", req.ActorID,
		"action", trigger.String(),
		"new_status", result.NewStatus.String(),
	)

	if e.dispatcher != nil && evt != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}

	return result, nil
}

// apply runs inside the transaction; every check reads the record loaded here
func (e *engineImpl) apply(ctx context.Context, actor *entity.User, trigger domainwf.Trigger, req TransitionRequest) (*TransitionResult, *event.Event, error) {
	inv, err := e.invoiceRepo.GetByID(ctx, req.InvoiceID)
	if err != nil {
		if errors.Is(err, apperror.NotFound) {
			return nil, nil, err
		}
		return nil, nil, apperror.Persistence(err, "load invoice")
	}

	from := domainwf.State(inv.Status)
	if !from.IsValid() {
		return nil, nil, apperror.Wrap(apperror.KindInternal, domainwf.ErrInvalidState, "invoice %s has status %q", inv.ID, inv.Status)
	}

	// The final-stage guard is reported ahead of permission so the answer does not depend on who asks
	if trigger.IsFinalDecision() && !domainwf.FinalStageGuard(inv) && !domainwf.AlreadyApplied(inv, trigger, actor.ID) {
		return nil, nil, apperror.New(apperror.KindPreconditionFailed,
			"PM approval is %s; final decision requires APPROVED", inv.PMApproval.Status)
	}

	auth, err := e.authorize(ctx, actor, trigger, inv)
	if err != nil {
		return nil, nil, err
	}

	if domainwf.AlreadyApplied(inv, trigger, actor.ID) {
		return &TransitionResult{NewStatus: from, Invoice: inv, Idempotent: true}, nil, nil
	}

	to, err := domainwf.InvoiceGraph.Next(inv, trigger)
	if err != nil {
		if errors.Is(err, domainwf.ErrGuardFailed) {
			return nil, nil, apperror.Wrap(apperror.KindPreconditionFailed, err, "final decision requires PM approval")
		}
		return nil, nil, apperror.Wrap(apperror.KindInvalidTransition, err, "%s is not allowed from %s", trigger, from)
	}

	effect, _ := domainwf.EffectOf(trigger)
	now := e.now()
	patch := effect.Patch(to, domainwf.Stamp{
		UserID: actor.ID,
		Role:   rbac.Normalize(actor.Role).String(),
		Notes:  req.Notes,
		At:     now,
	})

	if err := domainwf.CheckConsistency(patch.Apply(inv)); err != nil {
		return nil, nil, apperror.Wrap(apperror.KindInternal, err, "transition would leave invoice inconsistent")
	}

	updated, err := e.invoiceRepo.Update(ctx, inv.ID, patch)
	if err != nil {
		return nil, nil, apperror.Persistence(err, "update invoice")
	}

	result := &TransitionResult{NewStatus: to, Invoice: updated}

	if trigger == domainwf.TriggerRequestInfo {
		msg, err := e.infoRequest(ctx, actor, updated, req.Notes, now)
		if err != nil {
			return nil, nil, err
		}
		result.Message = msg
	}

	entry := &entity.AuditEntry{
		ID:        uuid.NewString(),
		InvoiceID: updated.ID,
		Username:  actorName(actor),
		Action:    effect.AuditAction,
		Details:   auditDetails(from, to, req.Notes, auth.delegator),
		Timestamp: now,
	}
	if err := e.auditRepo.Append(ctx, entry); err != nil {
		return nil, nil, apperror.Persistence(err, "append audit entry")
	}
	result.AuditEntry = entry

	evt := event.ForInvoice(eventTypeFor(trigger), updated, actor.ID).
		WithPayload(event.KeyOldStatus, from.String()).
		WithPayload(event.KeyNewStatus, to.String()).
		WithPayload(event.KeyAction, trigger.String())
	if auth.delegator != nil {
		evt = evt.WithPayload(event.KeyDelegator, auth.delegator.ID)
	}

	return result, evt, nil
}

// authorize resolves the effective subject for trigger on inv
func (e *engineImpl) authorize(ctx context.Context, actor *entity.User, trigger domainwf.Trigger, inv *entity.Invoice) (*authorization, error) {
	subject := rbac.SubjectFor(actor)
	auth := &authorization{actor: actor}

	switch trigger.Stage() {
	case domainwf.StagePM:
		if e.evaluator.AuthorizeApproval(subject, inv) {
			return auth, nil
		}
		if !mayActByDelegation(subject.Role, actor, inv) {
			break
		}
		delegator, err := e.liveDelegatorFor(ctx, actor.ID, inv)
		if err != nil {
			return nil, err
		}
		if delegator != nil {
			auth.delegator = delegator
			return auth, nil
		}

	case domainwf.StageFinal, domainwf.StageSettlement:
		if e.evaluator.Authorize(subject, rbac.PermFinalizePayment, inv) {
			return auth, nil
		}

	case domainwf.StagePipeline:
		if e.evaluator.Authorize(subject, rbac.PermProcessInvoice, inv) {
			return auth, nil
		}
		if trigger == domainwf.TriggerResolveInfo && inv.SubmittedByUserID == actor.ID {
			return auth, nil
		}
	}

	return nil, apperror.New(apperror.KindForbidden, "%s may not %s invoice %s", actorName(actor), trigger, inv.ID)
}

// mayActByDelegation keeps borrowed PM authority away from vendors, unknown roles and
// the invoice's own submitter
func mayActByDelegation(role rbac.Role, actor *entity.User, inv *entity.Invoice) bool {
	if !role.IsCanonical() || role == rbac.RoleVendor {
		return false
	}
	return inv.SubmittedByUserID != actor.ID
}

// liveDelegatorFor finds a project manager who has live-delegated to delegateID and
// whose own projects cover inv. Liveness is evaluated against the engine clock on every call.
func (e *engineImpl) liveDelegatorFor(ctx context.Context, delegateID string, inv *entity.Invoice) (*entity.User, error) {
	delegators, err := e.userRepo.FindDelegators(ctx, delegateID)
	if err != nil {
		return nil, apperror.Persistence(err, "find delegators")
	}

	now := e.now()
	for _, d := range delegators {
		if d.ID == delegateID || !d.DelegationLive(now) {
			continue
		}
		if rbac.Normalize(d.Role) != rbac.RoleProjectManager {
			continue
		}
		if e.evaluator.AuthorizeApproval(rbac.SubjectFor(d), inv) {
			return d, nil
		}
	}
	return nil, nil
}

// infoRequest writes the automated note to the submitter. An unresolvable submitter is skipped.
func (e *engineImpl) infoRequest(ctx context.Context, actor *entity.User, inv *entity.Invoice, notes string, now time.Time) (*entity.Message, error) {
	if inv.SubmittedByUserID == "" {
		return nil, nil
	}
	recipient, err := e.userRepo.GetByID(ctx, inv.SubmittedByUserID)
	if err != nil {
		if errors.Is(err, apperror.NotFound) {
			e.logger.Info("Submitter not found, skipping info request message",
				"invoice_id", inv.ID,
				"submitted_by", inv.SubmittedByUserID,
			)
			return nil, nil
		}
		return nil, apperror.Persistence(err, "load submitter")
	}

	content := notes
	if content == "" {
		content = fmt.Sprintf("Additional information is needed for invoice %s.", inv.InvoiceNumber)
	}

	id := uuid.NewString()
	msg := &entity.Message{
		ID:          id,
		InvoiceID:   inv.ID,
		ProjectID:   inv.ProjectKey(),
		SenderID:    actor.ID,
		RecipientID: recipient.ID,
		Subject:     fmt.Sprintf("Information requested for invoice %s", inv.InvoiceNumber),
		Content:     content,
		MessageType: entity.MessageTypeInfoRequest,
		ThreadID:    id,
		CreatedAt:   now,
	}
	if err := e.messageRepo.Create(ctx, msg); err != nil {
		return nil, apperror.Persistence(err, "create message")
	}
	return msg, nil
}

// PermittedActions lists the actions actorID could take on the invoice right now: the
// graph's edges out of the current status, filtered by the guard and by authorize
func (e *engineImpl) PermittedActions(ctx context.Context, actorID, invoiceID string) ([]domainwf.Trigger, error) {
	actor, err := e.userRepo.GetByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, apperror.NotFound) {
			return nil, apperror.New(apperror.KindUnauthenticated, "actor %s does not resolve", actorID)
		}
		return nil, apperror.Persistence(err, "load actor")
	}

	inv, err := e.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, apperror.Persistence(err, "load invoice")
	}

	var allowed []domainwf.Trigger
	for _, t := range domainwf.InvoiceGraph.Permitted(domainwf.State(inv.Status)) {
		if t.IsFinalDecision() && !domainwf.FinalStageGuard(inv) {
			continue
		}
		if _, err := e.authorize(ctx, actor, t, inv); err != nil {
			if apperror.KindOf(err) == apperror.KindForbidden {
				continue
			}
			return nil, err
		}
		allowed = append(allowed, t)
	}
	return allowed, nil
}

func actorName(u *entity.User) string {
	if u.Username != "" {
		return u.Username
	}
	return u.ID
}

func auditDetails(from, to domainwf.State, notes string, delegator *entity.User) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s -> %s", from, to)
	if notes != "" {
		fmt.Fprintf(&b, "; notes: %s", notes)
	}
	if delegator != nil {
		fmt.Fprintf(&b, "; via delegation from %s", actorName(delegator))
	}
	return b.String()
}
