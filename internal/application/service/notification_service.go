package service

import (
	"context"
	"errors"

	"github.com/garyjia/invoice-approval/internal/application/dispatcher"
	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/event"
	"github.com/garyjia/invoice-approval/internal/domain/rbac"
	domainwf "github.com/garyjia/invoice-approval/internal/domain/workflow"
)

// NotificationService turns invoice events into notifier calls.
// Delivery failures never propagate to the transition that fired the event.
type NotificationService struct {
	userRepo port.UserRepository
	notifier port.Notifier
	logger   Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(userRepo port.UserRepository, notifier port.Notifier, logger Logger) *NotificationService {
	return &NotificationService{
		userRepo: userRepo,
		notifier: notifier,
		logger:   logger,
	}
}

// Register subscribes the service to every event that reaches a person
func (s *NotificationService) Register(d dispatcher.Dispatcher) {
	for _, t := range []event.Type{
		event.TypeInvoiceSubmitted,
		event.TypeStatusChanged,
		event.TypePendingApproval,
		event.TypePaid,
		event.TypeRejected,
		event.TypeAwaitingInfo,
		event.TypeSettled,
	} {
		d.SubscribeNamed(t, "notification-"+t.String(), s.Handle)
	}
}

// Handle is a dispatcher.Handler. It always returns nil once the event is understood.
func (s *NotificationService) Handle(ctx context.Context, evt *event.Event) error {
	inv := evt.Invoice()
	if inv == nil {
		s.logger.Error("Event carries no invoice", "event_id", evt.ID, "event_type", evt.Type)
		return nil
	}

	notifType, recipients, err := s.route(ctx, evt, inv)
	if err != nil {
		s.logFailure(evt, err)
		return nil
	}
	if notifType == "" {
		return nil
	}
	if len(recipients) == 0 {
		s.logger.Info("No recipients for notification", "event_type", evt.Type, "invoice_id", inv.ID)
		return nil
	}

	status, err := s.notifier.Notify(ctx, &port.Notification{
		Type:       notifType,
		Invoice:    inv,
		Recipients: recipients,
	})
	if err != nil || status != port.DeliverySent {
		if err == nil {
			err = errors.New("notifier reported " + string(status))
		}
		s.logFailure(evt, err)
		return nil
	}

	s.logger.Info("Notification sent",
		"type", notifType,
		"invoice_id", inv.ID,
		"recipients", len(recipients),
	)
	return nil
}

func (s *NotificationService) logFailure(evt *event.Event, err error) {
	s.logger.Error("Notification failed",
		"kind", apperror.KindNotificationFailure,
		"event_type", evt.Type,
		"event_id", evt.ID,
		"invoice_id", evt.InvoiceID,
		"error", err,
	)
}

// route picks the notification type and recipients; an empty type means nobody is told
func (s *NotificationService) route(ctx context.Context, evt *event.Event, inv *entity.Invoice) (string, []*entity.User, error) {
	switch evt.Type {
	case event.TypeInvoiceSubmitted:
		users, err := s.projectManagers(ctx, inv)
		return evt.Type.String(), users, err
	case event.TypeStatusChanged:
		if evt.GetPayloadString(event.KeyNewStatus) != domainwf.StatePendingApproval.String() {
			return "", nil, nil
		}
		users, err := s.projectManagers(ctx, inv)
		return event.TypePendingApproval.String(), users, err
	case event.TypePendingApproval:
		users, err := s.userRepo.ListByRole(ctx, rbac.RoleFinanceUser.String())
		if err != nil {
			return "", nil, apperror.Persistence(err, "list finance users")
		}
		return evt.Type.String(), users, nil
	case event.TypePaid, event.TypeRejected, event.TypeAwaitingInfo, event.TypeSettled:
		submitter, err := s.userRepo.GetByID(ctx, inv.SubmittedByUserID)
		if err != nil {
			return "", nil, apperror.Persistence(err, "load submitter")
		}
		return evt.Type.String(), []*entity.User{submitter}, nil
	default:
		return "", nil, nil
	}
}

// projectManagers returns the assigned PM, or every PM on the invoice's project when none is assigned
func (s *NotificationService) projectManagers(ctx context.Context, inv *entity.Invoice) ([]*entity.User, error) {
	if inv.AssignedPM != nil && *inv.AssignedPM != "" {
		pm, err := s.userRepo.GetByID(ctx, *inv.AssignedPM)
		if err != nil {
			return nil, apperror.Persistence(err, "load assigned PM")
		}
		return []*entity.User{pm}, nil
	}

	pms, err := s.userRepo.ListByRole(ctx, rbac.RoleProjectManager.String())
	if err != nil {
		return nil, apperror.Persistence(err, "list project managers")
	}
	out := make([]*entity.User, 0, len(pms))
	for _, pm := range pms {
		if pm.HasProject(inv.ProjectKey()) {
			out = append(out, pm)
		}
	}
	return out, nil
}
