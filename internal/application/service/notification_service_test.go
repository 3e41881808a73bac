package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/event"
)

func assignedInvoice() *entity.Invoice {
	inv := testInvoice("inv-1", "P1", "vendor")
	inv.AssignedPM = entity.StringPtr("pm1")
	return inv
}

func recipientIDs(n *port.Notification) []string {
	out := make([]string, 0, len(n.Recipients))
	for _, u := range n.Recipients {
		out = append(out, u.ID)
	}
	return out
}

func TestNotificationService_Routing(t *testing.T) {
	unassigned := testInvoice("inv-2", "P1", "vendor")

	tests := []struct {
		name     string
		evt      *event.Event
		wantType string
		wantTo   []string
	}{
		{
			name:     "submitted goes to assigned PM",
			evt:      event.ForInvoice(event.TypeInvoiceSubmitted, assignedInvoice(), "vendor"),
			wantType: "invoice.submitted",
			wantTo:   []string{"pm1"},
		},
		{
			name:     "submitted without assignment goes to project PMs",
			evt:      event.ForInvoice(event.TypeInvoiceSubmitted, unassigned, "vendor"),
			wantType: "invoice.submitted",
			wantTo:   []string{"pm1"},
		},
		{
			name: "ready for PM review",
			evt: event.ForInvoice(event.TypeStatusChanged, assignedInvoice(), "fin").
				WithPayload(event.KeyNewStatus, "PENDING_APPROVAL"),
			wantType: "PENDING_APPROVAL",
			wantTo:   []string{"pm1"},
		},
		{
			name:     "PM approval goes to finance",
			evt:      event.ForInvoice(event.TypePendingApproval, assignedInvoice(), "pm1"),
			wantType: "PENDING_APPROVAL",
			wantTo:   []string{"fin"},
		},
		{
			name:     "paid goes to submitter",
			evt:      event.ForInvoice(event.TypePaid, assignedInvoice(), "fin"),
			wantType: "PAID",
			wantTo:   []string{"vendor"},
		},
		{
			name:     "rejection goes to submitter",
			evt:      event.ForInvoice(event.TypeRejected, assignedInvoice(), "pm1"),
			wantType: "REJECTED",
			wantTo:   []string{"vendor"},
		},
		{
			name:     "info request goes to submitter",
			evt:      event.ForInvoice(event.TypeAwaitingInfo, assignedInvoice(), "pm1"),
			wantType: "AWAITING_INFO",
			wantTo:   []string{"vendor"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			users := testUsers()
			// stored roles are canonical
			userByID(users, "pm1").Role = "PROJECT_MANAGER"
			userByID(users, "pm2").Role = "PROJECT_MANAGER"
			notifier := &mockNotifier{}
			svc := NewNotificationService(newMockUserRepo(users...), notifier, &mockLogger{})

			if err := svc.Handle(context.Background(), tt.evt); err != nil {
				t.Fatalf("Handle returned %v", err)
			}
			if len(notifier.calls) != 1 {
				t.Fatalf("notifier called %d times, want 1", len(notifier.calls))
			}
			call := notifier.calls[0]
			if call.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", call.Type, tt.wantType)
			}
			got := recipientIDs(call)
			if len(got) != len(tt.wantTo) || got[0] != tt.wantTo[0] {
				t.Errorf("recipients = %v, want %v", got, tt.wantTo)
			}
		})
	}
}

func TestNotificationService_IgnoresOtherStatusChanges(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewNotificationService(newMockUserRepo(testUsers()...), notifier, &mockLogger{})

	evt := event.ForInvoice(event.TypeStatusChanged, assignedInvoice(), "fin").
		WithPayload(event.KeyNewStatus, "VERIFIED")
	if err := svc.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle returned %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Errorf("notifier called %d times, want 0", len(notifier.calls))
	}
}

func TestNotificationService_FailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name     string
		notifier *mockNotifier
		users    *mockUserRepo
		evt      *event.Event
	}{
		{
			name: "notifier error",
			notifier: &mockNotifier{notifyFunc: func(ctx context.Context, n *port.Notification) (port.DeliveryStatus, error) {
				return port.DeliveryFailed, errors.New("connection refused")
			}},
			users: newMockUserRepo(testUsers()...),
			evt:   event.ForInvoice(event.TypePaid, assignedInvoice(), "fin"),
		},
		{
			name: "notifier reports failure without error",
			notifier: &mockNotifier{notifyFunc: func(ctx context.Context, n *port.Notification) (port.DeliveryStatus, error) {
				return port.DeliveryFailed, nil
			}},
			users: newMockUserRepo(testUsers()...),
			evt:   event.ForInvoice(event.TypePaid, assignedInvoice(), "fin"),
		},
		{
			name:     "submitter missing",
			notifier: &mockNotifier{},
			users:    newMockUserRepo(),
			evt:      event.ForInvoice(event.TypeRejected, assignedInvoice(), "pm1"),
		},
		{
			name:     "finance lookup fails",
			notifier: &mockNotifier{},
			users: &mockUserRepo{
				users: map[string]*entity.User{},
				listByRoleFunc: func(ctx context.Context, role string) ([]*entity.User, error) {
					return nil, errors.New("database is locked")
				},
			},
			evt: event.ForInvoice(event.TypePendingApproval, assignedInvoice(), "pm1"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &mockLogger{}
			svc := NewNotificationService(tt.users, tt.notifier, logger)

			if err := svc.Handle(context.Background(), tt.evt); err != nil {
				t.Errorf("Handle returned %v, want nil", err)
			}
			if len(logger.errors) != 1 || logger.errors[0] != "Notification failed" {
				t.Errorf("logged errors = %v, want one notification failure", logger.errors)
			}
		})
	}
}

func TestNotificationService_EventWithoutInvoice(t *testing.T) {
	notifier := &mockNotifier{}
	logger := &mockLogger{}
	svc := NewNotificationService(newMockUserRepo(testUsers()...), notifier, logger)

	evt := event.NewEvent(event.TypePaid, "inv-1", "fin", nil)
	if err := svc.Handle(context.Background(), evt); err != nil {
		t.Fatalf("Handle returned %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Error("notifier called without an invoice")
	}
	if len(logger.errors) != 1 {
		t.Errorf("logged %d errors, want 1", len(logger.errors))
	}
}

func TestNotificationService_Register(t *testing.T) {
	d := &mockDispatcher{}
	svc := NewNotificationService(newMockUserRepo(), &mockNotifier{}, &mockLogger{})

	svc.Register(d)

	for _, typ := range []event.Type{
		event.TypeInvoiceSubmitted,
		event.TypeStatusChanged,
		event.TypePendingApproval,
		event.TypePaid,
		event.TypeRejected,
		event.TypeAwaitingInfo,
		event.TypeSettled,
	} {
		if len(d.subscribed[typ]) != 1 {
			t.Errorf("%s: %d subscriptions, want 1", typ, len(d.subscribed[typ]))
		}
	}
}
