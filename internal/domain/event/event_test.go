package event

import (
	"testing"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"submitted", TypeInvoiceSubmitted, true},
		{"status changed", TypeStatusChanged, true},
		{"pending approval", TypePendingApproval, true},
		{"awaiting info", TypeAwaitingInfo, true},
		{"settled", TypeSettled, true},
		{"unknown", Type("instance.created"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestType_IsNotification(t *testing.T) {
	if TypeStatusChanged.IsNotification() {
		t.Error("status_changed should not be a notification")
	}
	if !TypeRejected.IsNotification() {
		t.Error("REJECTED should be a notification")
	}
	if Type("bogus").IsNotification() {
		t.Error("unknown type should not be a notification")
	}
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(TypePaid, "inv-1", "u-1", map[string]interface{}{"k": "v"})

	if e.ID == "" {
		t.Error("NewEvent() ID should not be empty")
	}
	if e.CorrelationID != e.ID {
		t.Errorf("CorrelationID = %v, want %v", e.CorrelationID, e.ID)
	}
	if e.InvoiceID != "inv-1" || e.ActorID != "u-1" {
		t.Errorf("NewEvent() = %+v", e)
	}
	if e.Timestamp.IsZero() {
		t.Error("NewEvent() Timestamp should be set")
	}

	other := NewEvent(TypePaid, "inv-1", "u-1", nil)
	if other.ID == e.ID {
		t.Error("NewEvent() should generate unique IDs")
	}
}

func TestNewEventWithCorrelation(t *testing.T) {
	e := NewEventWithCorrelation(TypeRejected, "inv-1", "u-1", nil, "corr-9")
	if e.CorrelationID != "corr-9" {
		t.Errorf("CorrelationID = %v, want corr-9", e.CorrelationID)
	}
	if e.ID == "corr-9" {
		t.Error("ID should be generated, not the correlation id")
	}
}

func TestForInvoice_SnapshotIsIsolated(t *testing.T) {
	project := "alpha"
	inv := &entity.Invoice{ID: "inv-1", Status: "Pending", Project: &project}

	e := ForInvoice(TypeInvoiceSubmitted, inv, "u-1")
	inv.Status = "Rejected"
	*inv.Project = "beta"

	snap := e.Invoice()
	if snap == nil {
		t.Fatal("Invoice() returned nil")
	}
	if snap.Status != "Pending" || snap.ProjectKey() != "alpha" {
		t.Errorf("snapshot mutated: %+v", snap)
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeStatusChanged, "inv-1", "u-1", map[string]interface{}{KeyAction: "VERIFY"})
	updated := original.WithPayload(KeyNewStatus, "VERIFIED")

	if _, exists := original.Payload[KeyNewStatus]; exists {
		t.Error("WithPayload() modified the original event")
	}
	if updated.GetPayloadString(KeyNewStatus) != "VERIFIED" {
		t.Errorf("new_status = %q", updated.GetPayloadString(KeyNewStatus))
	}
	if updated.GetPayloadString(KeyAction) != "VERIFY" {
		t.Error("WithPayload() dropped existing keys")
	}
	if updated.ID != original.ID {
		t.Error("WithPayload() should keep the event id")
	}
}

func TestEvent_InvoiceMissing(t *testing.T) {
	e := NewEvent(TypeStatusChanged, "inv-1", "u-1", nil)
	if e.Invoice() != nil {
		t.Error("Invoice() should be nil without a snapshot")
	}
	if e.GetPayloadString("missing") != "" {
		t.Error("GetPayloadString() should return empty for missing key")
	}
}
