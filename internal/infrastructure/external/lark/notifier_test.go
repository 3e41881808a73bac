package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

type sentMessage struct {
	receiveIDType, receiveID, msgType, content string
}

type fakeSender struct {
	sent    []sentMessage
	failFor map[string]bool
}

func (f *fakeSender) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	if f.failFor[receiveID] {
		return "", errors.New("API error: code=230001")
	}
	f.sent = append(f.sent, sentMessage{receiveIDType, receiveID, msgType, content})
	return "om_1", nil
}

func paidNotice(recipients ...*entity.User) *port.Notification {
	return &port.Notification{
		Type: "PAID",
		Invoice: &entity.Invoice{
			ID:            "inv-1",
			InvoiceNumber: "INV-0042",
			Amount:        1250.5,
			Currency:      "USD",
			Status:        "Approved",
		},
		Recipients: recipients,
	}
}

func TestNotifier_SendsTextByEmail(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, zap.NewNop())

	status, err := n.Notify(context.Background(), paidNotice(
		&entity.User{ID: "vendor", Email: "billing@acme.example"},
	))
	require.NoError(t, err)
	assert.Equal(t, port.DeliverySent, status)

	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, "email", msg.receiveIDType)
	assert.Equal(t, "billing@acme.example", msg.receiveID)
	assert.Equal(t, "text", msg.msgType)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg.content), &body))
	assert.Equal(t, "Invoice INV-0042 (1250.50 USD) has been approved for payment.", body["text"])
}

func TestNotifier_PartialFailureReportsFailed(t *testing.T) {
	sender := &fakeSender{failFor: map[string]bool{"b@example.com": true}}
	n := NewNotifier(sender, zap.NewNop())

	status, err := n.Notify(context.Background(), paidNotice(
		&entity.User{ID: "a", Email: "a@example.com"},
		&entity.User{ID: "b", Email: "b@example.com"},
		&entity.User{ID: "c", Email: "c@example.com"},
	))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "recipient b")
	assert.Equal(t, port.DeliveryFailed, status)
	assert.Len(t, sender.sent, 2, "other recipients still attempted")
}

func TestNotifier_SkipsRecipientsWithoutEmail(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, zap.NewNop())

	status, err := n.Notify(context.Background(), paidNotice(&entity.User{ID: "x"}))
	require.NoError(t, err)
	assert.Equal(t, port.DeliverySent, status)
	assert.Empty(t, sender.sent)
}

func TestTextContent_EscapesQuotes(t *testing.T) {
	content, err := textContent(`say "hi"` + "\n")
	require.NoError(t, err)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(content), &body))
	assert.Equal(t, "say \"hi\"\n", body["text"])
}
