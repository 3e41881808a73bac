package workflow

import (
	"context"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
	domainwf "github.com/garyjia/invoice-approval/internal/domain/workflow"
)

// TransitionRequest is one caller request to move an invoice through the workflow
type TransitionRequest struct {
	ActorID   string
	InvoiceID string
	Action    string
	Notes     string
}

// TransitionResult describes the outcome of an accepted request
type TransitionResult struct {
	NewStatus domainwf.State
	Invoice   *entity.Invoice

	// AuditEntry is nil for an idempotent repeat
	AuditEntry *entity.AuditEntry

	// Message is set only when REQUEST_INFO reached a resolvable submitter
	Message *entity.Message

	// Idempotent is true when the invoice already reflected the action and nothing was written
	Idempotent bool
}

// WorkflowEngine is the single writer of invoice status
type WorkflowEngine interface {
	// SubmitTransition validates, authorizes and applies one action
	SubmitTransition(ctx context.Context, req TransitionRequest) (*TransitionResult, error)

	// PermittedActions lists the actions actorID may take on the invoice in its current status
	PermittedActions(ctx context.Context, actorID, invoiceID string) ([]domainwf.Trigger, error)
}
