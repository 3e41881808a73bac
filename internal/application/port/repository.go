package port

import (
	"context"

	"github.com/garyjia/invoice-approval/internal/domain/entity"
)

// InvoiceRepository defines persistence operations for Invoice.
// Implementations return an apperror NotFound when an id does not resolve.
type InvoiceRepository interface {
	Create(ctx context.Context, invoice *entity.Invoice) error
	GetByID(ctx context.Context, id string) (*entity.Invoice, error)

	// Update applies a partial update and returns the stored result
	Update(ctx context.Context, id string, patch entity.InvoicePatch) (*entity.Invoice, error)

	List(ctx context.Context, filter entity.InvoiceFilter) ([]*entity.Invoice, error)
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	Update(ctx context.Context, id string, patch entity.UserPatch) (*entity.User, error)

	// FindDelegators returns users whose delegatedTo points at delegateID.
	// Expiry is not checked here; callers decide liveness against their own clock.
	FindDelegators(ctx context.Context, delegateID string) ([]*entity.User, error)

	// ListByRole matches the stored role string exactly
	ListByRole(ctx context.Context, role string) ([]*entity.User, error)
	List(ctx context.Context, limit, offset int) ([]*entity.User, error)
}

// AuditRepository is append-only
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error

	// ListByInvoiceID returns entries oldest first
	ListByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.AuditEntry, error)
}

// MessageRepository defines persistence operations for Message
type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	ListByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.Message, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
