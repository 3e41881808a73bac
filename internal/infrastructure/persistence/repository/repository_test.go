package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-approval/pkg/database"
)

type testStore struct {
	tx       *sqlite.TxManager
	invoices *InvoiceRepository
	users    *UserRepository
	audit    *AuditRepository
	messages *MessageRepository
}

func newTestStore(t *testing.T) *testStore {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "test.db"), MaxOpenConns: 4}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(database.Migrations()))

	return &testStore{
		tx:       sqlite.NewTxManager(db.DB, logger),
		invoices: NewInvoiceRepository(db.DB, logger).(*InvoiceRepository),
		users:    NewUserRepository(db.DB, logger).(*UserRepository),
		audit:    NewAuditRepository(db.DB, logger).(*AuditRepository),
		messages: NewMessageRepository(db.DB, logger).(*MessageRepository),
	}
}

var created = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func newInvoice(id, project, submitter string, at time.Time) *entity.Invoice {
	return &entity.Invoice{
		ID:                id,
		SubmittedByUserID: submitter,
		Project:           entity.StringPtr(project),
		Status:            "Pending",
		PMApproval:        entity.PendingRecord(),
		AdminApproval:     entity.PendingRecord(),
		HILReview:         entity.PendingRecord(),
		Amount:            1250.5,
		Currency:          "USD",
		InvoiceNumber:     "INV-" + id,
		Date:              at,
		CreatedAt:         at,
		UpdatedAt:         at,
	}
}

func TestInvoiceRepository_CreateGetUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	inv := newInvoice("inv-1", "P1", "vendor", created)
	inv.VendorID = entity.StringPtr("acme")
	require.NoError(t, s.invoices.Create(ctx, inv))

	got, err := s.invoices.GetByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "Pending", got.Status)
	assert.Equal(t, "P1", got.ProjectKey())
	assert.Equal(t, "acme", *got.VendorID)
	assert.Nil(t, got.AssignedPM)
	assert.Equal(t, entity.ApprovalPending, got.PMApproval.Status)
	assert.Nil(t, got.PMApproval.ApprovedAt)
	assert.InDelta(t, 1250.5, got.Amount, 0.0001)
	assert.True(t, got.Date.Equal(created))

	status := "PM Approved"
	at := created.Add(time.Hour)
	updated, err := s.invoices.Update(ctx, "inv-1", entity.InvoicePatch{
		Status: &status,
		PMApproval: &entity.ApprovalRecord{
			Status:         entity.ApprovalApproved,
			ApprovedBy:     "pm1",
			ApprovedByRole: "PROJECT_MANAGER",
			ApprovedAt:     &at,
			Notes:          "looks right",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, status, updated.Status)
	assert.Equal(t, entity.ApprovalApproved, updated.PMApproval.Status)
	assert.Equal(t, "pm1", updated.PMApproval.ApprovedBy)
	require.NotNil(t, updated.PMApproval.ApprovedAt)
	assert.True(t, updated.PMApproval.ApprovedAt.Equal(at))
	assert.Equal(t, entity.ApprovalPending, updated.AdminApproval.Status, "untouched record changed")
}

func TestInvoiceRepository_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.invoices.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, apperror.NotFound))

	status := "Rejected"
	_, err = s.invoices.Update(ctx, "missing", entity.InvoicePatch{Status: &status})
	assert.True(t, errors.Is(err, apperror.NotFound))
}

func TestInvoiceRepository_ListVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.invoices.Create(ctx, newInvoice("a", "P1", "vendor", created)))
	require.NoError(t, s.invoices.Create(ctx, newInvoice("b", "P2", "vendor", created.Add(time.Minute))))
	require.NoError(t, s.invoices.Create(ctx, newInvoice("c", "P3", "fin", created.Add(2*time.Minute))))
	require.NoError(t, s.invoices.Create(ctx, newInvoice("d", "", "pm2", created.Add(3*time.Minute))))

	all, err := s.invoices.List(ctx, entity.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "d", all[0].ID, "newest first")

	vendor, err := s.invoices.List(ctx, entity.InvoiceFilter{Visibility: &entity.InvoiceVisibility{SubmittedBy: "vendor"}})
	require.NoError(t, err)
	assert.Len(t, vendor, 2)

	pm, err := s.invoices.List(ctx, entity.InvoiceFilter{
		Visibility: &entity.InvoiceVisibility{SubmittedBy: "pm2", Projects: []string{"P2", "P3"}},
	})
	require.NoError(t, err)
	assert.Len(t, pm, 3)

	paged, err := s.invoices.List(ctx, entity.InvoiceFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "c", paged[0].ID)
}

func TestInvoiceRepository_ListByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.invoices.Create(ctx, newInvoice("a", "P1", "vendor", created)))
	rejected := newInvoice("b", "P1", "vendor", created)
	rejected.Status = "Rejected"
	require.NoError(t, s.invoices.Create(ctx, rejected))

	got, err := s.invoices.List(ctx, entity.InvoiceFilter{Status: "Rejected"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func newUser(id, username, role string, projects ...string) *entity.User {
	return &entity.User{
		ID:               id,
		Username:         username,
		Email:            username + "@example.com",
		Role:             role,
		AssignedProjects: projects,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
}

func TestUserRepository_RoundTripAndDelegation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.users.Create(ctx, newUser("pm1", "pat", "PROJECT_MANAGER", "P1", "P2")))
	require.NoError(t, s.users.Create(ctx, newUser("pm2", "quinn", "PROJECT_MANAGER")))

	got, err := s.users.GetByUsername(ctx, "pat")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2"}, got.AssignedProjects)
	assert.Nil(t, got.DelegatedTo)

	empty, err := s.users.GetByID(ctx, "pm2")
	require.NoError(t, err)
	assert.Empty(t, empty.AssignedProjects)

	delegateTo := "pm2"
	expires := created.Add(7 * 24 * time.Hour)
	updated, err := s.users.Update(ctx, "pm1", entity.UserPatch{DelegatedTo: &delegateTo, DelegationExpiresAt: &expires})
	require.NoError(t, err)
	require.NotNil(t, updated.DelegatedTo)
	assert.Equal(t, "pm2", *updated.DelegatedTo)
	assert.True(t, updated.DelegationExpiresAt.Equal(expires))

	delegators, err := s.users.FindDelegators(ctx, "pm2")
	require.NoError(t, err)
	require.Len(t, delegators, 1)
	assert.Equal(t, "pm1", delegators[0].ID)

	cleared, err := s.users.Update(ctx, "pm1", entity.UserPatch{ClearDelegation: true})
	require.NoError(t, err)
	assert.Nil(t, cleared.DelegatedTo)
	assert.Nil(t, cleared.DelegationExpiresAt)

	delegators, err = s.users.FindDelegators(ctx, "pm2")
	require.NoError(t, err)
	assert.Empty(t, delegators)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.users.Create(ctx, newUser("u1", "pat", "VENDOR")))
	err := s.users.Create(ctx, newUser("u2", "pat", "VENDOR"))
	assert.True(t, errors.Is(err, apperror.InvalidArgument), "got %v", err)
}

func TestUserRepository_ListByRole(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.users.Create(ctx, newUser("f1", "fran", "FINANCE_USER")))
	require.NoError(t, s.users.Create(ctx, newUser("f2", "finn", "FINANCE_USER")))
	require.NoError(t, s.users.Create(ctx, newUser("v1", "acme", "VENDOR")))

	finance, err := s.users.ListByRole(ctx, "FINANCE_USER")
	require.NoError(t, err)
	require.Len(t, finance, 2)
	assert.Equal(t, "finn", finance[0].Username)

	all, err := s.users.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = s.users.GetByID(ctx, "ghost")
	assert.True(t, errors.Is(err, apperror.NotFound))
}

func TestAuditRepository_AppendKeepsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, action := range []string{"SUBMIT", "PM_APPROVE", "ADMIN_APPROVE"} {
		require.NoError(t, s.audit.Append(ctx, &entity.AuditEntry{
			ID:        action,
			InvoiceID: "inv-1",
			Username:  "pat",
			Action:    action,
			Timestamp: created.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.audit.Append(ctx, &entity.AuditEntry{ID: "other", InvoiceID: "inv-2", Action: "SUBMIT", Timestamp: created}))

	entries, err := s.audit.ListByInvoiceID(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "SUBMIT", entries[0].Action)
	assert.Equal(t, "ADMIN_APPROVE", entries[2].Action)
}

func TestMessageRepository_CreateAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg := &entity.Message{
		ID:          "m1",
		InvoiceID:   "inv-1",
		ProjectID:   "P1",
		SenderID:    "pm1",
		RecipientID: "vendor",
		Subject:     "Information requested for invoice INV-1",
		Content:     "please attach the PO",
		MessageType: entity.MessageTypeInfoRequest,
		ThreadID:    "m1",
		CreatedAt:   created,
	}
	require.NoError(t, s.messages.Create(ctx, msg))

	got, err := s.messages.ListByInvoiceID(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, msg.Subject, got[0].Subject)
	assert.Equal(t, got[0].ID, got[0].ThreadID)
}

func TestTransaction_RollbackDiscardsAllWrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.invoices.Create(ctx, newInvoice("inv-1", "P1", "vendor", created)))

	boom := errors.New("audit append failed")
	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		status := "Rejected"
		if _, err := s.invoices.Update(txCtx, "inv-1", entity.InvoicePatch{Status: &status}); err != nil {
			return err
		}
		if err := s.audit.Append(txCtx, &entity.AuditEntry{ID: "a1", InvoiceID: "inv-1", Action: "PM_REJECT", Timestamp: created}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.invoices.GetByID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Equal(t, "Pending", got.Status)

	entries, err := s.audit.ListByInvoiceID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTransaction_CommitAndNesting(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.tx.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.invoices.Create(txCtx, newInvoice("inv-1", "P1", "vendor", created)); err != nil {
			return err
		}
		return s.tx.WithTransaction(txCtx, func(inner context.Context) error {
			return s.audit.Append(inner, &entity.AuditEntry{ID: "a1", InvoiceID: "inv-1", Action: "SUBMIT", Timestamp: created})
		})
	})
	require.NoError(t, err)

	_, err = s.invoices.GetByID(ctx, "inv-1")
	assert.NoError(t, err)
	entries, err := s.audit.ListByInvoiceID(ctx, "inv-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
