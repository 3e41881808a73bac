package service

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/garyjia/invoice-approval/internal/application/dispatcher"
	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/domain/apperror"
	"github.com/garyjia/invoice-approval/internal/domain/entity"
	"github.com/garyjia/invoice-approval/internal/domain/event"
)

// Mock repositories

type mockUserRepo struct {
	mu             sync.Mutex
	users          map[string]*entity.User
	createFunc     func(ctx context.Context, u *entity.User) error
	listByRoleFunc func(ctx context.Context, role string) ([]*entity.User, error)
}

func newMockUserRepo(users ...*entity.User) *mockUserRepo {
	m := &mockUserRepo{users: make(map[string]*entity.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *mockUserRepo) Create(ctx context.Context, u *entity.User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, u)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *mockUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, exists := m.users[id]
	if !exists {
		return nil, apperror.New(apperror.KindNotFound, "user %s not found", id)
	}
	return u, nil
}

func (m *mockUserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, apperror.New(apperror.KindNotFound, "user %s not found", username)
}

func (m *mockUserRepo) Update(ctx context.Context, id string, patch entity.UserPatch) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, exists := m.users[id]
	if !exists {
		return nil, apperror.New(apperror.KindNotFound, "user %s not found", id)
	}
	c := *u
	if patch.AssignedProjects != nil {
		c.AssignedProjects = *patch.AssignedProjects
	}
	if patch.DelegatedTo != nil {
		d := *patch.DelegatedTo
		c.DelegatedTo = &d
	}
	if patch.DelegationExpiresAt != nil {
		e := *patch.DelegationExpiresAt
		c.DelegationExpiresAt = &e
	}
	if patch.ClearDelegation {
		c.DelegatedTo = nil
		c.DelegationExpiresAt = nil
	}
	m.users[id] = &c
	return &c, nil
}

func (m *mockUserRepo) FindDelegators(ctx context.Context, delegateID string) ([]*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.User
	for _, u := range m.users {
		if u.DelegatedTo != nil && *u.DelegatedTo == delegateID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) ListByRole(ctx context.Context, role string) ([]*entity.User, error) {
	if m.listByRoleFunc != nil {
		return m.listByRoleFunc(ctx, role)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.User
	for _, u := range m.users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserRepo) List(ctx context.Context, limit, offset int) ([]*entity.User, error) {
	return nil, nil
}

type mockInvoiceRepo struct {
	mu         sync.Mutex
	invoices   map[string]*entity.Invoice
	createFunc func(ctx context.Context, inv *entity.Invoice) error
	lastFilter entity.InvoiceFilter
}

func newMockInvoiceRepo(invoices ...*entity.Invoice) *mockInvoiceRepo {
	m := &mockInvoiceRepo{invoices: make(map[string]*entity.Invoice)}
	for _, inv := range invoices {
		m.invoices[inv.ID] = inv
	}
	return m
}

func (m *mockInvoiceRepo) Create(ctx context.Context, inv *entity.Invoice) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, inv)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = inv.Clone()
	return nil
}

func (m *mockInvoiceRepo) GetByID(ctx context.Context, id string) (*entity.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, exists := m.invoices[id]
	if !exists {
		return nil, apperror.New(apperror.KindNotFound, "invoice %s not found", id)
	}
	return inv.Clone(), nil
}

func (m *mockInvoiceRepo) Update(ctx context.Context, id string, patch entity.InvoicePatch) (*entity.Invoice, error) {
	return nil, apperror.New(apperror.KindInternal, "not implemented")
}

// List honors Visibility the way the SQL store does
func (m *mockInvoiceRepo) List(ctx context.Context, filter entity.InvoiceFilter) ([]*entity.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = filter
	var out []*entity.Invoice
	for _, inv := range m.invoices {
		if filter.Status != "" && inv.Status != filter.Status {
			continue
		}
		if canSee(filter.Visibility, inv) {
			out = append(out, inv.Clone())
		}
	}
	return out, nil
}

type mockAuditRepo struct {
	mu         sync.Mutex
	entries    []*entity.AuditEntry
	appendFunc func(ctx context.Context, entry *entity.AuditEntry) error
	listFunc   func(ctx context.Context, invoiceID string) ([]*entity.AuditEntry, error)
}

func (m *mockAuditRepo) Append(ctx context.Context, entry *entity.AuditEntry) error {
	if m.appendFunc != nil {
		return m.appendFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *mockAuditRepo) ListByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.AuditEntry, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, invoiceID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.AuditEntry
	for _, e := range m.entries {
		if e.InvoiceID == invoiceID {
			out = append(out, e)
		}
	}
	return out, nil
}

type mockMessageRepo struct {
	messages []*entity.Message
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *entity.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockMessageRepo) ListByInvoiceID(ctx context.Context, invoiceID string) ([]*entity.Message, error) {
	var out []*entity.Message
	for _, msg := range m.messages {
		if msg.InvoiceID == invoiceID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

type mockDispatcher struct {
	mu         sync.Mutex
	events     []*event.Event
	subscribed map[event.Type][]string
}

func (m *mockDispatcher) Subscribe(eventType event.Type, handler dispatcher.Handler) {
	m.SubscribeNamed(eventType, "", handler)
}

func (m *mockDispatcher) SubscribeNamed(eventType event.Type, name string, handler dispatcher.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.subscribed == nil {
		m.subscribed = make(map[event.Type][]string)
	}
	m.subscribed[eventType] = append(m.subscribed[eventType], name)
}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Pending() int { return 0 }

func (m *mockDispatcher) Close() error {
	return nil
}

type mockNotifier struct {
	notifyFunc func(ctx context.Context, n *port.Notification) (port.DeliveryStatus, error)
	calls      []*port.Notification
}

func (m *mockNotifier) Notify(ctx context.Context, n *port.Notification) (port.DeliveryStatus, error) {
	m.calls = append(m.calls, n)
	if m.notifyFunc != nil {
		return m.notifyFunc(ctx, n)
	}
	return port.DeliverySent, nil
}

type mockExporter struct {
	writeFunc func(w io.Writer, inv *entity.Invoice, entries []*entity.AuditEntry) error
}

func (m *mockExporter) WriteAudit(w io.Writer, inv *entity.Invoice, entries []*entity.AuditEntry) error {
	if m.writeFunc != nil {
		return m.writeFunc(w, inv, entries)
	}
	_, err := io.WriteString(w, "ok")
	return err
}

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

// Fixtures

var testNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func testUsers() []*entity.User {
	return []*entity.User{
		{ID: "admin", Username: "root", Email: "root@example.com", Role: "ADMIN"},
		{ID: "pm1", Username: "pat", Email: "pat@example.com", Role: "Project Manager", AssignedProjects: []string{"P1"}},
		{ID: "pm2", Username: "quinn", Email: "quinn@example.com", Role: "pm", AssignedProjects: []string{"P2"}},
		{ID: "fin", Username: "fran", Email: "fran@example.com", Role: "FINANCE_USER"},
		{ID: "vendor", Username: "acme", Email: "billing@acme.example", Role: "VENDOR"},
	}
}

func testInvoice(id, project, submitter string) *entity.Invoice {
	return &entity.Invoice{
		ID:                id,
		SubmittedByUserID: submitter,
		Project:           entity.StringPtr(project),
		Status:            "Pending",
		PMApproval:        entity.PendingRecord(),
		AdminApproval:     entity.PendingRecord(),
		HILReview:         entity.PendingRecord(),
		Amount:            100,
		Currency:          entity.DefaultCurrency,
		InvoiceNumber:     "INV-" + id,
	}
}

func delegate(u *entity.User, to string, expires time.Time) *entity.User {
	c := *u
	c.DelegatedTo = &to
	c.DelegationExpiresAt = &expires
	return &c
}

func userByID(users []*entity.User, id string) *entity.User {
	for _, u := range users {
		if u.ID == id {
			return u
		}
	}
	return nil
}
