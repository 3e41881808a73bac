package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/dispatcher"
	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/application/service"
	"github.com/garyjia/invoice-approval/internal/application/workflow"
	"github.com/garyjia/invoice-approval/internal/domain/rbac"
	"github.com/garyjia/invoice-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-approval/internal/infrastructure/telemetry"
	"github.com/garyjia/invoice-approval/pkg/auth"
	"github.com/garyjia/invoice-approval/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger
	now    func() time.Time

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.TxManager
	repositories *RepositoryBundle

	// Infrastructure - External
	notifier port.Notifier
	natsConn *natsgo.Conn
	tracer   *telemetry.Provider
	issuer   *auth.Issuer

	// Application
	evaluator  *rbac.Evaluator
	dispatcher dispatcher.Dispatcher
	workflow   workflow.WorkflowEngine
	services   *ServiceBundle

	// Lifecycle
	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Invoice port.InvoiceRepository
	User    port.UserRepository
	Audit   port.AuditRepository
	Message port.MessageRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Invoice      service.InvoiceService
	User         service.UserService
	Delegation   service.DelegationService
	Audit        service.AuditService
	Notification *service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// Option configures a Container
type Option func(*Container)

// WithClock overrides the clock handed to services and the workflow engine
func WithClock(now func() time.Time) Option {
	return func(c *Container) {
		c.now = now
	}
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Container{
		config:    cfg,
		logger:    logger,
		now:       time.Now,
		evaluator: rbac.NewEvaluator(rbac.DefaultPolicy()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations and repositories
// 2. Tracing, token issuer and notifiers
// 3. Event dispatcher and application services
// 4. Workflow engine
// 5. Bootstrap admin
// On failure everything already started is closed again.
func (c *Container) Start(ctx context.Context) (err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")
	defer func() {
		if err != nil {
			c.logger.Error("Container start failed", zap.Error(err))
			_ = c.teardown()
		}
	}()

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternal(); err != nil {
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	if err := c.initWorkflow(); err != nil {
		return fmt.Errorf("failed to initialize workflow engine: %w", err)
	}
	c.logger.Info("Workflow engine initialized")

	if err := c.bootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()
	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() error {
	var errs []error

	// Drains in-flight notification handlers before their channels go away
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.natsConn != nil {
		if err := c.natsConn.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
		c.natsConn = nil
		c.logger.Info("NATS connection closed")
	}

	if c.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.tracer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer: %w", err))
		}
		cancel()
		c.tracer = nil
	}

	if c.database != nil {
		if err := c.database.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.database = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Ping checks the database connection
func (c *Container) Ping(ctx context.Context) error {
	if c.database == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.database.PingContext(ctx)
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, msg string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: msg}
		if !healthy {
			status.Overall = false
		}
	}

	if c.database == nil {
		set("database", false, "not initialized")
	} else if err := c.database.Ping(); err != nil {
		set("database", false, fmt.Sprintf("ping failed: %v", err))
	} else {
		set("database", true, "")
	}

	if c.dispatcher == nil {
		set("dispatcher", false, "not initialized")
	} else {
		set("dispatcher", true, fmt.Sprintf("%d events pending", c.dispatcher.Pending()))
	}

	if c.workflow == nil {
		set("workflow", false, "not initialized")
	} else {
		set("workflow", true, "")
	}

	if c.config.HasDriver(NotifierNATS) {
		switch {
		case c.natsConn == nil:
			set("nats", false, "not connected")
		case !c.natsConn.IsConnected():
			set("nats", false, c.natsConn.Status().String())
		default:
			set("nats", true, "")
		}
	}

	return status
}

func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.database = bundle.DB
	c.db = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.database, c.logger)
	if err != nil {
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initExternal() error {
	tracer, err := ProvideTracer(&c.config.Tracing, c.config.Version, c.logger)
	if err != nil {
		return err
	}
	c.tracer = tracer

	issuer, err := ProvideTokenIssuer(&c.config.Auth)
	if err != nil {
		return err
	}
	c.issuer = issuer

	bundle, err := ProvideNotifier(c.config, c.logger.Named("notifier"))
	if err != nil {
		return err
	}
	c.notifier = bundle.Notifier
	c.natsConn = bundle.NATSConn
	return nil
}

func (c *Container) initServices() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Notifier:   c.notifier,
		Evaluator:  c.evaluator,
		Logger:     c.logger,
		Now:        c.now,
	})
	if err != nil {
		return err
	}
	c.services = services
	return nil
}

func (c *Container) initWorkflow() error {
	engine, err := ProvideWorkflowEngine(&WorkflowDeps{
		Repos:          c.repositories,
		TxManager:      c.db,
		Dispatcher:     c.dispatcher,
		Evaluator:      c.evaluator,
		TracerProvider: c.tracer,
		Logger:         c.logger,
		Now:            c.now,
	})
	if err != nil {
		return err
	}
	c.workflow = engine
	return nil
}

func (c *Container) bootstrapAdmin(ctx context.Context) error {
	b := c.config.Bootstrap
	if b.AdminUsername == "" {
		return nil
	}
	admin, err := c.services.User.EnsureAdmin(ctx, b.AdminUsername, b.AdminEmail)
	if err != nil {
		return err
	}
	c.logger.Info("Bootstrap admin ready",
		zap.String("user_id", admin.ID),
		zap.String("username", admin.Username))
	return nil
}

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// TokenIssuer returns the bearer token issuer.
func (c *Container) TokenIssuer() *auth.Issuer {
	return c.issuer
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// Logger is the two-method logger the application and interface packages take
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NewLogger adapts a zap logger to Logger
func NewLogger(logger *zap.Logger) Logger {
	return &zapLoggerAdapter{logger: logger}
}

type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
