package container

import (
	"fmt"
	"time"

	natsgo "github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-approval/internal/application/dispatcher"
	"github.com/garyjia/invoice-approval/internal/application/port"
	"github.com/garyjia/invoice-approval/internal/application/service"
	"github.com/garyjia/invoice-approval/internal/application/workflow"
	"github.com/garyjia/invoice-approval/internal/domain/rbac"
	"github.com/garyjia/invoice-approval/internal/infrastructure/export"
	infraLark "github.com/garyjia/invoice-approval/internal/infrastructure/external/lark"
	infraNats "github.com/garyjia/invoice-approval/internal/infrastructure/external/nats"
	"github.com/garyjia/invoice-approval/internal/infrastructure/notifier"
	"github.com/garyjia/invoice-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-approval/internal/infrastructure/telemetry"
	"github.com/garyjia/invoice-approval/pkg/auth"
	"github.com/garyjia/invoice-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.TxManager
}

// NotifierBundle holds the combined notifier and the connections it owns.
type NotifierBundle struct {
	Notifier port.Notifier
	NATSConn *natsgo.Conn
}

// ProvideDatabase opens the database and applies the embedded migrations.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(database.Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewTxManager(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Invoice: repository.NewInvoiceRepository(db.DB, logger),
		User:    repository.NewUserRepository(db.DB, logger),
		Audit:   repository.NewAuditRepository(db.DB, logger),
		Message: repository.NewMessageRepository(db.DB, logger),
	}, nil
}

// ProvideNotifier builds one notifier per configured driver and fans out over them.
func ProvideNotifier(cfg *Config, logger *zap.Logger) (*NotifierBundle, error) {
	bundle := &NotifierBundle{}
	var targets []notifier.Named

	for _, driver := range cfg.Notifier.Drivers {
		switch driver {
		case NotifierLog:
			targets = append(targets, notifier.Named{Name: driver, Notifier: notifier.NewLogNotifier(logger)})

		case NotifierLark:
			client := infraLark.NewClient(infraLark.Config{
				AppID:     cfg.Lark.AppID,
				AppSecret: cfg.Lark.AppSecret,
				BaseURL:   cfg.Lark.BaseURL,
			}, logger)
			targets = append(targets, notifier.Named{Name: driver, Notifier: infraLark.NewNotifier(client, logger)})

		case NotifierNATS:
			conn, err := infraNats.Connect(infraNats.Config{
				URL:           cfg.NATS.URL,
				SubjectPrefix: cfg.NATS.SubjectPrefix,
				ClientName:    cfg.NATS.ClientName,
			}, logger)
			if err != nil {
				if bundle.NATSConn != nil {
					bundle.NATSConn.Close()
				}
				return nil, err
			}
			bundle.NATSConn = conn
			targets = append(targets, notifier.Named{
				Name:     driver,
				Notifier: infraNats.NewNotifier(conn, cfg.NATS.SubjectPrefix, logger),
			})

		default:
			return nil, fmt.Errorf("unknown notifier driver %q", driver)
		}
	}

	bundle.Notifier = notifier.NewFanout(targets...)
	logger.Info("Notifiers configured", zap.Strings("drivers", cfg.Notifier.Drivers))
	return bundle, nil
}

// ProvideTracer creates the tracer provider; a disabled config yields a no-op provider.
func ProvideTracer(cfg *TracingConfig, version string, logger *zap.Logger) (*telemetry.Provider, error) {
	return telemetry.New(telemetry.Config{
		Enabled:        cfg.Enabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		OutputPath:     cfg.OutputPath,
	}, logger)
}

// ProvideTokenIssuer creates the bearer token issuer.
func ProvideTokenIssuer(cfg *AuthConfig) (*auth.Issuer, error) {
	return auth.NewIssuer(auth.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.Issuer,
		TTL:    cfg.TokenTTL,
	})
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	), nil
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Notifier   port.Notifier
	Evaluator  *rbac.Evaluator
	Logger     *zap.Logger
	Now        func() time.Time
}

// ProvideServices creates all application services and subscribes the notification handler.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	log := &zapLoggerAdapter{logger: deps.Logger.Named("service")}
	r := deps.Repos

	notification := service.NewNotificationService(r.User, deps.Notifier, log)
	notification.Register(deps.Dispatcher)

	return &ServiceBundle{
		Invoice: service.NewInvoiceService(r.Invoice, r.User, r.Audit, r.Message, deps.TxManager,
			deps.Dispatcher, deps.Evaluator, log, deps.Now),
		User:         service.NewUserService(r.User, deps.Evaluator, log, deps.Now),
		Delegation:   service.NewDelegationService(r.User, deps.TxManager, deps.Evaluator, log, deps.Now),
		Audit:        service.NewAuditService(r.Audit, r.Invoice, r.User, export.NewAuditWorkbook(deps.Logger), deps.Evaluator, log),
		Notification: notification,
	}, nil
}

// WorkflowDeps holds dependencies for creating the workflow engine.
type WorkflowDeps struct {
	Repos          *RepositoryBundle
	TxManager      port.TransactionManager
	Dispatcher     dispatcher.Dispatcher
	Evaluator      *rbac.Evaluator
	TracerProvider trace.TracerProvider
	Logger         *zap.Logger
	Now            func() time.Time
}

// ProvideWorkflowEngine creates the approval orchestrator.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger.Named("workflow")}),
	}
	if deps.Evaluator != nil {
		opts = append(opts, workflow.WithEvaluator(deps.Evaluator))
	}
	if deps.TracerProvider != nil {
		opts = append(opts, workflow.WithTracerProvider(deps.TracerProvider))
	}
	if deps.Now != nil {
		opts = append(opts, workflow.WithClock(deps.Now))
	}

	r := deps.Repos
	return workflow.NewEngine(r.Invoice, r.User, r.Audit, r.Message, deps.TxManager, opts...), nil
}
