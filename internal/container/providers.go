package container

import (
	"fmt"
	"io/fs"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	infraLark "github.com/garyjia/expense-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/expense-approval/internal/infrastructure/report"
	httpserver "github.com/garyjia/expense-approval/internal/interfaces/http"
	"github.com/garyjia/expense-approval/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Companies port.CompanyRepository
	Users     port.UserRepository
	Expenses  port.ExpenseRepository
	Approvals port.ApprovalRepository
	Steps     port.ApproverStepRepository
	Rules     port.ApprovalRuleRepository
	Audit     port.AuditRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Engine       service.ApprovalEngine
	Config       service.ConfigService
	Directory    service.DirectoryService
	Expenses     service.ExpenseService
	Audit        service.AuditService
	Notification service.NotificationService
	Exporter     port.ReportExporter
}

// ProvideDatabase opens the database, applies pending migrations and wraps it
// in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	var migrations fs.FS
	if cfg.MigrationsDir != "" {
		migrations = os.DirFS(cfg.MigrationsDir)
	} else {
		migrations = database.EmbeddedMigrations()
	}

	applied, err := database.NewMigrator(conn, logger).RunMigrations(migrations)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied", zap.Int("count", applied))

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Companies: repository.NewCompanyRepository(db, logger),
		Users:     repository.NewUserRepository(db, logger),
		Expenses:  repository.NewExpenseRepository(db, logger),
		Approvals: repository.NewApprovalRepository(db, logger),
		Steps:     repository.NewApproverStepRepository(db, logger),
		Rules:     repository.NewApprovalRuleRepository(db, logger),
		Audit:     repository.NewAuditRepository(db, logger),
	}, nil
}

// ProvideMessenger creates the Lark message sender, or nil when Lark is disabled.
func ProvideMessenger(cfg *LarkConfig, logger *zap.Logger) port.MessageSender {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Lark messaging disabled, notifications will only be logged")
		return nil
	}

	sdk := infraLark.NewSDKClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
		Debug:     cfg.Debug,
	}, logger)

	return infraLark.NewMessenger(sdk, logger)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}),
	)
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Messenger  port.MessageSender
	Export     ExportConfig
	Logger     *zap.Logger
}

// ProvideServices creates all application services and subscribes the
// notification handlers to the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	repos := deps.Repos
	logger := &zapLoggerAdapter{logger: deps.Logger.Named("service")}
	exporter := report.NewXLSXExporter(deps.Logger)

	engine := service.NewApprovalEngine(service.EngineDeps{
		Users:     repos.Users,
		Companies: repos.Companies,
		Expenses:  repos.Expenses,
		Approvals: repos.Approvals,
		Steps:     repos.Steps,
		Rules:     repos.Rules,
		Audit:     repos.Audit,
		TxManager: deps.TxManager,
		Publisher: deps.Dispatcher,
		Logger:    logger,
	})

	notification := service.NewNotificationService(repos.Users, deps.Messenger, logger)
	notification.RegisterHandlers(deps.Dispatcher)

	return &ServiceBundle{
		Engine:    engine,
		Config:    service.NewConfigService(repos.Users, repos.Steps, repos.Rules, repos.Audit, deps.TxManager, logger),
		Directory: service.NewDirectoryService(repos.Companies, repos.Users, repos.Rules, repos.Audit, deps.TxManager, logger),
		Expenses: service.NewExpenseService(
			repos.Companies, repos.Users, repos.Expenses, repos.Approvals, exporter, logger,
			service.WithExportLimit(deps.Export.MaxRows),
		),
		Audit:        service.NewAuditService(repos.Audit, repos.Expenses),
		Notification: notification,
		Exporter:     exporter,
	}, nil
}

// ProvideHTTPServer creates the HTTP server and its token manager.
func ProvideHTTPServer(cfg *Config, services *ServiceBundle, logger *zap.Logger) (*httpserver.Server, *httpserver.TokenManager) {
	tokens := httpserver.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	server := httpserver.NewServer(
		httpserver.ServerConfig{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
		httpserver.Services{
			Engine:    services.Engine,
			Config:    services.Config,
			Directory: services.Directory,
			Expenses:  services.Expenses,
			Audit:     services.Audit,
			Exporter:  services.Exporter,
		},
		tokens,
		&zapLoggerAdapter{logger: logger.Named("http")},
	)

	return server, tokens
}
