package container

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/effects"
	"github.com/garyjia/procurement-tracker/internal/application/lock"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/authz"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/external/lark"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/messaging"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/metrics"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/notify"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/repository"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/persistence/sheet"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/worker"
	"github.com/garyjia/procurement-tracker/pkg/database"
	"github.com/garyjia/procurement-tracker/pkg/utils"
)

// StoreBundle holds the persistence ports
type StoreBundle struct {
	Documents port.DocumentStore
	Audit     port.AuditLog
	Reminders port.ReminderStore
	Vendors   port.VendorDirectory

	// Workbook is set when the xlsx driver is active
	Workbook *sheet.Workbook
}

// NotifierBundle holds the notification fan-out and the connections behind it
type NotifierBundle struct {
	Notifier port.Notifier
	NATS     *nats.Conn
}

// ServiceBundle groups the application services
type ServiceBundle struct {
	Engine     workflow.WorkflowEngine
	Documents  service.DocumentService
	AutoCancel *service.AutoCancelService
	Reminders  *service.ReminderService
}

// ServiceDeps are the inputs of ProvideServices
type ServiceDeps struct {
	Config     *WorkflowConfig
	Grants     map[string][]string
	Stores     *StoreBundle
	Notifier   port.Notifier
	Dispatcher dispatcher.Dispatcher
	Recorder   *metrics.Recorder
	Logger     *zap.Logger
}

// ProvideDatabase opens the database and applies pending migrations
func ProvideDatabase(cfg database.Config, logger *zap.Logger) (*database.DB, error) {
	db, err := database.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	applied, err := database.NewMigrator(db, logger).Up()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if applied > 0 {
		logger.Info("Database migrations applied", zap.Int("count", applied))
	}
	return db, nil
}

// ProvideStores builds the persistence ports for the configured driver
func ProvideStores(cfg StoreConfig, db *database.DB, logger *zap.Logger) (*StoreBundle, error) {
	bundle := &StoreBundle{
		Reminders: repository.NewReminderRepository(db.DB, logger),
		Vendors:   repository.NewVendorRepository(db.DB, logger),
	}

	switch cfg.Driver {
	case "xlsx":
		wb, err := sheet.Open(cfg.WorkbookPath, logger)
		if err != nil {
			return nil, err
		}
		bundle.Workbook = wb
		bundle.Documents = sheet.NewDocumentStore(wb)
		bundle.Audit = sheet.NewAuditLog(wb)
		logger.Info("Using spreadsheet document store", zap.String("path", cfg.WorkbookPath))
	default:
		bundle.Documents = repository.NewDocumentRepository(db.DB, logger)
		bundle.Audit = repository.NewAuditRepository(db.DB, logger)
	}

	return bundle, nil
}

// ProvideNotifier combines the enabled transports into one notifier
func ProvideNotifier(cfg NotificationConfig, logger *zap.Logger) (*NotifierBundle, error) {
	renderer, err := notify.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("failed to load notification templates: %w", err)
	}

	bundle := &NotifierBundle{}
	var transports []port.Notifier

	if cfg.Log {
		transports = append(transports, notify.NewLogNotifier(renderer, logger))
	}

	if cfg.Lark != nil {
		api := lark.NewMessageAPI(*cfg.Lark, logger)
		transports = append(transports, lark.NewNotifier(api, renderer, logger))
		logger.Info("Lark notifications enabled")
	}

	if cfg.NATS != nil {
		conn, err := messaging.Connect(*cfg.NATS, logger)
		if err != nil {
			return nil, err
		}
		bundle.NATS = conn
		transports = append(transports, messaging.NewNotifier(conn, renderer, cfg.NATS.SubjectPrefix, logger))
		logger.Info("NATS notifications enabled", zap.String("url", cfg.NATS.URL))
	}

	bundle.Notifier = notify.NewFanout(transports...)
	return bundle, nil
}

// ProvideDispatcher creates the post-transition dispatcher
func ProvideDispatcher(recorder *metrics.Recorder, logger *zap.Logger) dispatcher.Dispatcher {
	opts := []dispatcher.Option{dispatcher.WithLogger(utils.NewZapAdapter(logger))}
	if recorder != nil {
		opts = append(opts, dispatcher.WithObserver(recorder))
	}
	return dispatcher.NewDispatcher(opts...)
}

// ProvideServices wires the engine, its effects and the automated drivers
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Config == nil || deps.Stores == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}
	cfg := deps.Config
	appLogger := utils.NewZapAdapter(deps.Logger)

	locker, err := lock.New(cfg.LockMode, cfg.LockTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock: %w", err)
	}

	effects.Register(deps.Dispatcher, effects.Deps{
		Store:                 deps.Stores.Documents,
		Reminders:             deps.Stores.Reminders,
		Vendors:               deps.Stores.Vendors,
		Notifier:              deps.Notifier,
		Logger:                appLogger,
		Policy:                cfg.Policy,
		ProcurementRecipients: cfg.ProcurementRecipients,
	})

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithPolicy(cfg.Policy),
		workflow.WithRole(cfg.ProcurementRole),
		workflow.WithLogger(appLogger),
	}
	if deps.Recorder != nil {
		opts = append(opts, workflow.WithObserver(deps.Recorder))
	}

	engine := workflow.NewEngine(
		deps.Stores.Documents,
		deps.Stores.Audit,
		deps.Stores.Vendors,
		authz.NewStatic(deps.Grants, cfg.SystemActor),
		locker,
		opts...,
	)

	autoCancelCfg := cfg.AutoCancel
	autoCancelCfg.SystemActor = cfg.SystemActor
	autoCancelCfg.ProcurementRecipients = cfg.ProcurementRecipients

	reminderCfg := cfg.Reminder
	reminderCfg.ProcurementRecipients = cfg.ProcurementRecipients

	return &ServiceBundle{
		Engine:    engine,
		Documents: service.NewDocumentService(deps.Stores.Documents, deps.Stores.Audit),
		AutoCancel: service.NewAutoCancelService(
			deps.Stores.Documents,
			deps.Stores.Reminders,
			deps.Notifier,
			engine,
			autoCancelCfg,
			appLogger,
		),
		Reminders: service.NewReminderService(
			deps.Stores.Documents,
			deps.Stores.Reminders,
			deps.Notifier,
			reminderCfg,
			appLogger,
		),
	}, nil
}

// ProvideWorkers builds the scheduler hosting both sweeps
func ProvideWorkers(cfg SchedulerConfig, services *ServiceBundle, recorder *metrics.Recorder, logger *zap.Logger) (*worker.WorkerManager, *worker.Scheduler, error) {
	scheduler := worker.NewScheduler(cfg.Location, logger)

	var sweepRecorder worker.SweepRecorder
	if recorder != nil {
		sweepRecorder = recorder
	}

	if err := scheduler.Add(worker.AutoCancelJob(cfg.AutoCancelSpec, services.AutoCancel, sweepRecorder, logger)); err != nil {
		return nil, nil, err
	}
	if err := scheduler.Add(worker.ReminderJob(cfg.ReminderSpec, services.Reminders, sweepRecorder, logger)); err != nil {
		return nil, nil, err
	}

	manager := worker.NewWorkerManager(logger)
	manager.Register(scheduler)
	return manager, scheduler, nil
}
