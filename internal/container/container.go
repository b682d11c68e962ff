package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/dispatcher"
	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/application/service"
	"github.com/garyjia/procurement-tracker/internal/application/workflow"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/metrics"
	"github.com/garyjia/procurement-tracker/internal/infrastructure/worker"
	"github.com/garyjia/procurement-tracker/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure
	db       *database.DB
	stores   *StoreBundle
	notifier port.Notifier
	natsConn *nats.Conn
	recorder *metrics.Recorder

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Workers
	workers   *worker.WorkerManager
	scheduler *worker.Scheduler

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database, migrations and stores
// 2. Notification transports
// 3. Metrics, dispatcher, engine and services
// 4. Scheduler workers, when enabled
//
// A failure closes whatever was already opened.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.start(ctx); err != nil {
		c.teardown()
		return err
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) start(ctx context.Context) error {
	db, err := ProvideDatabase(c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db

	stores, err := ProvideStores(c.config.Store, db, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize stores: %w", err)
	}
	c.stores = stores
	c.logger.Info("Stores initialized", zap.String("driver", c.config.Store.Driver))

	notifiers, err := ProvideNotifier(c.config.Notification, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifiers: %w", err)
	}
	c.notifier = notifiers.Notifier
	c.natsConn = notifiers.NATS
	c.logger.Info("Notification transports initialized")

	c.recorder = metrics.NewRecorder()
	c.dispatcher = ProvideDispatcher(c.recorder, c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Config:     &c.config.Workflow,
		Grants:     c.config.Grants,
		Stores:     stores,
		Notifier:   c.notifier,
		Dispatcher: c.dispatcher,
		Recorder:   c.recorder,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services
	c.logger.Info("Workflow engine and services initialized")

	if !c.config.Scheduler.Enabled {
		return nil
	}

	workers, scheduler, err := ProvideWorkers(c.config.Scheduler, services, c.recorder, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.workers = workers
	c.scheduler = scheduler

	if err := c.workers.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.GetWorkerCount()))
	return nil
}

// Close gracefully shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

func (c *Container) teardown() []error {
	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	// Waits for in-flight effects so nothing writes after the stores close
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.natsConn != nil {
		if err := c.natsConn.Drain(); err != nil {
			c.logger.Error("Failed to drain NATS connection", zap.Error(err))
			errs = append(errs, fmt.Errorf("drain nats: %w", err))
		}
		c.natsConn = nil
	}

	if c.stores != nil && c.stores.Workbook != nil {
		if err := c.stores.Workbook.Close(); err != nil {
			c.logger.Error("Failed to close workbook", zap.Error(err))
			errs = append(errs, fmt.Errorf("close workbook: %w", err))
		}
		c.stores.Workbook = nil
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.db = nil
	}

	return errs
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, healthy bool, message string) {
		status.Components[name] = ComponentHealth{Healthy: healthy, Message: message}
		if !healthy {
			status.Overall = false
		}
	}

	if c.db == nil {
		set("database", false, "not initialized")
	} else if err := c.db.Health(ctx); err != nil {
		set("database", false, fmt.Sprintf("ping failed: %v", err))
	} else {
		set("database", true, "")
	}

	if c.services == nil {
		set("engine", false, "not initialized")
	} else {
		set("engine", true, "")
	}

	if c.natsConn != nil {
		if c.natsConn.IsConnected() {
			set("nats", true, "")
		} else {
			set("nats", false, c.natsConn.Status().String())
		}
	}

	if c.config.Scheduler.Enabled {
		if c.workers == nil {
			set("workers", false, "not initialized")
		} else {
			set("workers", c.workers.IsRunning(), fmt.Sprintf("worker count: %d", c.workers.GetWorkerCount()))
		}
	}

	return status
}

// HealthCheck reports the first unhealthy component as an error
func (c *Container) HealthCheck(ctx context.Context) error {
	status := c.Health(ctx)
	if status.Overall {
		return nil
	}
	for name, component := range status.Components {
		if !component.Healthy {
			return fmt.Errorf("%s unhealthy: %s", name, component.Message)
		}
	}
	return fmt.Errorf("unhealthy")
}

// Engine returns the workflow engine
func (c *Container) Engine() workflow.WorkflowEngine {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.services == nil {
		return nil
	}
	return c.services.Engine
}

// Services returns the application services
func (c *Container) Services() *ServiceBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services
}

// Documents returns the read-side document service
func (c *Container) Documents() service.DocumentService {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.services == nil {
		return nil
	}
	return c.services.Documents
}

// Stores returns the persistence ports
func (c *Container) Stores() *StoreBundle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stores
}

// Metrics returns the Prometheus recorder
func (c *Container) Metrics() *metrics.Recorder {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recorder
}

// Scheduler returns the sweep scheduler, or nil when it is disabled
func (c *Container) Scheduler() *worker.Scheduler {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.scheduler
}
