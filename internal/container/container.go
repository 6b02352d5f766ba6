package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/facturia/invoice-pipeline/internal/application/eventbus"
	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/config"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/persistence/sqldb"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/worker"
	httpapi "github.com/facturia/invoice-pipeline/internal/interfaces/http"
	"github.com/facturia/invoice-pipeline/pkg/database"
	"go.uber.org/zap"
)

// Container owns every long-lived component of a process
type Container struct {
	config *config.Config
	logger *zap.Logger

	rawDB        *database.DB
	db           *sqldb.DB
	repositories *RepositoryBundle

	model       port.ExtractionModel
	modelCloser io.Closer
	files       *FileStoreBundle
	notifier    port.Notifier
	events      *eventbus.Bus
	verifier    port.IdentityVerifier

	services *ServiceBundle
	workers  *worker.Manager

	mu     sync.Mutex
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

// NewContainer creates a container. Call Start to build the components.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
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

// Start builds components in dependency order:
// database, extraction model, file store and notifier, services, workers.
// On failure everything built so far is torn down.
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
		if closeErr := c.teardown(); closeErr != nil {
			c.logger.Error("Cleanup after failed start reported errors", zap.Error(closeErr))
		}
		return err
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) start(ctx context.Context) error {
	rawDB, err := ProvideDatabase(ctx, c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.rawDB = rawDB
	c.db = sqldb.NewDB(rawDB, c.logger)
	c.repositories = ProvideRepositories(c.db, c.logger)
	c.logger.Info("Database initialized", zap.String("driver", string(rawDB.Dialect())))

	model, closer, err := ProvideModel(ctx, c.config.Extraction, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize extraction model: %w", err)
	}
	c.model, c.modelCloser = model, closer
	c.logger.Info("Extraction model initialized",
		zap.String("provider", c.config.Extraction.Provider),
		zap.String("model", model.Name()))

	files, err := ProvideFileStore(ctx, c.config.Storage, c.config.Server.PublicURL, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize file store: %w", err)
	}
	c.files = files
	c.notifier = ProvideNotifier(c.config.Lark, c.logger)
	c.events = ProvideEventBus(c.notifier, c.config.Jobs, c.logger)
	c.verifier = ProvideVerifier(c.config.Auth)

	c.services = ProvideServices(&ServiceDeps{
		Config:    c.config,
		Repos:     c.repositories,
		Model:     c.model,
		Extractor: ProvideExtractor(c.model, c.config.Extraction, c.logger),
		Files:     c.files.Store,
		Events:    c.events,
		Logger:    c.logger,
	})
	c.logger.Info("Application services initialized")

	c.workers = worker.NewManager(c.logger)
	if c.config.Jobs.PollerEnabled {
		c.workers.Register(worker.NewDispatchPoller(
			c.services.Dispatch,
			c.config.Jobs.PollInterval,
			c.config.Jobs.DispatchTimeout,
			c.logger,
		))
	}
	// the poller outlives the start request; its context ends with Close
	if err := c.workers.StartAll(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	return nil
}

// Close shuts components down in reverse order of Start
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

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
		c.workers = nil
	}

	if c.events != nil {
		if err := c.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close event bus: %w", err))
		}
		c.events = nil
	}

	if c.modelCloser != nil {
		if err := c.modelCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close extraction model: %w", err))
		}
		c.modelCloser = nil
	}

	if c.rawDB != nil {
		if err := c.rawDB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.rawDB = nil
	}

	return errors.Join(errs...)
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Ping checks the database connection
func (c *Container) Ping(ctx context.Context) error {
	if c.rawDB == nil {
		return fmt.Errorf("database not initialized")
	}
	return c.rawDB.PingContext(ctx)
}

// Health returns health status of all components
func (c *Container) Health(ctx context.Context) *HealthStatus {
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

	if err := c.Ping(ctx); err != nil {
		set("database", false, fmt.Sprintf("ping failed: %v", err))
	} else {
		set("database", true, "")
	}

	if c.model != nil {
		set("extraction", true, c.model.Name())
	} else {
		set("extraction", false, "not initialized")
	}

	if c.workers != nil {
		set("workers", true, fmt.Sprintf("running: %d", c.workers.Running()))
	} else {
		set("workers", false, "not initialized")
	}

	return status
}

// HTTPServices returns the services the HTTP adapter needs
func (c *Container) HTTPServices() httpapi.Services {
	s := httpapi.Services{
		Jobs:      c.services.Jobs,
		Dispatch:  c.services.Dispatch,
		Invoices:  c.services.Invoices,
		Assistant: c.services.Assistant,
		Users:     c.services.Users,
		Verifier:  c.verifier,
		Ping:      c.Ping,
	}
	if c.files.Local != nil {
		s.Files = c.files.Local
	}
	return s
}

// Services returns all application services
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Repositories returns all repositories
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// DB returns the transaction manager
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}
