// Package container wires configuration into concrete components with ordered
// construction and reverse-order teardown.
package container

import (
	"context"
	"fmt"
	"io"

	"github.com/facturia/invoice-pipeline/internal/application/eventbus"
	"github.com/facturia/invoice-pipeline/internal/application/extraction"
	"github.com/facturia/invoice-pipeline/internal/application/port"
	"github.com/facturia/invoice-pipeline/internal/application/reconciler"
	"github.com/facturia/invoice-pipeline/internal/application/service"
	"github.com/facturia/invoice-pipeline/internal/config"
	"github.com/facturia/invoice-pipeline/internal/domain/event"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/auth"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/document"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/export"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/external/gemini"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/external/lark"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/external/openai"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/persistence/repository"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/persistence/sqldb"
	"github.com/facturia/invoice-pipeline/internal/infrastructure/storage"
	"github.com/facturia/invoice-pipeline/migrations"
	"github.com/facturia/invoice-pipeline/pkg/database"
	"go.uber.org/zap"
)

// RepositoryBundle groups all repositories
type RepositoryBundle struct {
	Jobs     *repository.JobRepository
	Invoices *repository.InvoiceRepository
	Users    *repository.UserRepository
}

// ServiceBundle groups all application services
type ServiceBundle struct {
	Jobs      service.JobService
	Dispatch  service.DispatchService
	Invoices  service.InvoiceService
	Assistant service.AssistantService
	Users     service.UserService
}

// FileStoreBundle holds the configured original-file store.
// Local is set only for the local backend, whose URLs the API serves itself.
type FileStoreBundle struct {
	Store port.FileStore
	Local *storage.LocalFileStore
}

// ProvideDatabase opens the configured database and applies pending migrations
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*database.DB, error) {
	db, err := database.New(database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		DialTimeout:     cfg.DialTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// ProvideRepositories creates all repositories over one transaction manager
func ProvideRepositories(db *sqldb.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Jobs:     repository.NewJobRepository(db, logger),
		Invoices: repository.NewInvoiceRepository(db, logger),
		Users:    repository.NewUserRepository(db, logger),
	}
}

// ProvideModel builds the configured extraction model. The returned closer may be nil.
func ProvideModel(ctx context.Context, cfg config.ExtractionConfig, logger *zap.Logger) (port.ExtractionModel, io.Closer, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		m, err := gemini.New(ctx, gemini.Config{
			APIKey:      cfg.GoogleAPIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return m, m, nil
	case config.ProviderOpenAI:
		m, err := openai.New(openai.Config{
			APIKey:      cfg.OpenAIAPIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return m, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported extraction provider %q", cfg.Provider)
	}
}

// ProvideExtractor builds the extraction adapter with the PDF renderer and image normalizer
func ProvideExtractor(model port.ExtractionModel, cfg config.ExtractionConfig, logger *zap.Logger) *extraction.Adapter {
	renderer := document.NewPDFRenderer(document.RendererConfig{
		MaxPages:    cfg.MaxPages,
		DPI:         cfg.DPI,
		JPEGQuality: cfg.JPEGQuality,
	}, logger)
	normalizer := document.NewImageNormalizer(cfg.JPEGQuality)

	return extraction.NewAdapter(model, renderer, normalizer, extraction.Options{PerPage: cfg.PerPage}, logger)
}

// ProvideFileStore builds the configured original-file store; backend "none" yields an empty bundle
func ProvideFileStore(ctx context.Context, cfg config.StorageConfig, publicURL string, logger *zap.Logger) (*FileStoreBundle, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		local := storage.NewLocalFileStore(cfg.BaseDir, publicURL, []byte(cfg.SigningKey), logger)
		return &FileStoreBundle{Store: local, Local: local}, nil
	case config.StorageS3:
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
			Prefix:   cfg.Prefix,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &FileStoreBundle{Store: s3Store}, nil
	case config.StorageNone:
		return &FileStoreBundle{}, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

// ProvideNotifier returns the Lark notifier, or nil when Lark is not configured
func ProvideNotifier(cfg config.LarkConfig, logger *zap.Logger) port.Notifier {
	if !cfg.Enabled() {
		return nil
	}
	return lark.NewNotifier(lark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		ChatID:    cfg.OpsChatID,
		BaseURL:   cfg.BaseURL,
	}, logger)
}

// ProvideEventBus creates the job event bus. Every event is logged, and
// failures reach the notifier when one is configured.
func ProvideEventBus(notifier port.Notifier, cfg config.JobsConfig, logger *zap.Logger) *eventbus.Bus {
	bus := eventbus.New(logger)
	for _, t := range []event.Type{
		event.TypeJobClaimed,
		event.TypeJobCompleted,
		event.TypeJobFailed,
		event.TypeJobsExpired,
	} {
		bus.SubscribeNamed(t, "log", service.JobEventLogger(logger))
	}
	if notifier != nil {
		bus.SubscribeNamed(event.TypeJobFailed, "notify", service.FailureNotifier(notifier, cfg.NotifyTimeout, logger))
	}

	names := make([]string, 0, 2)
	for _, h := range bus.ListHandlers(event.TypeJobFailed) {
		names = append(names, h.Name)
	}
	logger.Info("Event bus ready", zap.Strings("job_failed_handlers", names))
	return bus
}

// ProvideVerifier builds the bearer-token verifier
func ProvideVerifier(cfg config.AuthConfig) port.IdentityVerifier {
	return auth.NewJWTVerifier(cfg.JWTSecret, cfg.Issuer)
}

// ServiceDeps holds dependencies for ProvideServices
type ServiceDeps struct {
	Config    *config.Config
	Repos     *RepositoryBundle
	Model     port.ExtractionModel
	Extractor service.Extractor
	Files     port.FileStore
	Events    port.EventPublisher
	Logger    *zap.Logger
}

// ProvideServices creates all application services
func ProvideServices(deps *ServiceDeps) *ServiceBundle {
	cfg := deps.Config
	rec := reconciler.New(cfg.Invoice.BaseCurrency)

	return &ServiceBundle{
		Jobs: service.NewJobService(deps.Repos.Jobs, cfg.Jobs.MaxPayloadBytes, deps.Logger),
		Dispatch: service.NewDispatchService(
			deps.Repos.Jobs,
			deps.Repos.Invoices,
			deps.Extractor,
			rec,
			deps.Files,
			deps.Events,
			service.DispatchConfig{StaleAfter: cfg.Jobs.StaleAfter},
			deps.Logger,
		),
		Invoices: service.NewInvoiceService(
			deps.Repos.Invoices,
			rec,
			deps.Files,
			export.NewXLSXExporter(deps.Logger),
			cfg.Storage.URLTTL,
			deps.Logger,
		),
		Assistant: service.NewAssistantService(deps.Repos.Invoices, deps.Model, deps.Logger),
		Users:     service.NewUserService(deps.Repos.Users, cfg.Auth.TrialDays, deps.Logger),
	}
}
