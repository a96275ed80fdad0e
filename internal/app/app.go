// -----------------------------------------------------------------------
// Application - dependency wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/handlers"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/services/chunker"
	"github.com/ternarybob/colligo/internal/services/embeddings"
	"github.com/ternarybob/colligo/internal/services/fetcher"
	"github.com/ternarybob/colligo/internal/services/jobs"
	"github.com/ternarybob/colligo/internal/services/quota"
	"github.com/ternarybob/colligo/internal/services/scheduler"
	"github.com/ternarybob/colligo/internal/services/search"
	"github.com/ternarybob/colligo/internal/services/worker"
	badgerstorage "github.com/ternarybob/colligo/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config  *common.Config
	Logger  arbor.ILogger
	Storage *badgerstorage.Manager

	// Core services
	FetchService     interfaces.FetchService
	ChunkService     interfaces.ChunkService
	EmbeddingService interfaces.EmbeddingService
	QuotaService     interfaces.QuotaService
	JobService       interfaces.JobService
	WorkerService    interfaces.WorkerService
	SchedulerService interfaces.SchedulerService
	SearchService    interfaces.SearchService

	// HTTP handlers
	JobHandler     *handlers.JobHandler
	ChatbotHandler *handlers.ChatbotHandler
	SearchHandler  *handlers.SearchHandler
	StatusHandler  *handlers.StatusHandler
}

// New wires storage, services and handlers from the resolved configuration
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	storage, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.Storage = storage
	logger.Debug().Str("path", cfg.Storage.Badger.Path).Msg("Storage initialized")

	if err := app.initServices(); err != nil {
		storage.Close()
		return nil, err
	}
	app.initHandlers()

	logger.Info().
		Str("embeddings_mode", cfg.Embeddings.Mode).
		Bool("refresh_enabled", cfg.Refresh.Enabled).
		Msg("Application initialized")

	return app, nil
}

// initServices constructs the service graph in dependency order
func (a *App) initServices() error {
	a.FetchService = fetcher.NewService(a.Logger, &a.Config.Fetcher)
	a.ChunkService = chunker.NewService(a.Logger, &a.Config.Chunker)

	embedder, err := embeddings.NewFromConfig(a.Logger, &a.Config.Embeddings)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding service: %w", err)
	}
	a.EmbeddingService = embedder

	quotaGuard, err := quota.NewGuard(a.Logger, a.Storage.Tenants, &a.Config.Quota)
	if err != nil {
		return fmt.Errorf("failed to initialize quota guard: %w", err)
	}
	a.QuotaService = quotaGuard

	a.JobService = jobs.NewService(a.Logger, a.Storage.Jobs, a.Storage.Tasks, a.Storage.States)
	a.SearchService = search.NewService(a.Logger, a.Storage.Chunks, a.EmbeddingService)

	pipeline := worker.NewPipeline(
		a.Logger,
		a.FetchService,
		a.ChunkService,
		a.EmbeddingService,
		a.QuotaService,
		a.Storage.Chunks,
		a.Storage.Crawls,
	)
	a.WorkerService = worker.NewService(
		a.Logger,
		&a.Config.Worker,
		a.Storage.Jobs,
		a.Storage.Tasks,
		a.Storage.States,
		pipeline,
	)

	a.SchedulerService = scheduler.NewService(
		a.Logger,
		&a.Config.Refresh,
		a.JobService,
		a.Storage.Jobs,
		a.Storage.Crawls,
	)

	a.Logger.Debug().Msg("Services initialized")
	return nil
}

// initHandlers constructs the HTTP handlers over the service graph
func (a *App) initHandlers() {
	a.JobHandler = handlers.NewJobHandler(a.JobService, a.Logger)
	a.ChatbotHandler = handlers.NewChatbotHandler(a.Storage.States, a.Storage.Chunks, a.Logger)
	a.SearchHandler = handlers.NewSearchHandler(a.SearchService, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Storage.Jobs, a.WorkerService, a.Config.Storage.Badger.Path, a.Logger)
}

// Start launches the background worker and refresh scheduler
func (a *App) Start() error {
	if err := a.WorkerService.Start(); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	if err := a.SchedulerService.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	return nil
}

// Stop shuts down background services and closes storage. The worker stops
// before storage so no in-flight task writes hit a closed database.
func (a *App) Stop() {
	if err := a.SchedulerService.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Scheduler stop failed")
	}
	if err := a.WorkerService.Stop(); err != nil {
		a.Logger.Warn().Err(err).Msg("Worker stop failed")
	}
	if err := a.Storage.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage close failed")
	}
	a.Logger.Info().Msg("Application stopped")
}
