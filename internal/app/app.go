package app

import (
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/harvester/internal/common"
	"github.com/ternarybob/harvester/internal/handlers"
	"github.com/ternarybob/harvester/internal/interfaces"
	"github.com/ternarybob/harvester/internal/jobs"
	"github.com/ternarybob/harvester/internal/services/browser"
	"github.com/ternarybob/harvester/internal/services/export"
	"github.com/ternarybob/harvester/internal/services/scraper"
	"github.com/ternarybob/harvester/internal/storage"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Job records
	JobStore    interfaces.JobStore
	storeCloser io.Closer
	Sweeper     *jobs.Sweeper

	// Scrape engine
	Launcher interfaces.BrowserLauncher
	Engine   *scraper.Engine

	// Export
	ExportWriter interfaces.ExportWriter
	Credentials  interfaces.CredentialProvider

	validate *validator.Validate

	// HTTP handlers
	APIHandler            *handlers.APIHandler
	ScrapeHandler         *handlers.ScrapeHandler
	ProgressHandler       *handlers.ProgressHandler
	ProgressStreamHandler *handlers.ProgressStreamHandler
	ExportHandler         *handlers.ExportHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config:   cfg,
		Logger:   logger,
		validate: validator.New(),
	}

	// Initialize job store
	if err := app.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Int("workers", cfg.Scrape.Workers).
		Str("export_dir", cfg.Export.Dir).
		Msg("Application initialization complete")

	return app, nil
}

// initStorage opens the job store selected by config
func (a *App) initStorage() error {
	store, closer, err := storage.NewJobStore(a.Logger, a.Config)
	if err != nil {
		return err
	}
	a.JobStore = store
	a.storeCloser = closer

	a.Logger.Debug().
		Str("storage", a.Config.Storage.Type).
		Msg("Storage layer initialized")
	return nil
}

// initServices initializes the sweeper, browser launcher, scrape engine and export writer
func (a *App) initServices() error {
	ttl := common.ParseDurationOr(a.Config.Jobs.TTL, time.Hour)
	a.Sweeper = jobs.NewSweeper(a.JobStore, ttl, a.Logger)
	if a.Config.Jobs.SweepSchedule != "" {
		if err := a.Sweeper.Start(a.Config.Jobs.SweepSchedule); err != nil {
			return err
		}
	}

	a.Launcher = browser.NewLauncher(&a.Config.Browser, a.Logger)
	a.Engine = scraper.NewEngine(a.Config, a.Launcher, a.JobStore, a.Logger)

	a.ExportWriter = export.NewFileWriter(&a.Config.Export, a.Logger)
	a.Credentials = export.NewStaticProvider(a.Config.Export.StaticToken)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.ScrapeHandler = handlers.NewScrapeHandler(a.Engine, a.validate, a.Logger)
	a.ProgressHandler = handlers.NewProgressHandler(a.JobStore, a.validate, a.Logger)
	a.ProgressStreamHandler = handlers.NewProgressStreamHandler(a.JobStore, &a.Config.WebSocket, a.Logger)
	a.ExportHandler = handlers.NewExportHandler(a.ExportWriter, a.Credentials, a.validate, a.Logger)
}

// Close closes all application resources
func (a *App) Close() error {
	// Stop sweeper before the store goes away
	if a.Sweeper != nil {
		a.Sweeper.Stop()
		a.Logger.Info().Msg("Job sweeper stopped")
	}

	// Close storage
	if a.storeCloser != nil {
		if err := a.storeCloser.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
