// -----------------------------------------------------------------------
// Application wiring - storage, bus, background services, schedules
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/bus"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
	"github.com/ternarybob/prospector/internal/models"
	"github.com/ternarybob/prospector/internal/services/backend"
	"github.com/ternarybob/prospector/internal/services/capture"
	"github.com/ternarybob/prospector/internal/services/enrich"
	"github.com/ternarybob/prospector/internal/services/export"
	"github.com/ternarybob/prospector/internal/services/importer"
	"github.com/ternarybob/prospector/internal/services/extract"
	"github.com/ternarybob/prospector/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	StorageManager interfaces.StorageManager
	Bus            *bus.Bus
	Client         interfaces.BusClient
	Engine         *extract.Engine

	cron *cron.Cron
}

// New initializes the background context: storage, services, message bus,
// and the enrichment/GC schedules.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	store := storageManager.ItemStorage()

	fetchTimeout := common.ParseDuration(config.Enrichment.RequestTimeout, 20*time.Second)
	fetcher, err := enrich.NewHTTPFetcher(fetchTimeout, config.Capture.UserAgent, config.Enrichment.MaxBodySize, logger)
	if err != nil {
		storageManager.Close()
		cancel()
		return nil, fmt.Errorf("failed to initialize contact fetcher: %w", err)
	}

	enricher := enrich.NewService(store, fetcher, config.Enrichment, logger)
	exporter := export.NewService(store, config.Export, logger)
	leadImporter := importer.NewService(config.Importer, logger)

	handler := backend.NewHandler(store, enricher, exporter, leadImporter, logger)

	messageBus := bus.New(handler, logger)
	if err := messageBus.Start(ctx); err != nil {
		storageManager.Close()
		cancel()
		return nil, err
	}

	app := &App{
		Config:         config,
		Logger:         logger,
		ctx:            ctx,
		cancelCtx:      cancel,
		StorageManager: storageManager,
		Bus:            messageBus,
		Client:         messageBus.Client(),
		Engine:         extract.NewEngine(logger),
	}

	app.startSchedules()
	return app, nil
}

// startSchedules arms the cron-driven enrichment runs and the badger GC
// loop, when configured.
func (a *App) startSchedules() {
	if a.Config.Enrichment.Enabled && a.Config.Enrichment.Schedule != "" {
		a.cron = cron.New()
		_, err := a.cron.AddFunc(a.Config.Enrichment.Schedule, func() {
			reply, err := a.Client.Call(a.ctx, models.Message{Kind: models.MsgEnrichEmails})
			if err != nil {
				a.Logger.Warn().Err(err).Msg("Scheduled enrichment failed")
				return
			}
			a.Logger.Info().
				Int("processed", reply.Processed).
				Int("failures", reply.Failures).
				Msg("Scheduled enrichment complete")
		})
		if err != nil {
			a.Logger.Warn().Err(err).Str("schedule", a.Config.Enrichment.Schedule).Msg("Invalid enrichment schedule")
			a.cron = nil
		} else {
			a.cron.Start()
			a.Logger.Info().Str("schedule", a.Config.Enrichment.Schedule).Msg("Enrichment schedule armed")
		}
	}

	if gcInterval := common.ParseDuration(a.Config.Storage.Badger.GCInterval, 0); gcInterval > 0 {
		go func() {
			ticker := time.NewTicker(gcInterval)
			defer ticker.Stop()
			for {
				select {
				case <-a.ctx.Done():
					return
				case <-ticker.C:
					if err := a.StorageManager.RunGC(a.ctx); err != nil {
						a.Logger.Debug().Err(err).Msg("Storage GC pass failed")
					}
				}
			}
		}()
	}
}

// RunCapture starts a browser and runs one capture session against the
// given search. It blocks until the session ends.
func (a *App) RunCapture(ctx context.Context, niche, location string) error {
	driver := capture.NewChromeDriver(a.Config.Capture, a.Logger)
	if err := driver.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer driver.Stop()

	sched := capture.NewScheduler()
	crawler := capture.NewCrawler(driver, a.Engine, a.Client, sched, a.Config.Capture, a.Logger)
	session := capture.NewSession(driver, a.Engine, a.Client, sched, crawler, a.Config.Capture, a.Logger)

	sessionID := common.NewSessionID()
	a.Logger.Info().Str("session", sessionID).Msg("Capture session created")

	return session.Run(ctx, niche, location)
}

// Close shuts the application down in reverse dependency order.
func (a *App) Close() {
	if a.cron != nil {
		a.cron.Stop()
	}
	a.cancelCtx()
	if a.Bus != nil {
		a.Bus.Stop()
	}
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Storage close failed")
		}
	}
	a.Logger.Info().Msg("Application shut down")
}
