// Package app wires the enrichment pipeline together. Application acts
// as the facade for the whole system: it owns construction order,
// startup and shutdown of every component.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/seclens/vulnprio/internal/adapters/cache"
	"github.com/seclens/vulnprio/internal/adapters/intel/epss"
	"github.com/seclens/vulnprio/internal/adapters/intel/kev"
	"github.com/seclens/vulnprio/internal/adapters/intel/nvd"
	pdfexport "github.com/seclens/vulnprio/internal/adapters/reporting"
	"github.com/seclens/vulnprio/internal/adapters/storage"
	webserver "github.com/seclens/vulnprio/internal/adapters/web/server"
	"github.com/seclens/vulnprio/internal/config"
	"github.com/seclens/vulnprio/internal/core/domain"
	"github.com/seclens/vulnprio/internal/core/services/enrich"
	"github.com/seclens/vulnprio/internal/core/services/persistence"
	"github.com/seclens/vulnprio/internal/core/services/refresh"
	"github.com/seclens/vulnprio/internal/core/services/reporting"
	"github.com/seclens/vulnprio/internal/telemetry"
)

const persistBufferSize = 10000

// Application holds the core components of the service.
type Application struct {
	Config             *config.Config
	Orchestrator       *enrich.Orchestrator
	WebServer          *webserver.Server
	Scheduler          *refresh.Scheduler
	PersistenceManager *persistence.PersistenceManager

	store     *storage.SQLiteAdapter
	cache     *cache.SQLiteCache
	kevClient *kev.Client

	// ready flips once the first KEV sync attempt has completed, so the
	// readiness probe does not pass before membership checks can answer.
	ready atomic.Bool
}

// New creates an Application and bootstraps its components.
func New(cfg *config.Config) (*Application, error) {
	app := &Application{Config: cfg}

	if err := app.bootstrap(); err != nil {
		return nil, fmt.Errorf("application bootstrap failed: %w", err)
	}

	return app, nil
}

// bootstrap orchestrates the initialization sequence.
func (app *Application) bootstrap() error {
	// 1. Foundation & Infrastructure
	telemetry.InitMetrics()

	if err := app.initStorage(); err != nil {
		return err
	}

	// 2. Intelligence Source Adapters
	var nvdOpts []nvd.Option
	if app.Config.NVDAPIKey != "" {
		nvdOpts = append(nvdOpts, nvd.WithAPIKey(app.Config.NVDAPIKey))
	}
	if app.Config.NVDBaseURL != "" {
		nvdOpts = append(nvdOpts, nvd.WithBaseURL(app.Config.NVDBaseURL))
	}
	detail := nvd.NewClient(nvdOpts...)

	var epssOpts []epss.Option
	if app.Config.EPSSBaseURL != "" {
		epssOpts = append(epssOpts, epss.WithBaseURL(app.Config.EPSSBaseURL))
	}
	exploit := epss.NewClient(epssOpts...)

	var kevOpts []kev.Option
	if app.Config.KEVURL != "" || app.Config.KEVFallback != "" {
		kevOpts = append(kevOpts, kev.WithURLs(app.Config.KEVURL, app.Config.KEVFallback))
	}
	app.kevClient = kev.NewClient(app.Config.CacheDir, kevOpts...)

	// 3. Pipeline Services
	app.PersistenceManager = persistence.NewPersistenceManager(app.store, persistBufferSize)

	ttls := domain.SourceTTLs{
		Detail:  app.Config.DetailTTL,
		Exploit: app.Config.ExploitTTL,
		KEV:     app.Config.KEVTTL,
	}

	app.Orchestrator = enrich.NewOrchestrator(detail, exploit, app.kevClient, app.cache, app.PersistenceManager, enrich.Options{
		TTLs:            ttls,
		AdapterTimeout:  app.Config.AdapterTimeout,
		OverallTimeout:  app.Config.OverallTimeout,
		BulkConcurrency: int64(app.Config.BulkConcurrency),
	})

	// 4. Web Server & Background Refresh
	generator := reporting.NewExecutiveReportGenerator(app.store, app.kevClient)
	app.WebServer = webserver.NewServer(
		app.Config.Addr,
		app.Orchestrator,
		app.store,
		app.kevClient,
		generator,
		pdfexport.NewPDFExporter(),
		app.ready.Load,
	)

	app.Scheduler = refresh.NewScheduler(app.Orchestrator, app.store, app.cache, app.kevClient, app.WebServer.WSManager, refresh.Options{
		Interval:   app.Config.RefreshInterval,
		ScoreDelta: app.Config.ScoreDelta,
		TTLs:       ttls,
	})

	return nil
}

func (app *Application) initStorage() error {
	for _, p := range []string{app.Config.DBPath, app.Config.CacheDBPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	if err := os.MkdirAll(app.Config.CacheDir, 0o755); err != nil {
		return fmt.Errorf("failed to create feed cache directory: %w", err)
	}

	store, err := storage.NewSQLiteAdapter(app.Config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init vulnerability storage: %w", err)
	}
	app.store = store

	c, err := cache.NewSQLiteCache(app.Config.CacheDBPath)
	if err != nil {
		return fmt.Errorf("failed to init enrichment cache: %w", err)
	}
	app.cache = c

	return nil
}

// Run starts the application components and blocks until ctx is
// cancelled or the web server fails.
func (app *Application) Run(ctx context.Context) error {
	slog.Info("starting components")

	// 1. Background loops
	app.PersistenceManager.Start(ctx)
	app.Scheduler.Start(ctx)

	// 2. Initial KEV snapshot. A failed sync is survivable: the client
	// falls back to its disk mirror and the scheduler retries.
	go func() {
		syncCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if n, err := app.kevClient.Sync(syncCtx); err != nil {
			slog.Warn("initial KEV sync failed", "error", err, "entries", n)
		} else {
			slog.Info("KEV catalog loaded", "entries", n)
		}
		app.ready.Store(true)
	}()

	// 3. Web server (blocks)
	err := app.WebServer.Run(ctx)

	app.cleanup()
	return err
}

func (app *Application) cleanup() {
	slog.Info("cleaning up resources")

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			slog.Error("enrichment cache close error", "error", err)
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			slog.Error("storage close error", "error", err)
		}
	}
}
