// Package app builds and holds the long-lived services of an archiver run, acting as the
// dependency injection container for the CLI.
package app

import (
	"context"
	"fmt"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/step-archiver/internal/archive"
	"github.com/JakeFAU/step-archiver/internal/catalog"
	"github.com/JakeFAU/step-archiver/internal/config"
	collyfetcher "github.com/JakeFAU/step-archiver/internal/fetcher/colly"
	"github.com/JakeFAU/step-archiver/internal/id/uuid"
	"github.com/JakeFAU/step-archiver/internal/linkstore"
	"github.com/JakeFAU/step-archiver/internal/logging"
	"github.com/JakeFAU/step-archiver/internal/page"
	"github.com/JakeFAU/step-archiver/internal/page/headless"
	"github.com/JakeFAU/step-archiver/internal/page/static"
	"github.com/JakeFAU/step-archiver/internal/runner"
	"github.com/JakeFAU/step-archiver/internal/server"
	"github.com/JakeFAU/step-archiver/internal/storage"
	"github.com/JakeFAU/step-archiver/internal/storage/gcs"
	"github.com/JakeFAU/step-archiver/internal/storage/local"
	"github.com/JakeFAU/step-archiver/internal/storage/memory"
	"github.com/JakeFAU/step-archiver/internal/storage/postgres"
)

// Option customizes App construction.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	gcsOptions []option.ClientOption
}

// WithLogger uses logger instead of building one from cfg.Logging.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithGCSClientOptions passes extra options to the GCS client.
func WithGCSClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.gcsOptions = append(o.gcsOptions, opts...) }
}

// App holds all the shared, long-lived services for one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	runID    string
	runner   *runner.Runner
	links    storage.Provider
	browser  *headless.Handle
	manifest *postgres.ManifestStore
	gcs      *gcsclient.Client
}

// New initializes every service described by cfg. It fails fast when any of them cannot
// be built.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg}
	if o.logger != nil {
		a.logger = o.logger
	} else {
		logger, err := logging.New(cfg.Logging.Development)
		if err != nil {
			return nil, err
		}
		a.logger = logger
	}

	runID, err := uuid.New().NewID()
	if err != nil {
		return nil, err
	}
	a.runID = runID
	a.logger = a.logger.With(zap.String("run_id", runID))
	a.logger.Info("Initializing application services...")

	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      cfg.FetchTimeout(),
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
	})

	handle, err := a.buildPage(fetcher)
	if err != nil {
		return nil, err
	}

	links, err := a.buildLinkProvider(ctx, o.gcsOptions)
	if err != nil {
		return nil, err
	}
	a.links = links

	var recorder runner.Recorder = runner.NoopRecorder{}
	if cfg.Manifest.Enabled {
		a.logger.Info("Connecting to PostgreSQL manifest", zap.String("table", cfg.Manifest.Table))
		store, err := postgres.NewManifestStore(ctx, postgres.ManifestStoreConfig{
			DSN:      cfg.Manifest.DSN,
			Table:    cfg.Manifest.Table,
			MaxConns: cfg.Manifest.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize manifest store: %w", err)
		}
		a.manifest = store
		recorder = store
	}

	a.runner, err = runner.New(runner.Options{
		Discoverer: catalog.NewDiscoverer(handle, catalog.DiscoverConfig{
			ProductLinkSelector: cfg.Catalog.ProductLinkSelector,
			MaxDepth:            cfg.Catalog.MaxDepth,
		}, a.logger.Named("discover")),
		Extractor: catalog.NewExtractor(handle, catalog.ExtractConfig{
			BreadcrumbSelector:  cfg.Catalog.BreadcrumbSelector,
			TitleSelector:       cfg.Catalog.TitleSelector,
			ArchiveLinkSelector: cfg.Catalog.ArchiveLinkSelector,
			SaveRoot:            cfg.Output.SaveDir,
			FileExtension:       cfg.Catalog.FileExtension,
			ArchiveExtension:    cfg.Catalog.ArchiveExtension,
		}, a.logger.Named("extract")),
		Materializer: archive.New(fetcher, a.logger.Named("archive")),
		Links:        linkstore.New(links, cfg.Links.Prefix),
		Recorder:     recorder,
		Logger:       a.logger.Named("runner"),
		RunID:        a.runID,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Metrics.Addr != "" {
		if err := server.New(a.logger.Named("server")).Start(ctx, cfg.Metrics.Addr); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	a.logger.Info("Application services initialized successfully.")
	ok = true
	return a, nil
}

func (a *App) buildPage(fetcher *collyfetcher.Fetcher) (page.Handle, error) {
	switch a.cfg.Browser.Mode {
	case config.BrowserStatic:
		a.logger.Info("Using static page handle")
		return static.New(fetcher, a.logger.Named("static")), nil
	case config.BrowserHeadless:
		a.logger.Info("Launching headless browser", zap.String("exec_path", a.cfg.Browser.ExecPath))
		h, err := headless.New(headless.Config{
			ExecPath:           a.cfg.Browser.ExecPath,
			UserAgent:          a.cfg.Browser.UserAgent,
			NavTimeout:         a.cfg.NavTimeout(),
			WindowWidth:        a.cfg.Browser.WindowWidth,
			WindowHeight:       a.cfg.Browser.WindowHeight,
			BlockResourceTypes: a.cfg.Browser.BlockResourceTypes,
		}, a.logger.Named("browser"))
		if err != nil {
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
		a.browser = h
		return h, nil
	default:
		return nil, fmt.Errorf("unknown browser mode: %s", a.cfg.Browser.Mode)
	}
}

func (a *App) buildLinkProvider(ctx context.Context, gcsOpts []option.ClientOption) (storage.Provider, error) {
	switch a.cfg.Links.Provider {
	case config.LinksLocal:
		a.logger.Info("Using local link files", zap.String("dir", a.cfg.Output.LinksDir))
		store, err := local.New(local.Config{BaseDir: a.cfg.Output.LinksDir})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize link storage: %w", err)
		}
		return store, nil
	case config.LinksGCS:
		a.logger.Info("Using GCS link files", zap.String("bucket", a.cfg.Links.GCSBucket))
		client, err := gcsclient.NewClient(ctx, gcsOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		a.gcs = client
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Links.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize link storage: %w", err)
		}
		return store, nil
	case config.LinksMemory:
		a.logger.Info("Using in-memory link files. Links are discarded on exit.")
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown links provider: %s", a.cfg.Links.Provider)
	}
}

// Logger returns the run-scoped logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Runner returns the pipeline orchestrator.
func (a *App) Runner() *runner.Runner {
	return a.runner
}

// Config returns the configuration the app was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// RunID identifies this process's run in logs and manifest rows.
func (a *App) RunID() string {
	return a.runID
}

// LinkProvider exposes the storage behind link files.
func (a *App) LinkProvider() storage.Provider {
	return a.links
}

// Close shuts down every service in the container.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	a.browser.Close()
	a.manifest.Close()
	if a.gcs != nil {
		if err := a.gcs.Close(); err != nil {
			a.logger.Warn("Error closing GCS client", zap.Error(err))
		}
	}
	// Sync fails on some terminals; nothing useful can be done about it.
	_ = a.logger.Sync()
}
