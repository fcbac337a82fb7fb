// Package app initializes and holds long-lived application services,
// acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	gcs "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/api"
	"github.com/harvestiq/siteingest/internal/archive"
	"github.com/harvestiq/siteingest/internal/clock/system"
	"github.com/harvestiq/siteingest/internal/config"
	"github.com/harvestiq/siteingest/internal/ingest"
	"github.com/harvestiq/siteingest/internal/logging"
	"github.com/harvestiq/siteingest/internal/notify"
	"github.com/harvestiq/siteingest/internal/progress"
	"github.com/harvestiq/siteingest/internal/progress/sinks"
	"github.com/harvestiq/siteingest/internal/runs"
	"github.com/harvestiq/siteingest/internal/storage/memory"
	"github.com/harvestiq/siteingest/internal/storage/postgres"
	"github.com/harvestiq/siteingest/internal/store"
	"github.com/harvestiq/siteingest/internal/watch"
)

// App holds the shared, long-lived services: logger, stores, run
// registry, progress hub, pipeline, and the HTTP server. It is built
// once at startup and torn down by Close.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	registry *runs.Registry
	hub      *progress.Hub
	pipeline *ingest.Pipeline
	server   *api.Server
	watcher  *watch.Watcher

	records store.RecordRepository
	history store.RunHistoryRepository
	closers []func()
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Pipeline exposes the ingestion pipeline for CLI-driven runs.
func (a *App) Pipeline() *ingest.Pipeline {
	return a.pipeline
}

// Registry exposes the live run registry.
func (a *App) Registry() *runs.Registry {
	return a.registry
}

// Handler returns the HTTP API handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// New builds the full service graph from configuration. A set DB DSN
// selects Postgres persistence, otherwise everything runs in memory;
// Pub/Sub and the GCS mirror attach only when configured.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	logger.Info("initializing services")

	a := &App{cfg: cfg, logger: logger}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	notifier, err := a.initNotifier(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	archiver, err := a.initArchiver(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	clk := system.New()
	a.registry = runs.NewRegistry(logger.Named("runs"), runs.WithClock(clk.Now))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector())
	promSink, err := sinks.NewPrometheusSink(promRegistry)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	a.hub = progress.NewHub(
		progress.Config{BaseContext: ctx, Logger: logger.Named("progress")},
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
		sinks.NewStoreSink(a.history, logger.Named("progress")),
	)

	a.pipeline = ingest.NewPipeline(
		ctx,
		ingest.Config{
			InboxDir:        cfg.Ingest.InboxDir,
			BatchSize:       cfg.Ingest.BatchSize,
			FileTimeout:     cfg.FileTimeout(),
			InterBatchPause: cfg.InterBatchPause(),
		},
		a.records, a.registry, a.hub, archiver, notifier,
		logger.Named("ingest"),
	)

	a.server = api.NewServer(
		a.pipeline, a.registry, a.history, a.records,
		promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		cfg, logger.Named("api"),
	)

	if cfg.Watch.Enabled {
		a.watcher, err = watch.New(cfg.Ingest.InboxDir, cfg.Debounce(), func() error {
			_, startErr := a.pipeline.StartImport()
			return startErr
		}, logger.Named("watch"))
		if err != nil {
			a.Close()
			return nil, err
		}
	}

	logger.Info("services initialized")
	return a, nil
}

// Run serves HTTP and background loops until ctx is canceled.
func (a *App) Run(ctx context.Context) error {
	go a.registry.RunSweeper(ctx, a.cfg.SweepInterval())
	if a.watcher != nil {
		go func() {
			if err := a.watcher.Run(ctx); err != nil {
				a.logger.Error("inbox watcher exited", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", zap.Int("port", a.cfg.Server.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func (a *App) initStores(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Info("no database configured, using in-memory stores")
		a.records = memory.NewRecordStore()
		a.history = memory.NewRunStore()
		return nil
	}

	a.logger.Info("connecting to postgres")
	recordStore, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
		DSN:      a.cfg.DB.DSN,
		MaxConns: a.cfg.DB.MaxConns,
		MinConns: a.cfg.DB.MinConns,
	})
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	a.closers = append(a.closers, recordStore.Close)
	if err := recordStore.EnsureSchema(ctx); err != nil {
		return err
	}

	runStore, err := postgres.NewRunStore(ctx, a.cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("init run store: %w", err)
	}
	a.closers = append(a.closers, runStore.Close)
	if err := runStore.EnsureSchema(ctx); err != nil {
		return err
	}

	a.records = recordStore
	a.history = runStore
	return nil
}

func (a *App) initNotifier(ctx context.Context) (notify.Notifier, error) {
	if a.cfg.PubSub.ProjectID == "" || a.cfg.PubSub.TopicName == "" {
		a.logger.Info("pubsub not configured, completion notifications stay in process")
		return notify.NewMemory(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() {
		if cerr := client.Close(); cerr != nil {
			a.logger.Warn("close pubsub client", zap.Error(cerr))
		}
	})
	a.logger.Info("publishing completions to pubsub",
		zap.String("topic", a.cfg.PubSub.TopicName))
	return notify.NewPubSub(client.Publisher(a.cfg.PubSub.TopicName)), nil
}

func (a *App) initArchiver(ctx context.Context) (*archive.Archiver, error) {
	opts := []archive.Option{}
	if a.cfg.Storage.GCSBucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if cerr := client.Close(); cerr != nil {
				a.logger.Warn("close storage client", zap.Error(cerr))
			}
		})
		mirror, err := archive.NewGCSMirror(client, a.cfg.Storage.GCSBucket)
		if err != nil {
			return nil, err
		}
		opts = append(opts, archive.WithMirror(mirror))
		a.logger.Info("mirroring archives to gcs",
			zap.String("bucket", a.cfg.Storage.GCSBucket))
	}
	return archive.New(a.logger.Named("archive"), opts...), nil
}

// Close gracefully shuts down all services in the container.
func (a *App) Close() {
	a.logger.Info("shutting down services")
	if a.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close", zap.Error(err))
		}
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}
