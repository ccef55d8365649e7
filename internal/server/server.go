// Package server builds the crawler service from configuration and runs it
// until shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/api"
	"github.com/JakeFAU/site-discovery-crawler/internal/clock/system"
	"github.com/JakeFAU/site-discovery-crawler/internal/config"
	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/dispatcher"
	"github.com/JakeFAU/site-discovery-crawler/internal/id/uuid"
	"github.com/JakeFAU/site-discovery-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/site-discovery-crawler/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/site-discovery-crawler/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/site-discovery-crawler/internal/queue/memory"
	"github.com/JakeFAU/site-discovery-crawler/internal/runner"
	gcsstorage "github.com/JakeFAU/site-discovery-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/site-discovery-crawler/internal/storage/local"
	memoryStorage "github.com/JakeFAU/site-discovery-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/site-discovery-crawler/internal/storage/postgres"
	"github.com/JakeFAU/site-discovery-crawler/internal/telemetry"
	"github.com/JakeFAU/site-discovery-crawler/internal/worker"
)

// JobBackend is the persistence the service needs: the job store, the page
// index and its read side. *postgres.Store satisfies it, as does
// MemoryBackend.
type JobBackend interface {
	crawler.JobStore
	crawler.PageIndex
	ListPages(ctx context.Context, jobID string) ([]crawler.PageRecord, error)
}

// MemoryBackend keeps jobs and page rows in process memory.
type MemoryBackend struct {
	*memoryStorage.JobStore
	*memoryStorage.PageIndex
}

// NewMemoryBackend constructs an empty MemoryBackend.
func NewMemoryBackend() MemoryBackend {
	return MemoryBackend{JobStore: memoryStorage.NewJobStore(), PageIndex: memoryStorage.NewPageIndex()}
}

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	runner       *runner.Runner
	dispatch     *dispatcher.Dispatcher
	registry     *dispatcher.Registry
	progressHub  *progress.Hub
	queue        *queueMemory.Queue
	stack        *CrawlStack
	backend      JobBackend
	pgStore      *pgstore.Store
	pubsubClient *pubsub.Client
	publisher    *gcppublisher.Publisher
	storage      *storage.Client

	tracerShutdown func(context.Context) error
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("port", cfg.Server.Port),
		zap.Int("workers", cfg.Crawler.Workers),
	)

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("tracer init failed: %w", err)
		}
		app.tracerShutdown = tp.Shutdown
	}

	if err := app.setupDatabase(ctx); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	blobs, err := app.setupStorage(ctx)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	emitter, err := app.setupProgress()
	if err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}

	app.stack = NewCrawlStack(cfg, logger)
	app.queue = queueMemory.NewQueue(cfg.Crawler.QueueDepth)
	app.registry = dispatcher.NewRegistry()
	app.dispatch = app.setupDispatcher(blobs, publisher, emitter)

	app.runner = runner.New(
		app.backend,
		app.dispatch,
		app.registry,
		uuid.New(),
		system.New(),
		runner.Config{
			MaxPagesDefault: cfg.Crawler.MaxPagesDefault,
			MaxPagesLimit:   cfg.Crawler.MaxPagesLimit,
			MaxExclusions:   cfg.Crawler.MaxExclusions,
		},
		logger.Named("runner"),
	)

	var ready []api.Pinger
	if app.pgStore != nil {
		ready = append(ready, app.pgStore)
	}
	apiKey := ""
	if cfg.Auth.Enabled {
		apiKey = cfg.Auth.APIKey
	}
	app.apiServer = api.NewServer(
		app.runner,
		api.NewProgressHandler(app.backend, logger.Named("progress_api")),
		ready,
		api.Config{
			APIKey:         apiKey,
			RequestTimeout: time.Duration(cfg.Server.RequestTimeoutSeconds) * time.Second,
		},
		logger.Named("api"),
	)
	return app, nil
}

// Handler exposes the HTTP API, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Runner exposes the job runner.
func (a *App) Runner() *runner.Runner {
	return a.runner
}

// Run serves HTTP and runs the worker pool until ctx ends or the server
// fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Crawler.Workers))
		a.dispatch.Run(gctx)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutdown initiated")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	})

	runErr := g.Wait()

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout())
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Close releases every dependency. It is safe to call after Run.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.stack.Close()
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		a.progressHub = nil
	}
	if a.publisher != nil {
		a.publisher.Stop()
		a.publisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.pgStore != nil {
		a.pgStore.Close()
		a.pgStore = nil
	}
}

func (a *App) closeObservability(ctx context.Context) {
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
	_ = a.logger.Sync()
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.logger.Warn("no database DSN configured, keeping jobs in memory")
		a.backend = NewMemoryBackend()
		return nil
	}
	store, err := pgstore.New(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		JobsTable:       a.cfg.DB.JobsTable,
		PagesTable:      a.cfg.DB.PagesTable,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("postgres store init failed: %w", err)
	}
	a.pgStore = store
	if a.cfg.DB.EnsureSchema {
		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	a.backend = store
	a.logger.Info("postgres job store initialized",
		zap.String("jobs_table", a.cfg.DB.JobsTable),
		zap.String("pages_table", a.cfg.DB.PagesTable),
	)
	return nil
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	if !a.cfg.Storage.ArchivePages {
		a.logger.Info("page archiving disabled")
		return nil, nil
	}
	switch a.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Info("using GCS page archive", zap.String("bucket", a.cfg.Storage.Bucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(a.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local page archive", zap.String("path", a.cfg.Storage.Local.BaseDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory page archive")
		return memoryStorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.TopicName == "" {
		a.logger.Info("no Pub/Sub topic configured, finished events disabled")
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.publisher = gcppublisher.New(client, a.logger.Named("pubsub"))
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return a.publisher, nil
}

func (a *App) setupProgress() (progress.Emitter, error) {
	if !a.cfg.Progress.Enabled {
		a.logger.Info("progress tracking disabled")
		return nil, nil
	}
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(a.backend, a.logger.Named("progress_store")),
	}
	if a.cfg.Progress.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(a.logger.Named("progress_log")))
	}
	if a.cfg.Progress.PrometheusEnabled {
		promSink, err := progresssinks.NewPrometheusSink(nil)
		if err != nil {
			return nil, fmt.Errorf("progress prometheus sink: %w", err)
		}
		sinkList = append(sinkList, promSink)
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(a.cfg.Progress.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(a.cfg.Progress.SinkTimeoutMs) * time.Millisecond,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return a.progressHub, nil
}

func (a *App) setupDispatcher(
	blobs crawler.BlobStore,
	publisher crawler.Publisher,
	emitter progress.Emitter,
) *dispatcher.Dispatcher {
	workerCfg := worker.Config{
		Topic:        a.cfg.PubSub.TopicName,
		ArchivePages: a.cfg.Storage.ArchivePages,
		BlobPrefix:   a.cfg.Storage.Prefix,
		ContentType:  a.cfg.Storage.ContentType,
	}
	workers := make([]dispatcher.Worker, 0, a.cfg.Crawler.Workers)
	for i := 0; i < a.cfg.Crawler.Workers; i++ {
		workers = append(workers, worker.New(
			a.queue,
			a.backend,
			a.stack.Scheduler,
			a.registry,
			emitter,
			blobs,
			a.backend,
			publisher,
			a.stack.Promoter,
			system.New(),
			workerCfg,
			a.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(a.queue, workers)
}
