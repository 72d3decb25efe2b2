// Package app initializes and holds long-lived application services, acting
// as a dependency injection container. It is initialized once at startup from
// the loaded configuration and passed to the commands that need it.
package app

import (
	"context"
	"errors"
	"fmt"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/queryharvest/harvester/internal/clock/system"
	"github.com/queryharvest/harvester/internal/config"
	"github.com/queryharvest/harvester/internal/database"
	"github.com/queryharvest/harvester/internal/export"
	"github.com/queryharvest/harvester/internal/harvest"
	"github.com/queryharvest/harvester/internal/id/uuid"
	"github.com/queryharvest/harvester/internal/policy/keyword"
	"github.com/queryharvest/harvester/internal/policy/ratelimit"
	"github.com/queryharvest/harvester/internal/policy/simple"
	"github.com/queryharvest/harvester/internal/progress"
	progresssinks "github.com/queryharvest/harvester/internal/progress/sinks"
	"github.com/queryharvest/harvester/internal/queue"
	queuememory "github.com/queryharvest/harvester/internal/queue/memory"
	"github.com/queryharvest/harvester/internal/registry"
	registryredis "github.com/queryharvest/harvester/internal/registry/redis"
	"github.com/queryharvest/harvester/internal/storage"
	fsstorage "github.com/queryharvest/harvester/internal/storage/fs"
	gcsstorage "github.com/queryharvest/harvester/internal/storage/gcs"
	memorystorage "github.com/queryharvest/harvester/internal/storage/memory"
	pgstorage "github.com/queryharvest/harvester/internal/storage/postgres"
	"github.com/queryharvest/harvester/internal/store"
	"github.com/queryharvest/harvester/internal/telemetry"
)

// memoryQueueDepth bounds the in-memory trigger queue used for local runs.
const memoryQueueDepth = 64

// App holds all the shared, long-lived services for the harvester. One App
// serves many runs; the only per-run state (the seen-URL registry) is built
// fresh inside Run.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	db           database.Provider
	contentStore storage.Provider
	exporter     harvest.Exporter
	queue        queue.Provider
	runRepo      store.RunRepository
	runStore     *pgstorage.RunStore
	hub          *progress.Hub
	gcsClient    *gcstorage.Client

	listing  *harvest.ListingFetcher
	content  *harvest.ContentFetcher
	renderer *harvest.ChromedpRenderer

	clock harvest.Clock
	ids   harvest.IDGenerator

	tracerShutdown func(context.Context) error
}

// GetLogger returns the shared zap logger instance.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetDatabase provides access to the harvest record database provider.
func (a *App) GetDatabase() database.Provider {
	return a.db
}

// GetQueue returns the queue provider used for trigger intake and
// run-completion notifications.
func (a *App) GetQueue() queue.Provider {
	return a.queue
}

// GetRunRepository exposes the run progress repository, or nil when no
// database is configured.
func (a *App) GetRunRepository() store.RunRepository {
	return a.runRepo
}

// GetConfig returns the configuration the App was built from.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// Run executes one harvesting run over the given queries and blocks until
// collection, persistence, export, and content fan-out have all finished.
func (a *App) Run(ctx context.Context, queries []string) (harvest.RunSummary, error) {
	reg, err := a.newRegistry(ctx)
	if err != nil {
		return harvest.RunSummary{}, fmt.Errorf("build seen-url registry: %w", err)
	}
	defer func() {
		if cerr := reg.Close(ctx); cerr != nil {
			a.logger.Warn("registry close failed", zap.Error(cerr))
		}
	}()

	harvester := harvest.NewHarvester(
		harvest.HarvesterConfig{
			MaxPages: a.cfg.Search.MaxPages,
			Workers:  a.cfg.Content.Workers,
			Scope:    harvest.RegistryScope(a.cfg.Registry.Scope),
		},
		a.listing,
		a.content,
		reg,
		a.db,
		a.exporter,
		a.queue,
		a.emitter(),
		a.clock,
		a.ids,
		a.logger.Named("harvest"),
	)
	return harvester.Run(ctx, queries)
}

// newRegistry builds the per-run seen-URL registry. The Redis backend is
// keyed by a fresh id so concurrent runs never share a dedup horizon.
func (a *App) newRegistry(ctx context.Context) (harvest.Registry, error) {
	switch a.cfg.Registry.Provider {
	case "redis":
		scopeID, err := a.ids.NewID()
		if err != nil {
			return nil, fmt.Errorf("generate registry scope id: %w", err)
		}
		return registryredis.New(ctx, registryredis.Config{
			Addr:     a.cfg.Registry.Addr,
			Password: a.cfg.Registry.Password,
			DB:       a.cfg.Registry.DB,
		}, scopeID)
	case "memory":
		return registry.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown registry provider: %s", a.cfg.Registry.Provider)
	}
}

func (a *App) emitter() progress.Emitter {
	if a.hub == nil {
		return nil
	}
	return a.hub
}

// New creates and initializes a new App from the application's configuration.
// It is the central point for service initialization and fails fast if any
// critical service cannot be built.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("initializing application services",
		zap.String("database", cfg.Database.Provider),
		zap.String("content_store", cfg.ContentStore.Provider),
		zap.String("export", cfg.Export.Provider),
		zap.String("queue", cfg.Queue.Provider),
		zap.String("registry", cfg.Registry.Provider))

	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(),
		ids:    uuid.NewUUIDGenerator(),
	}

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, cfg.Telemetry.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("initialize telemetry: %w", err)
		}
		a.tracerShutdown = shutdown
	}

	if err := a.setupDatabase(ctx); err != nil {
		return nil, err
	}
	if err := a.setupContentStore(ctx); err != nil {
		return nil, err
	}
	if err := a.setupExporter(); err != nil {
		return nil, err
	}
	if err := a.setupQueue(ctx); err != nil {
		return nil, err
	}
	a.setupProgress()
	if err := a.setupHarvestPipeline(); err != nil {
		return nil, err
	}

	logger.Info("application services initialized")
	return a, nil
}

func (a *App) setupDatabase(ctx context.Context) error {
	switch a.cfg.Database.Provider {
	case "postgres":
		provider, err := database.NewPostgresProvider(ctx, database.PostgresConfig{
			DSN:      a.cfg.Database.DSN,
			Table:    a.cfg.Database.Table,
			MaxConns: a.cfg.Database.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("initialize database: %w", err)
		}
		a.db = provider

		runStore, err := pgstorage.NewRunStore(ctx, a.cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("initialize run store: %w", err)
		}
		a.runStore = runStore
		a.runRepo = runStore
		a.logger.Info("using postgres database provider", zap.String("table", a.cfg.Database.Table))
	case "noop":
		a.logger.Info("using no-op database provider; records will be discarded")
		a.db = &database.NoOpProvider{}
	default:
		return fmt.Errorf("unknown database provider: %s", a.cfg.Database.Provider)
	}
	return nil
}

func (a *App) setupContentStore(ctx context.Context) error {
	switch a.cfg.ContentStore.Provider {
	case "fs":
		cs, err := fsstorage.New(fsstorage.Config{BaseDir: a.cfg.ContentStore.Dir})
		if err != nil {
			return fmt.Errorf("initialize filesystem content store: %w", err)
		}
		a.contentStore = cs
		a.logger.Info("using filesystem content store", zap.String("dir", a.cfg.ContentStore.Dir))
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("initialize gcs client: %w", err)
		}
		a.gcsClient = client
		cs, err := gcsstorage.New(client, gcsstorage.Config{
			Bucket: a.cfg.ContentStore.GCSBucket,
			Prefix: a.cfg.ContentStore.Prefix,
		})
		if err != nil {
			return fmt.Errorf("initialize gcs content store: %w", err)
		}
		a.contentStore = cs
		a.logger.Info("using gcs content store", zap.String("bucket", a.cfg.ContentStore.GCSBucket))
	case "postgres":
		cs, err := pgstorage.NewContentStore(ctx, pgstorage.ContentStoreConfig{
			DSN:   a.cfg.Database.DSN,
			Table: a.cfg.ContentStore.Table,
		})
		if err != nil {
			return fmt.Errorf("initialize postgres content store: %w", err)
		}
		a.contentStore = cs
		a.logger.Info("using postgres content store", zap.String("table", a.cfg.ContentStore.Table))
	case "memory":
		a.contentStore = memorystorage.NewContentStore()
		a.logger.Info("using in-memory content store")
	case "noop":
		a.logger.Info("using no-op content store; page text will be discarded")
		a.contentStore = &storage.NoOpProvider{}
	default:
		return fmt.Errorf("unknown content store provider: %s", a.cfg.ContentStore.Provider)
	}
	return nil
}

func (a *App) setupExporter() error {
	switch a.cfg.Export.Provider {
	case "csv":
		exp, err := export.NewCSVExporter(export.Config{Dir: a.cfg.Export.Dir}, a.logger.Named("export"))
		if err != nil {
			return fmt.Errorf("initialize csv exporter: %w", err)
		}
		a.exporter = exp
		a.logger.Info("using csv exporter", zap.String("dir", a.cfg.Export.Dir))
	case "noop":
		a.logger.Info("using no-op exporter")
		a.exporter = &export.NoOpExporter{}
	default:
		return fmt.Errorf("unknown export provider: %s", a.cfg.Export.Provider)
	}
	return nil
}

func (a *App) setupQueue(ctx context.Context) error {
	switch a.cfg.Queue.Provider {
	case "pubsub":
		q, err := queue.NewPubSubProvider(ctx, queue.Config{
			ProjectID:    a.cfg.Queue.ProjectID,
			TopicID:      a.cfg.Queue.TopicName,
			Subscription: a.cfg.Queue.Subscription,
		}, a.logger.Named("queue"))
		if err != nil {
			return fmt.Errorf("initialize pubsub queue: %w", err)
		}
		a.queue = q
		a.logger.Info("using pubsub queue provider", zap.String("topic", a.cfg.Queue.TopicName))
	case "memory":
		a.queue = queuememory.NewQueue(memoryQueueDepth)
		a.logger.Info("using in-memory queue provider")
	case "noop":
		a.logger.Info("using no-op queue provider; no messages will be sent")
		a.queue = &queue.NoOpProvider{}
	default:
		return fmt.Errorf("unknown queue provider: %s", a.cfg.Queue.Provider)
	}
	return nil
}

// setupProgress wires the event hub. The log sink is always on; the
// Prometheus sink is skipped (with a warning) when its collectors are
// already registered, which only happens in tests building several Apps.
func (a *App) setupProgress() {
	sinks := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
	}
	promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		a.logger.Warn("prometheus progress sink unavailable", zap.Error(err))
	} else {
		sinks = append(sinks, promSink)
	}
	if a.runRepo != nil {
		sinks = append(sinks, progresssinks.NewStoreSink(a.runRepo, a.logger.Named("progress_store")))
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger.Named("progress_hub")}, sinks...)
}

func (a *App) setupHarvestPipeline() error {
	listingFetcher, err := harvest.NewCollyFetcher(harvest.FetcherConfig{
		UserAgent:      a.cfg.Search.UserAgent,
		AcceptLanguage: a.cfg.Search.AcceptLanguage,
		RequestTimeout: a.cfg.Search.RequestTimeout,
		MaxBodyBytes:   a.cfg.Content.MaxBodyBytes,
	}, a.logger.Named("listing_fetcher"))
	if err != nil {
		return fmt.Errorf("initialize listing fetcher: %w", err)
	}

	var relevance harvest.Relevance
	switch a.cfg.Search.RelevancePolicy {
	case "keyword":
		relevance = keyword.New()
	case "none":
		relevance = simple.New()
	default:
		return fmt.Errorf("unknown relevance policy: %s", a.cfg.Search.RelevancePolicy)
	}

	a.listing = harvest.NewListingFetcher(listingFetcher, relevance, harvest.ListingConfig{
		BaseURL:         a.cfg.Search.BaseURL,
		PageSize:        a.cfg.Search.PageSize,
		ResultSelector:  a.cfg.Search.ResultSelector,
		TitleSelector:   a.cfg.Search.TitleSelector,
		SnippetSelector: a.cfg.Search.SnippetSelector,
		BlockedHosts:    a.cfg.Search.BlockedHosts,
	}, a.logger.Named("listing"))

	contentFetcher, err := harvest.NewCollyFetcher(harvest.FetcherConfig{
		UserAgent:      a.cfg.Search.UserAgent,
		AcceptLanguage: a.cfg.Search.AcceptLanguage,
		RequestTimeout: a.cfg.Content.RequestTimeout,
		Concurrency:    a.cfg.Content.Workers,
		MaxBodyBytes:   a.cfg.Content.MaxBodyBytes,
	}, a.logger.Named("content_fetcher"))
	if err != nil {
		return fmt.Errorf("initialize content fetcher: %w", err)
	}

	var renderer harvest.Renderer
	var detector harvest.RenderDetector
	if a.cfg.Render.Enabled {
		chromeRenderer, rerr := harvest.NewChromedpRenderer(harvest.RendererConfig{
			UserAgent:   a.cfg.Search.UserAgent,
			MaxParallel: a.cfg.Render.MaxParallel,
			NavTimeout:  a.cfg.Render.NavTimeout,
			DomainQPS:   a.cfg.Render.DomainQPS,
		}, a.logger.Named("renderer"))
		switch {
		case rerr == nil:
			a.renderer = chromeRenderer
			renderer = chromeRenderer
			detector = harvest.NewHeuristicRenderDetector(a.cfg.Render.MinTextBytes, a.cfg.Render.Markers)
		case errors.Is(rerr, harvest.ErrRendererDisabled):
			a.logger.Warn("renderer disabled despite feature flag; using the fast path only")
		default:
			return fmt.Errorf("initialize renderer: %w", rerr)
		}
	}

	a.content = harvest.NewContentFetcher(
		harvest.ContentFetcherConfig{RequestTimeout: a.cfg.Content.RequestTimeout},
		contentFetcher,
		renderer,
		detector,
		harvest.NewRobotsGate(a.cfg.Content.RespectRobots, a.cfg.Search.UserAgent, a.logger.Named("robots")),
		ratelimit.New(ratelimit.Config{
			HostQPS:   a.cfg.Content.HostQPS,
			HostBurst: a.cfg.Content.HostBurst,
		}),
		harvest.NewLinearRetryPolicy(a.cfg.Content.MaxRetries, a.cfg.Content.BackoffBase),
		a.clock,
		a.contentStore,
		a.logger.Named("content"),
	)
	return nil
}

// Close gracefully shuts down all services in the App container.
func (a *App) Close(ctx context.Context) {
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.renderer != nil {
		if err := a.renderer.Close(ctx); err != nil {
			a.logger.Warn("renderer close failed", zap.Error(err))
		}
	}
	if a.queue != nil {
		if err := a.queue.Close(); err != nil {
			a.logger.Warn("queue close failed", zap.Error(err))
		}
	}
	if a.contentStore != nil {
		if err := a.contentStore.Close(); err != nil {
			a.logger.Warn("content store close failed", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
	}
	if a.runStore != nil {
		if err := a.runStore.Close(); err != nil {
			a.logger.Warn("run store close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if err := a.logger.Sync(); err != nil {
		// Best effort; syncing stderr-backed loggers fails on some platforms.
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
}
