package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/phrazzld/studycache/internal/api"
	"github.com/phrazzld/studycache/internal/config"
	"github.com/phrazzld/studycache/internal/domain/srs"
	"github.com/phrazzld/studycache/internal/events"
	"github.com/phrazzld/studycache/internal/notify"
	"github.com/phrazzld/studycache/internal/persister"
	"github.com/phrazzld/studycache/internal/platform/backend"
	"github.com/phrazzld/studycache/internal/platform/postgres"
	"github.com/phrazzld/studycache/internal/platform/sqlite"
	"github.com/phrazzld/studycache/internal/querycache"
	"github.com/phrazzld/studycache/internal/quota"
	"github.com/phrazzld/studycache/internal/service"
	"github.com/phrazzld/studycache/internal/service/auth"
	"github.com/phrazzld/studycache/internal/store"
	"github.com/phrazzld/studycache/internal/store/memstore"
	"github.com/phrazzld/studycache/internal/task"
)

// persistQueueSize bounds queued persist and clear tasks. Persist triggers
// beyond it are dropped; the queued persist snapshots the latest state.
const persistQueueSize = 4

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	store     store.EntryStore
	persister *persister.Persister
	client    *querycache.Client
	center    *notify.Center

	queue     *task.TaskQueue
	pool      *task.WorkerPool
	scheduler *task.PersistScheduler
	clearer   *task.QueueClearer

	cacheService  service.CacheService
	reviewService service.ReviewService
	jwtService    auth.JWTService

	unsubscribe func()
	started     bool
}

// openStore opens the durable store selected by cfg.Cache.Driver.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (store.EntryStore, error) {
	switch cfg.Cache.Driver {
	case "sqlite":
		return sqlite.Open(ctx, cfg.Cache.Path, log)
	case "postgres":
		return postgres.Open(ctx, cfg.Database.URL, log)
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Cache.Driver)
	}
}

// newApplication creates a new application instance with all dependencies
// initialized. Nothing runs until start is called.
func newApplication(ctx context.Context, cfg *config.Config, log *slog.Logger) (*application, error) {
	app := &application{config: cfg, logger: log}

	var err error
	app.store, err = openStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s cache store: %w", cfg.Cache.Driver, err)
	}
	log.Info("cache store opened", "driver", cfg.Cache.Driver)

	// Everything below is in-process; on failure only the store needs closing.
	if err := app.wire(); err != nil {
		_ = app.store.Close()
		return nil, err
	}
	return app, nil
}

func (app *application) wire() error {
	cfg, log := app.config, app.logger

	emitter := events.NewInMemoryEventEmitter(log)
	app.center = notify.NewCenter(log)

	pcfg := persister.Config{
		Version:        cfg.Cache.Version,
		TTL:            cfg.Cache.TTL,
		Families:       cfg.Cache.Families,
		QuotaThreshold: cfg.Cache.QuotaThreshold,
	}
	var err error
	app.persister, err = persister.New(app.store, pcfg,
		persister.WithEstimator(quota.NewStoreEstimator(app.store, cfg.Cache.QuotaBytes)),
		persister.WithEmitter(emitter),
		persister.WithLogger(log))
	if err != nil {
		return fmt.Errorf("failed to create persister: %w", err)
	}

	backendClient, err := backend.NewClient(backend.Config{
		BaseURL:           cfg.Backend.BaseURL,
		Token:             cfg.Backend.Token,
		Timeout:           cfg.Backend.Timeout,
		RequestsPerSecond: cfg.Backend.RequestsPerSecond,
		Burst:             cfg.Backend.Burst,
	}, nil, log)
	if err != nil {
		return fmt.Errorf("failed to create backend client: %w", err)
	}
	app.client = querycache.NewClient(backendClient,
		querycache.WithStaleTime(cfg.Cache.StaleTime),
		querycache.WithLogger(log))

	app.queue = task.NewTaskQueue(persistQueueSize, log)
	app.pool = task.NewWorkerPool(app.queue, task.DefaultWorkerPoolConfig(), log)
	app.pool.SetErrorHandler(func(t task.Task, err error) {
		log.Error("cache task failed", "task_id", t.ID(), "task_type", t.Type(), "error", err)
	})
	app.scheduler = task.NewPersistScheduler(app.client, app.persister, app.queue,
		cfg.Cache.PersistDebounce, log)
	app.clearer = task.NewQueueClearer(app.queue, app.persister)

	emitter.RegisterHandler(notify.NewQuotaWarningHandler(app.center, app.clearer, log))

	app.cacheService, err = service.NewCacheService(app.client, app.persister, app.clearer, log)
	if err != nil {
		return fmt.Errorf("failed to create cache service: %w", err)
	}
	app.reviewService, err = service.NewReviewService(srs.NewDefaultService(), log)
	if err != nil {
		return fmt.Errorf("failed to create review service: %w", err)
	}
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}

	log.Info("application initialized",
		"cache_version", pcfg.Version,
		"families", pcfg.Families,
		"quota_bytes", cfg.Cache.QuotaBytes)
	return nil
}

// start restores the persisted snapshot into the query client, starts the
// persist worker and subscribes the scheduler to cache changes. Seeding
// happens before the subscription so restored data is not re-persisted.
func (app *application) start(ctx context.Context) {
	snapshot := app.persister.Restore(ctx)
	seeded := app.client.Seed(snapshot)
	app.logger.Info("query cache restored", "queries", seeded, "version", snapshot.Version)

	app.pool.Start()
	app.unsubscribe = app.client.Subscribe(func(ch querycache.Change) {
		app.scheduler.OnQueryChange(ch.Status)
	})
	app.started = true
}

// router builds the HTTP handler for the application's services.
func (app *application) router() http.Handler {
	return api.NewRouter(api.RouterDeps{
		Cache:         app.cacheService,
		Reviews:       app.reviewService,
		Notifications: app.center,
		JWT:           app.jwtService,
		Logger:        app.logger,
	})
}

// shutdown drains pending persists, writes a final snapshot and closes the
// store.
func (app *application) shutdown(ctx context.Context) {
	if app.started {
		app.unsubscribe()
		app.scheduler.Stop()
		app.queue.Close()
		app.pool.Wait()
		app.scheduler.Flush(ctx)
	} else {
		app.queue.Close()
	}

	if err := app.store.Close(); err != nil {
		app.logger.Error("error closing cache store", "error", err)
	}
	app.logger.Info("application shutdown completed")
}
