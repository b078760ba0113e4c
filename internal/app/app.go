// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/hillwatch/internal/api"
	"github.com/JakeFAU/hillwatch/internal/clock/system"
	"github.com/JakeFAU/hillwatch/internal/config"
	"github.com/JakeFAU/hillwatch/internal/congress"
	idgen "github.com/JakeFAU/hillwatch/internal/id/uuid"
	"github.com/JakeFAU/hillwatch/internal/metrics"
	"github.com/JakeFAU/hillwatch/internal/phase"
	"github.com/JakeFAU/hillwatch/internal/progress"
	"github.com/JakeFAU/hillwatch/internal/progress/sinks"
	"github.com/JakeFAU/hillwatch/internal/ratelimit"
	"github.com/JakeFAU/hillwatch/internal/stats"
	"github.com/JakeFAU/hillwatch/internal/storage/postgres"
	"github.com/JakeFAU/hillwatch/internal/store"
)

const closeTimeout = 10 * time.Second

// Option customizes App construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
	runs       store.RunRepository
	registerer prometheus.Registerer
}

// WithHTTPClient overrides the HTTP client used against the upstream API.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithRunRepository supplies run history directly instead of dialing db.dsn.
func WithRunRepository(repo store.RunRepository) Option {
	return func(o *options) { o.runs = repo }
}

// WithRegisterer registers progress collectors against reg instead of the default registry.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	opts   options

	store    *store.FileStore
	runs     store.RunRepository
	runStore *postgres.RunStore

	mu  sync.Mutex
	hub *progress.Hub

	closeOnce sync.Once
}

// New creates the store and, when configured, the run-history repository.
// The upstream client is built lazily by NewRunner so read-only commands
// work without an API key.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	fs, err := store.New(cfg.StoreConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		opts:   o,
		store:  fs,
		runs:   o.runs,
	}

	if a.runs == nil && cfg.DB.DSN != "" {
		rs, err := postgres.NewRunStore(ctx, postgres.RunStoreConfig{
			DSN:   cfg.DB.DSN,
			Table: cfg.DB.Table,
		})
		if err != nil {
			return nil, fmt.Errorf("init run history: %w", err)
		}
		if err := rs.EnsureSchema(ctx); err != nil {
			rs.Close()
			return nil, fmt.Errorf("init run history schema: %w", err)
		}
		a.runStore = rs
		a.runs = rs
		logger.Info("run history enabled", zap.String("table", cfg.DB.Table))
	}
	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store returns the dataset file store.
func (a *App) Store() *store.FileStore {
	return a.store
}

// Runs returns the run-history repository, or nil when disabled.
func (a *App) Runs() store.RunRepository {
	return a.runs
}

// NewRunner builds the limiter, upstream client and progress hub and returns
// a phase runner over them. It fails without an API key.
func (a *App) NewRunner() (*phase.Runner, error) {
	if err := a.cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	limiter := ratelimit.New(a.cfg.Pipeline.QPS)

	var clientOpts []congress.Option
	if a.opts.httpClient != nil {
		clientOpts = append(clientOpts, congress.WithHTTPClient(a.opts.httpClient))
	}
	client, err := congress.New(a.cfg.CongressConfig(), limiter, a.logger, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init congress client: %w", err)
	}

	hub, err := a.progressHub()
	if err != nil {
		return nil, err
	}

	runner, err := phase.New(a.cfg.PhaseConfig(), phase.Dependencies{
		Source:    client,
		Persister: a.store,
		Builder:   a.cfg.Builder(),
		Schema:    a.cfg.Schema(),
		Emitter:   hub,
		Clock:     system.New(),
		IDs:       idgen.New(),
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("init phase runner: %w", err)
	}
	a.logger.Info("pipeline ready",
		zap.Int("congress", a.cfg.API.Congress),
		zap.Int("workers", a.cfg.Pipeline.Workers),
		zap.Float64("qps", limiter.QPS()),
		zap.Strings("bill_types", a.cfg.Pipeline.BillTypes),
	)
	return runner, nil
}

func (a *App) progressHub() (*progress.Hub, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hub != nil {
		return a.hub, nil
	}
	promSink, err := sinks.NewPrometheusSink(a.opts.registerer)
	if err != nil {
		return nil, fmt.Errorf("init progress metrics: %w", err)
	}
	hubSinks := []progress.Sink{
		sinks.NewLogSink(a.logger, a.cfg.Pipeline.ProgressEvery),
		promSink,
	}
	if a.runs != nil {
		hubSinks = append(hubSinks, sinks.NewHistorySink(a.runs, a.logger))
	}
	a.hub = progress.NewHub(progress.Config{Logger: a.logger}, hubSinks...)
	return a.hub, nil
}

// Stats loads the dataset and computes its completion report.
func (a *App) Stats(ctx context.Context) (stats.Report, error) {
	ds, err := a.store.Load(ctx)
	if err != nil {
		return stats.Report{}, err
	}
	rep := stats.Compute(ds)
	rep.Path = a.store.Path()
	mtime, ok, err := a.store.ModTime()
	if err != nil {
		return stats.Report{}, err
	}
	if ok {
		rep.ModTime = mtime
	}
	return rep, nil
}

// Server builds the operator HTTP server over the app's services.
func (a *App) Server() *api.Server {
	return api.NewServer(api.Options{
		Ready: a.ready,
		Runs:  a.runs,
		Stats: a.Stats,
	}, a.logger.Named("api"))
}

func (a *App) ready(context.Context) error {
	if _, _, err := a.store.ModTime(); err != nil {
		return fmt.Errorf("store unavailable: %w", err)
	}
	return nil
}

// Serve runs the operator server in the background when metrics.addr is set.
// The returned function stops it and waits for shutdown.
func (a *App) Serve(ctx context.Context) func() {
	addr := a.cfg.Metrics.Addr
	if addr == "" {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	srv := a.Server()
	go func() {
		defer close(done)
		if err := srv.ListenAndServe(ctx, addr); err != nil {
			a.logger.Error("operator server failed", zap.Error(err))
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// Close drains the progress hub, then releases the database pool and flushes
// the logger. Repeated calls are no-ops.
func (a *App) Close() {
	a.closeOnce.Do(a.close)
}

func (a *App) close() {
	a.mu.Lock()
	hub := a.hub
	a.mu.Unlock()

	if hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		if err := hub.Close(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		cancel()
	}
	if a.runStore != nil {
		a.runStore.Close()
	}
	_ = a.logger.Sync()
}
