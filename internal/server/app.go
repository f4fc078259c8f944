// Package server builds the hunter's dependency graph and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/data-hunter/internal/api"
	"github.com/JakeFAU/data-hunter/internal/classifier"
	"github.com/JakeFAU/data-hunter/internal/clock/system"
	"github.com/JakeFAU/data-hunter/internal/config"
	"github.com/JakeFAU/data-hunter/internal/events"
	collyfetcher "github.com/JakeFAU/data-hunter/internal/fetcher/colly"
	"github.com/JakeFAU/data-hunter/internal/hunter"
	"github.com/JakeFAU/data-hunter/internal/id/uuid"
	"github.com/JakeFAU/data-hunter/internal/logging"
	"github.com/JakeFAU/data-hunter/internal/policy/ratelimit"
	"github.com/JakeFAU/data-hunter/internal/progress"
	progresssinks "github.com/JakeFAU/data-hunter/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/data-hunter/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/data-hunter/internal/storage/gcs"
	localstorage "github.com/JakeFAU/data-hunter/internal/storage/local"
	pgstore "github.com/JakeFAU/data-hunter/internal/storage/postgres"
	"github.com/JakeFAU/data-hunter/internal/telemetry"
	"github.com/JakeFAU/data-hunter/internal/web"
)

// App contains the application's dependencies.
type App struct {
	cfg             *config.Config
	logger          *zap.Logger
	apiServer       *api.Server
	engine          *hunter.Engine
	bus             *events.Bus
	progressHub     *progress.Hub
	pubsubClient    *pubsub.Client
	pubsubPublisher *pubsub.Publisher
	storage         *storage.Client
	sourceStore     *pgstore.SourceStore
	readyChecks     map[string]api.ReadyCheck
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Only non-sensitive fields; the analyzer key and DSN stay out of logs.
	logger.Info("Creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.Int("target", cfg.Crawler.Target),
		zap.Bool("remote_analyzer", cfg.Analyzer.APIKey != ""),
		zap.Bool("database", cfg.DB.DSN != ""),
		zap.String("pubsub_topic", cfg.PubSub.Topic),
	)
	return &App{
		cfg:         cfg,
		logger:      logger,
		readyChecks: map[string]api.ReadyCheck{},
	}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run serves HTTP until ctx is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Closing the bus first ends every open stream, so Shutdown need not wait
	// for them to time out.
	a.engine.Stop()
	a.bus.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	closeErr := a.Close(shutdownCtx)
	if err := <-serveErr; err != nil {
		return fmt.Errorf("serve http: %w", err)
	}
	return closeErr
}

// Close stops the orchestrator and drains every downstream in dependency
// order: engine, hub, bus, then clients.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.engine != nil {
		if err := a.engine.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
	}
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	if a.bus != nil {
		a.bus.Close()
	}
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.sourceStore != nil {
		a.sourceStore.Close()
	}
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	return BuildWithLogger(ctx, cfg, logger)
}

// BuildWithLogger is Build with a caller-supplied logger.
func BuildWithLogger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}

	app.logger.Info("building application dependencies")
	telemetry.InitPropagation()
	blobs, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := setupDatabase(ctx, app); err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}
	if err := setupProgress(ctx, app, blobs, publisher); err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.bus = events.New(cfg.Bus.Capacity, app.logger.Named("bus"))
	fanout := hunter.Fanout{app.bus}
	if app.progressHub != nil {
		fanout = append(fanout, app.progressHub)
	}

	clock := system.New(nil)
	app.engine = setupEngine(app, fanout, clock)

	var metrics http.Handler
	if cfg.Metrics.Enabled {
		metrics = telemetry.Handler()
	}
	app.apiServer = api.NewServer(app.engine, app.bus, fanout, api.Options{
		Logger:         app.logger,
		Clock:          clock,
		CommandTimeout: cfg.Server.CommandTimeout,
		KeepAlive:      cfg.Bus.KeepAlive,
		Metrics:        metrics,
		Static:         web.Handler(cfg.Server.StaticDir),
		ReadyChecks:    app.readyChecks,
	})
	return app, nil
}

func setupStorage(ctx context.Context, app *App) (progresssinks.BlobWriter, error) {
	switch {
	case app.cfg.Storage.GCSBucket != "":
		app.logger.Info("using GCS snapshot storage")
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(app.storage, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.readyChecks["gcs"] = blobs.Ping
		app.logger.Debug("GCS snapshot storage", zap.String("bucket", app.cfg.Storage.GCSBucket))
		return blobs, nil
	case app.cfg.Storage.LocalDir != "":
		app.logger.Info("using local snapshot storage")
		blobs, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Debug("local snapshot storage", zap.String("path", app.cfg.Storage.LocalDir))
		return blobs, nil
	default:
		app.logger.Info("no snapshot storage configured, session snapshots disabled")
		return nil, nil
	}
}

func setupDatabase(ctx context.Context, app *App) error {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("No DSN specified for database, skipping source archive")
		return nil
	}
	store, err := pgstore.NewSourceStore(ctx, pgstore.Config{
		DSN:             app.cfg.DB.DSN,
		SourceTable:     app.cfg.DB.SourceTable,
		SessionTable:    app.cfg.DB.SessionTable,
		MaxConns:        app.cfg.DB.MaxConns,
		MinConns:        app.cfg.DB.MinConns,
		MaxConnLifetime: app.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return fmt.Errorf("source store init failed: %w", err)
	}
	if app.cfg.DB.AutoMigrate {
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return fmt.Errorf("source store migrate failed: %w", err)
		}
	}
	app.sourceStore = store
	app.readyChecks["postgres"] = store.Ping
	app.logger.Info("source store initialized", zap.String("table", app.cfg.DB.SourceTable))
	return nil
}

func setupPublisher(ctx context.Context, app *App) (progresssinks.MessagePublisher, error) {
	if app.cfg.PubSub.Topic == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("No Pub/Sub topic configured, source export disabled")
		return nil, nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = app.pubsubClient.Publisher(app.cfg.PubSub.Topic)
	app.pubsubPublisher.EnableMessageOrdering = true
	app.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.Topic),
	)
	return gcppublisher.New(app.pubsubPublisher), nil
}

func setupProgress(
	ctx context.Context,
	app *App,
	blobs progresssinks.BlobWriter,
	publisher progresssinks.MessagePublisher,
) error {
	var sinkList []progress.Sink
	if app.cfg.Metrics.Enabled {
		promSink, err := progresssinks.NewPrometheusSink(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("prometheus sink init failed: %w", err)
		}
		sinkList = append(sinkList, promSink)
		app.logger.Debug("Added progress prometheus sink")
	}
	if app.cfg.Progress.LogEvents {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
		app.logger.Debug("Added progress log sink")
	}
	if app.sourceStore != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(app.sourceStore, app.logger.Named("progress_store")))
		app.logger.Debug("Added progress store sink")
	}
	if publisher != nil {
		sinkList = append(sinkList, progresssinks.NewPublisherSink(publisher, app.logger.Named("progress_pubsub")))
		app.logger.Debug("Added progress publisher sink")
	}
	if blobs != nil {
		sinkList = append(sinkList, progresssinks.NewSnapshotSink(blobs, app.cfg.Storage.Prefix, app.logger.Named("progress_snapshot")))
		app.logger.Debug("Added progress snapshot sink")
	}
	if len(sinkList) == 0 {
		app.logger.Info("no progress sinks configured, progress hub disabled")
		return nil
	}

	hubCfg := progress.Config{
		BufferSize:     app.cfg.Progress.BufferSize,
		MaxBatchEvents: app.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   app.cfg.Progress.MaxBatchWait,
		SinkTimeout:    app.cfg.Progress.SinkTimeout,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
		zap.Duration("sink_timeout", hubCfg.SinkTimeout),
	)
	return nil
}

func setupEngine(app *App, publisher hunter.Publisher, clock hunter.Clock) *hunter.Engine {
	cfg := app.cfg
	fetchLimiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.RequestsPerSecond,
		DefaultBurst: cfg.Crawler.Burst,
	})
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:    cfg.Crawler.UserAgent,
		Timeout:      cfg.Crawler.FetchTimeout,
		MaxBodyBytes: cfg.Crawler.MaxBodyBytes,
	}, fetchLimiter, app.logger.Named("fetcher"))

	var analyzer classifier.Analyzer
	if cfg.Analyzer.APIKey != "" {
		analyzer = classifier.NewAnthropicAnalyzer(classifier.AnthropicConfig{
			APIKey:    cfg.Analyzer.APIKey,
			Model:     cfg.Analyzer.Model,
			BaseURL:   cfg.Analyzer.BaseURL,
			MaxTokens: cfg.Analyzer.MaxTokens,
			Timeout:   cfg.Analyzer.Timeout,
		})
	}
	analyzerLimiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Analyzer.RequestsPerSecond,
		DefaultBurst: cfg.Analyzer.Burst,
	})
	cls := classifier.New(classifier.Config{
		APIKey:       cfg.Analyzer.APIKey,
		MinKeyLength: cfg.Analyzer.MinKeyLength,
		Timeout:      cfg.Analyzer.Timeout,
	}, analyzer, analyzerLimiter, app.logger.Named("classifier"))
	app.logger.Info("classifier ready", zap.Bool("remote", cls.Remote()), zap.String("model", cfg.Analyzer.Model))

	return hunter.NewEngine(hunter.Config{
		RoundPause:         cfg.Crawler.RoundPause,
		ItemPause:          cfg.Crawler.ItemPause,
		FetchTimeout:       cfg.Crawler.FetchTimeout,
		SearchEndpoint:     cfg.Crawler.SearchEndpoint,
		GenericQuery:       cfg.Crawler.GenericQuery,
		Seeds:              hunter.DefaultSeeds,
		MasterRepositories: hunter.DefaultMasterRepositories,
		BlockedDomains:     cfg.Crawler.AllBlockedDomains(hunter.DefaultBlockedDomains),
		MinCandidateLength: cfg.Crawler.MinCandidateLength,
	},
		hunter.NewState(cfg.Crawler.Target),
		fetcher,
		cls,
		publisher,
		clock,
		uuid.New(),
		app.logger.Named("engine"),
	)
}
