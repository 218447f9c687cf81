// Package server assembles the webstack backend from configuration:
// stores, upstream clients, the audit pipeline, the health monitor, the
// event hub, and the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Blackwoodproductions/webstack-services/internal/api"
	"github.com/Blackwoodproductions/webstack-services/internal/audit"
	"github.com/Blackwoodproductions/webstack-services/internal/auth"
	"github.com/Blackwoodproductions/webstack-services/internal/backoff"
	"github.com/Blackwoodproductions/webstack-services/internal/bron"
	"github.com/Blackwoodproductions/webstack-services/internal/clock/system"
	"github.com/Blackwoodproductions/webstack-services/internal/config"
	"github.com/Blackwoodproductions/webstack-services/internal/detector"
	"github.com/Blackwoodproductions/webstack-services/internal/dispatcher"
	"github.com/Blackwoodproductions/webstack-services/internal/events"
	"github.com/Blackwoodproductions/webstack-services/internal/events/sinks"
	collyfetcher "github.com/Blackwoodproductions/webstack-services/internal/fetcher/colly"
	headlessfetcher "github.com/Blackwoodproductions/webstack-services/internal/fetcher/headless"
	"github.com/Blackwoodproductions/webstack-services/internal/hash/sha256"
	"github.com/Blackwoodproductions/webstack-services/internal/health"
	"github.com/Blackwoodproductions/webstack-services/internal/id/uuid"
	"github.com/Blackwoodproductions/webstack-services/internal/kwcache"
	"github.com/Blackwoodproductions/webstack-services/internal/logging"
	"github.com/Blackwoodproductions/webstack-services/internal/metrics"
	"github.com/Blackwoodproductions/webstack-services/internal/policy/ratelimit"
	memorypublisher "github.com/Blackwoodproductions/webstack-services/internal/publisher/memory"
	gcppublisher "github.com/Blackwoodproductions/webstack-services/internal/publisher/pubsub"
	queuemem "github.com/Blackwoodproductions/webstack-services/internal/queue/memory"
	gcsstorage "github.com/Blackwoodproductions/webstack-services/internal/storage/gcs"
	localstorage "github.com/Blackwoodproductions/webstack-services/internal/storage/local"
	memorystorage "github.com/Blackwoodproductions/webstack-services/internal/storage/memory"
	pgstore "github.com/Blackwoodproductions/webstack-services/internal/storage/postgres"
	"github.com/Blackwoodproductions/webstack-services/internal/store"
	"github.com/Blackwoodproductions/webstack-services/internal/upstream/ahrefs"
	"github.com/Blackwoodproductions/webstack-services/internal/upstream/google"
	"github.com/Blackwoodproductions/webstack-services/internal/upstream/stripe"
	"github.com/Blackwoodproductions/webstack-services/internal/visitors"
	"github.com/Blackwoodproductions/webstack-services/internal/worker"
)

// App holds every long-lived subsystem of the service.
type App struct {
	cfg    config.Config
	logger *zap.Logger

	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	monitor   *health.Monitor
	hub       *events.Hub
	queue     *queuemem.Queue
	bridge    *bron.Bridge
	kwCache   *kwcache.Cache

	db           *gorm.DB
	pgPool       *pgxpool.Pool
	gcsClient    *storage.Client
	pubsubClient *pubsub.Client
	headless     *headlessfetcher.Fetcher
}

// Build wires the application from configuration.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, "webstack")
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application", zap.Int("port", cfg.Server.Port), zap.String("db_driver", cfg.DB.Driver))

	app.db, err = store.Open(cfg.DB)
	if err != nil {
		return nil, err
	}

	probes, pageviews, eventStore, err := app.setupAppendStores(ctx)
	if err != nil {
		return nil, err
	}

	app.setupEventHub(ctx, eventStore)

	clk := system.New()
	idGen := uuid.NewUUIDGenerator()
	retryPolicy := backoff.NewPolicyWith(
		cfg.HTTP.MaxRetries,
		time.Duration(cfg.HTTP.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.HTTP.BackoffMaxMs)*time.Millisecond,
	)

	app.kwCache = kwcache.New(kwcache.Config{
		TTL:        cfg.KeywordTTL(),
		MaxDomains: cfg.Cache.KeywordMaxDomains,
	}, clk, logger)
	bronClient := bron.NewClient(bron.ClientConfig{
		BaseURL: cfg.Bron.BaseURL,
		APIKey:  cfg.Bron.APIKey,
		Timeout: cfg.HTTPTimeout(),
	}, retryPolicy, logger)
	app.bridge = bron.NewBridge(cfg.BronSessionTTL(), clk, bronClient, logger)
	stripeClient := stripe.New(stripe.Config{
		SecretKey:  cfg.Checkout.SecretKey,
		BaseURL:    cfg.Checkout.BaseURL,
		SuccessURL: cfg.Checkout.SuccessURL,
		CancelURL:  cfg.Checkout.CancelURL,
		Timeout:    cfg.HTTPTimeout(),
	}, logger)
	ahrefsClient := ahrefs.New(ahrefs.Config{
		APIToken: cfg.Ahrefs.APIToken,
		BaseURL:  cfg.Ahrefs.BaseURL,
		Timeout:  cfg.HTTPTimeout(),
	}, clk, logger)
	googleClient := google.New(google.Config{
		ClientID:             cfg.Google.ClientID,
		ClientSecret:         cfg.Google.ClientSecret,
		RefreshToken:         cfg.Google.RefreshToken,
		TokenURL:             cfg.Google.TokenURL,
		BusinessBaseURL:      cfg.Google.BusinessBaseURL,
		SearchConsoleBaseURL: cfg.Google.SearchConsoleBaseURL,
		Timeout:              cfg.HTTPTimeout(),
	}, clk, logger)

	blobs, err := app.setupBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	publisher, err := app.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	jobs := store.NewAuditJobRepo(app.db, logger)
	app.queue = queuemem.NewQueue(cfg.Audit.QueueDepth)
	app.dispatch = app.setupAuditPipeline(jobs, blobs, publisher, clk)

	alerts := store.NewAlertRepo(app.db, logger)
	app.monitor = health.NewMonitor(cfg.Health, health.Deps{
		Probes:    probes,
		Alerts:    alerts,
		Purger:    app.kwCache,
		Refresher: app.bridge,
		Policy:    retryPolicy,
		Emitter:   app.hub,
		Clock:     clk,
		IDs:       idGen,
	}, logger)

	app.apiServer = api.NewServer(cfg, api.Deps{
		Stripe:     stripeClient,
		Ahrefs:     ahrefsClient,
		Google:     googleClient,
		Bron:       bronClient,
		Bridge:     app.bridge,
		KwCache:    app.kwCache,
		Monitor:    app.monitor,
		Alerts:     alerts,
		Leads:      store.NewLeadRepo(app.db, logger),
		Apps:       store.NewApplicationRepo(app.db, logger),
		Directory:  store.NewDirectoryRepo(app.db, logger),
		Chat:       store.NewChatRepo(app.db, logger),
		Visitors:   store.NewVisitorRepo(app.db, logger),
		Changelog:  store.NewChangelogRepo(app.db, logger),
		Pageviews:  pageviews,
		Jobs:       jobs,
		Dispatcher: app.dispatch,
		Blobs:      blobs,
		IDs:        idGen,
		Clock:      clk,
		Tokens:     auth.NewTokenProvider(cfg.Auth.JWTSecret, "webstack", 0),
	}, logger)

	return app, nil
}

// setupAppendStores opens the pgx pool for the high-volume append
// tables. On SQLite deployments the pool is skipped: probes go
// unrecorded and pageviews fall back to a log-only recorder.
func (a *App) setupAppendStores(ctx context.Context) (health.ProbeStore, api.PageviewRecorder, *pgstore.EventStore, error) {
	if a.cfg.DB.Driver != "postgres" {
		a.logger.Info("append stores disabled", zap.String("db_driver", a.cfg.DB.Driver))
		return nil, logPageviews{a.logger.Named("pageviews")}, nil, nil
	}
	pool, err := pgstore.NewPool(ctx, pgstore.PoolConfig{
		DSN:          a.cfg.DB.DSN,
		MaxConns:     int32(a.cfg.DB.MaxOpenConns),
		MinConns:     int32(a.cfg.DB.MaxIdleConns),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("append store pool: %w", err)
	}
	a.pgPool = pool

	probes, err := pgstore.NewProbeStore(pool, "")
	if err != nil {
		return nil, nil, nil, err
	}
	visits, err := pgstore.NewVisitStore(pool, "")
	if err != nil {
		return nil, nil, nil, err
	}
	eventStore, err := pgstore.NewEventStore(pool, "")
	if err != nil {
		return nil, nil, nil, err
	}
	return probes, visits, eventStore, nil
}

func (a *App) setupEventHub(ctx context.Context, eventStore *pgstore.EventStore) {
	sinkList := []events.Sink{
		sinks.NewLogSink(a.logger.Named("events.log")),
	}
	if promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer); err != nil {
		a.logger.Warn("prometheus event sink init failed", zap.Error(err))
	} else {
		sinkList = append(sinkList, promSink)
	}
	if eventStore != nil {
		sinkList = append(sinkList, sinks.NewStoreSink(eventStore, a.logger.Named("events.store")))
	}
	a.hub = events.NewHub(events.Config{
		BaseContext: ctx,
		Logger:      a.logger.Named("events.hub"),
	}, sinkList...)
}

func (a *App) setupBlobStore(ctx context.Context) (audit.BlobStore, error) {
	switch a.cfg.Storage.Provider {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init: %w", err)
		}
		a.gcsClient = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init: %w", err)
		}
		a.logger.Info("using GCS blob store", zap.String("bucket", a.cfg.Storage.GCSBucket))
		return blobs, nil
	case "local":
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init: %w", err)
		}
		a.logger.Info("using local blob store", zap.String("dir", a.cfg.Storage.LocalDir))
		return blobs, nil
	default:
		a.logger.Info("using in-memory blob store")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (audit.Publisher, error) {
	if !a.cfg.PubSub.Enabled {
		a.logger.Info("pubsub disabled, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init: %w", err)
	}
	a.pubsubClient = client
	a.logger.Info("pubsub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return gcppublisher.New(client), nil
}

func (a *App) setupAuditPipeline(
	jobs audit.JobStore,
	blobs audit.BlobStore,
	publisher audit.Publisher,
	clk audit.Clock,
) *dispatcher.Dispatcher {
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:     a.cfg.Audit.UserAgent,
		RespectRobots: true,
		Timeout:       a.cfg.HTTPTimeout(),
	})

	var headless audit.Fetcher
	if a.cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Audit.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
			RenderSettle:      time.Duration(a.cfg.Headless.RenderSettleMs) * time.Millisecond,
		})
		if err != nil {
			a.logger.Warn("headless fetcher init failed, promotions disabled", zap.Error(err))
		} else {
			a.headless = hf
			headless = hf
			a.logger.Info("headless rendering enabled", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
		}
	}

	limiter := ratelimit.New(ratelimit.Config{
		DefaultRPS:   a.cfg.Audit.PerHostRPS,
		DefaultBurst: a.cfg.Audit.PerHostBurst,
	})
	detect := detector.NewHeuristic(a.cfg.Headless.PromotionThresh)
	workerCfg := worker.Config{
		ContentType:     a.cfg.Storage.ContentType,
		BlobPrefix:      a.cfg.Storage.Prefix,
		Topic:           a.cfg.PubSub.TopicName,
		MaxPagesDefault: a.cfg.Audit.MaxPagesDefault,
		MaxDepthDefault: a.cfg.Audit.MaxDepthDefault,
	}

	var workers []*worker.Worker
	for i := 0; i < a.cfg.Audit.Concurrency; i++ {
		workers = append(workers, worker.New(worker.Deps{
			Queue:     a.queue,
			Jobs:      jobs,
			Blobs:     blobs,
			Publisher: publisher,
			Hasher:    sha256.New(),
			Clock:     clk,
			Probe:     probe,
			Headless:  headless,
			Detector:  detect,
			Limiter:   limiter,
			Emitter:   a.hub,
		}, workerCfg, a.logger.With(zap.Int("worker", i))))
	}
	return dispatcher.New(a.queue, workers)
}

// Run starts the background subsystems and the HTTP server, blocking
// until the context is canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.dispatch.Run(ctx)
	go func() {
		if err := a.monitor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("health monitor stopped", zap.Error(err))
		}
	}()
	go a.maintenanceLoop(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return a.Close(shutdownCtx)
}

// maintenanceLoop sweeps expired BRON sessions and refreshes the
// session and cache gauges once a minute.
func (a *App) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if swept := a.bridge.Sweep(); swept > 0 {
				a.logger.Debug("bron sessions swept", zap.Int("count", swept))
			}
			metrics.SetBronSessionsActive(a.bridge.Len())
			metrics.SetKeywordCacheDomains(a.kwCache.Len())
		}
	}
}

// Close releases every held resource.
func (a *App) Close(ctx context.Context) error {
	a.queue.Close()
	if a.hub != nil {
		if err := a.hub.Close(ctx); err != nil {
			a.logger.Warn("event hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.gcsClient != nil {
		if err := a.gcsClient.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
	if a.db != nil {
		if err := store.Close(a.db); err != nil {
			a.logger.Warn("database close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
	a.logger.Info("shutdown complete")
	return nil
}

// logPageviews records pageviews to the log only. It stands in for the
// Postgres visit store on SQLite deployments.
type logPageviews struct {
	logger *zap.Logger
}

func (l logPageviews) RecordPageview(_ context.Context, event visitors.PageviewEvent) error {
	l.logger.Info("pageview",
		zap.String("session_id", event.SessionID),
		zap.String("domain", event.Domain),
		zap.String("path", event.Path),
	)
	return nil
}
