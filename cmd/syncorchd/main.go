// Command syncorchd is the sync orchestrator daemon: it wires
// configuration, the durable store, the three system adapters, the
// single-item engine, the in-process workflow runtime, the webhook and
// docs-SSE ingesters, and the pipeline/orchestrator/reconciler
// components together (the filewatch ingester and the docs mirror are
// not wired here), then serves the webhook and control-plane HTTP surfaces
// until told to shut down.
//
// Startup sequence, graceful shutdown on SIGINT/SIGTERM, and the
// doc-comment-heavy entrypoint style follow the teacher's main.go and
// cli/root.go runServer.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kivik "github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"vibesync.dev/syncorch/adapters"
	"vibesync.dev/syncorch/adapters/repolog"
	"vibesync.dev/syncorch/engine"
	"vibesync.dev/syncorch/ingest/dedup"
	"vibesync.dev/syncorch/ingest/docssse"
	"vibesync.dev/syncorch/ingest/webhook"
	"vibesync.dev/syncorch/internal/config"
	"vibesync.dev/syncorch/internal/controlplane"
	"vibesync.dev/syncorch/internal/logging"
	"vibesync.dev/syncorch/internal/telemetry"
	"vibesync.dev/syncorch/orchestrator"
	"vibesync.dev/syncorch/pipeline"
	"vibesync.dev/syncorch/reconciler"
	"vibesync.dev/syncorch/runtime"
	"vibesync.dev/syncorch/syncstate"
	"vibesync.dev/syncorch/version"
)

func main() {
	cfg := config.Load()
	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "syncorchd"})
	log := logging.Component(logger, "main")
	log.WithField("version", version.GetModuleVersion()).Info("starting sync orchestrator daemon")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider := telemetry.Init(ctx, "syncorchd", version.GetModuleVersion(), cfg, log)
	defer provider.Shutdown(context.Background())

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open sync state store")
	}
	defer store.Close()

	repoLog := openRepoLog(cfg, log)

	tracker := adapters.NullTracker{}
	docs := adapters.NullDocs{}
	memory := adapters.NullMemorySink{}
	metrics := adapters.NullMetricsSink{}

	syncEngine := &engine.Engine{
		Tracker: tracker,
		RepoLog: repoLog,
		Docs:    docs,
		Store:   store,
		Window:  cfg.ConflictWindow,
	}

	runner := runtime.NewRunner(logging.Component(logger, "runtime"))

	pipe := &pipeline.Pipeline{
		Tracker: tracker,
		RepoLog: repoLog,
		Docs:    docs,
		Memory:  memory,
		Store:   store,
		Engine:  syncEngine,
		Config: pipeline.Config{
			BatchSize:               cfg.ContinueAsNewThreshold,
			RejectUnknownRankTarget: cfg.RejectUnknownRankTarget,
		},
		Logger: logging.Component(logger, "pipeline"),
	}

	orch := &orchestrator.Orchestrator{
		Tracker:    tracker,
		Metrics:    metrics,
		Runner:     runner,
		PipelineFn: pipe.Run,
		Config: orchestrator.Config{
			CircuitBreakerThreshold:    cfg.CircuitBreakerThreshold,
			MaxProjectsPerContinuation: cfg.MaxProjectsPerContinuation,
			BulkPrefetchLimit:          cfg.BulkPrefetchLimit,
		},
		Logger: logging.Component(logger, "orchestrator"),
	}
	orchScheduler := &orchestrator.Scheduler{
		Orchestrator: orch,
		Config:       orchestrator.SchedulerConfig{Interval: cfg.ScheduleInterval},
		Logger:       logging.Component(logger, "orchestrator-scheduler"),
	}

	recon := &reconciler.Reconciler{
		Store:   store,
		RepoLog: repoLog,
		Logger:  logging.Component(logger, "reconciler"),
	}
	reconScheduler := &reconciler.Scheduler{
		Reconciler: recon,
		Config: reconciler.SchedulerConfig{
			Interval: 30 * time.Minute,
			Input:    reconciler.Input{Action: reconciler.ActionMarkDeleted},
		},
		Logger: logging.Component(logger, "reconciler-scheduler"),
	}

	d := newDaemon(cfg, orch, orchScheduler, recon, runner, memory, logging.Component(logger, "dispatcher"))

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	dedupCache := openDedup(cfg)
	webhookHandler := &webhook.Handler{
		Secret:  cfg.WebhookSecret,
		Dedup:   dedupCache,
		RepoLog: repoLog,
		Runner:  runner,
		SyncFn:  syncOneItemWorkflow(syncEngine),
		Logger:  logging.Component(logger, "webhook"),
	}
	webhookHandler.Register(e)

	e.Any(cfg.ControlPlanePath, echo.WrapHandler(&controlplane.Server{
		Dispatcher: d,
		Logger:     logging.Component(logger, "controlplane"),
	}))

	d.StartScheduled(ctx)
	go reconScheduler.Run(ctx)

	docsIngester := openDocsSSEIngester(cfg, docs, runner, syncEngine, logging.Component(logger, "docssse"))
	if docsIngester != nil {
		go func() {
			if err := docsIngester.Listen(ctx, "", docssse.ChangesFeedOptions{Feed: "continuous", IncludeDocs: true}); err != nil {
				log.WithError(err).Warn("docs SSE ingester stopped")
			}
		}()
	}

	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	_ = d.StopScheduled(context.Background())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

func openStore(ctx context.Context, cfg config.Config) (syncstate.Store, error) {
	switch cfg.StoreKind {
	case "bolt":
		return syncstate.OpenBoltStore(cfg.StoreDSN)
	default:
		return syncstate.NewPostgresStore(ctx, cfg.StoreDSN)
	}
}

func openRepoLog(cfg config.Config, log *logrus.Entry) *repolog.GitAdapter {
	switch cfg.RepoLogBackend {
	case "gitea":
		adapter, err := repolog.NewGiteaBackedAdapter(cfg.RepoLogURL, cfg.RepoLogToken, cfg.RepoLogOwner, cfg.RepoLogWorkDir)
		if err != nil {
			log.WithError(err).Fatal("repolog: gitea backend")
		}
		return adapter
	case "gitlab":
		adapter, err := repolog.NewGitlabBackedAdapter(cfg.RepoLogURL, cfg.RepoLogToken, cfg.RepoLogOwner, cfg.RepoLogWorkDir)
		if err != nil {
			log.WithError(err).Fatal("repolog: gitlab backend")
		}
		return adapter
	default:
		return repolog.NewLocalAdapter(cfg.RepoLogWorkDir)
	}
}

func openDedup(cfg config.Config) dedup.Cache {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return dedup.NewRedisCache(client, "syncorch:dedup:")
}

// syncOneItemWorkflow adapts the single-item engine into a
// runtime.WorkflowFunc the webhook ingester dispatches one child
// workflow per changed item against (spec §4.4).
func syncOneItemWorkflow(syncEngine *engine.Engine) runtime.WorkflowFunc {
	return func(ctx context.Context, input any) (any, error) {
		in, ok := input.(engine.Input)
		if !ok {
			return nil, fmt.Errorf("syncorchd: unexpected single-item sync input %T", input)
		}
		return syncEngine.Sync(ctx, in)
	}
}

// openDocsSSEIngester returns nil when no Docs change-feed source is
// configured; the ingester is entirely optional (spec §4.4, Docs-SSE is
// the least-used ingestion path of the three).
func openDocsSSEIngester(cfg config.Config, docs adapters.DocsAdapter, runner *runtime.Runner, syncEngine *engine.Engine, log *logrus.Entry) *docssse.Ingester {
	if cfg.DocsSSECouchDSN == "" {
		return nil
	}
	client, err := kivik.New("couch", cfg.DocsSSECouchDSN)
	if err != nil {
		log.WithError(err).Warn("docs SSE ingester disabled: could not reach couch")
		return nil
	}
	return &docssse.Ingester{
		DB:     client.DB("syncorch_docs"),
		Docs:   docs,
		Runner: runner,
		SyncFn: docssse.SyncWorkflow(syncEngine),
		Logger: log,
	}
}
