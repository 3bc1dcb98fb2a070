package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/api/rest"
	"github.com/fortuna/janus/internal/api/websocket"
	"github.com/fortuna/janus/internal/backfill"
	"github.com/fortuna/janus/internal/cache"
	"github.com/fortuna/janus/internal/config"
	"github.com/fortuna/janus/internal/engine"
	"github.com/fortuna/janus/internal/ingest/bbref"
	"github.com/fortuna/janus/internal/ingest/pbpcsv"
	"github.com/fortuna/janus/internal/publisher"
	"github.com/fortuna/janus/internal/roster"
	"github.com/fortuna/janus/internal/scheduler"
	"github.com/fortuna/janus/internal/service"
	"github.com/fortuna/janus/internal/store"
	"github.com/fortuna/janus/internal/store/repository"
	"github.com/fortuna/janus/pkg/logger"
	"github.com/fortuna/janus/pkg/metrics"
)

const (
	serviceName    = "janus"
	serviceVersion = "1.0.0"

	connectAttempts = 30
	connectDelay    = 2 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.InitLogger(cfg.LogLevel, cfg.LogFormat)
	log.WithField("version", serviceVersion).Infof("Starting %s - lineup and possession service", serviceName)

	m := metrics.NewManager()

	// Initialize database connection
	db, err := store.NewDatabase(cfg.DatabaseURL, log)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(context.Background()); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}
	log.Info("database migrations applied")

	// Redis comes up after us in compose, so retry
	var redisCache *cache.RedisCache
	err = retry(log, "redis cache", func() (err error) {
		redisCache, err = cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		return err
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	var redisPublisher *publisher.RedisPublisher
	err = retry(log, "redis publisher", func() (err error) {
		redisPublisher, err = publisher.NewRedisPublisher(cfg.RedisURL)
		return err
	})
	if err != nil {
		log.Fatalf("Failed to initialize Redis publisher: %v", err)
	}
	defer redisPublisher.Close()

	// basketball-reference, behind the durable player store
	var fetcher bbref.Fetcher = bbref.NewHTTPFetcher()
	if cfg.BBRefRendered {
		bf := bbref.NewBrowserFetcher()
		defer bf.Close()
		fetcher = bf
	}
	bbrefClient := bbref.NewClient(fetcher, log,
		bbref.WithBaseURL(cfg.BBRefBaseURL),
		bbref.WithInterval(cfg.ScrapeInterval),
		bbref.WithMetrics(m),
	)

	games := repository.NewGameRepository(db)
	miscounts := repository.NewMiscountRepository(db)
	lineups := repository.NewLineupRepository(db)
	players := roster.NewCachedProvider(repository.NewPlayerRepository(db), bbrefClient)

	env := engine.NewEnv(redisCache, players, bbrefClient, m, log)
	env.Miscounts = miscounts
	opts := cfg.EngineOptions()

	wsServer := websocket.NewServer(cfg.WSPort, log)
	sink := publisher.Fanout{redisPublisher, wsServer.Hub()}

	// Backfill
	runner := backfill.NewRunner(pbpcsv.NewLoader(cfg.PBPDataDir, log), env,
		backfill.WithTimelineStore(games),
		backfill.WithLineupStore(lineups),
		backfill.WithSink(sink),
	)
	backfillService := backfill.NewService(backfill.NewRepository(db), runner, opts, m, log)
	backfillService.Start()
	log.Info("backfill service started")

	// Re-resolution scheduler
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewOrchestrator(games, miscounts, engine.NewProcessor(env, opts), sink, cfg.SchedulerConfig(), log,
		scheduler.WithLineupStore(lineups))
	go func() {
		if err := sched.Start(ctx); err != nil {
			log.WithError(err).Error("scheduler stopped")
		}
	}()

	// REST API
	restServer := rest.NewServer(cfg.RESTPort, rest.Deps{
		Health:    db,
		Games:     service.NewGameService(games),
		Analytics: service.NewAnalyticsService(lineups, games, analytics.NewFeatureBuilder(env.Players, log)),
		Miscounts: service.NewMiscountService(miscounts),
		Players:   service.NewPlayerService(env.Players),
		Backfill:  backfillService,
		Scheduler: sched,
		Metrics:   m,
		Log:       log,
	})
	go func() {
		log.WithField("port", cfg.RESTPort).Info("starting REST API server")
		if err := restServer.Start(); err != nil {
			log.WithError(err).Error("REST server error")
		}
	}()

	go func() {
		if err := wsServer.Start(); err != nil {
			log.WithError(err).Error("WebSocket server error")
		}
	}()

	log.WithFields(logrus.Fields{
		"rest": cfg.RESTPort,
		"ws":   cfg.WSPort,
	}).Infof("%s started", serviceName)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("REST API server shutdown error")
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("WebSocket server shutdown error")
	}
	if err := backfillService.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("backfill shutdown error")
	}

	log.Infof("%s stopped", serviceName)
}

// retry calls connect until it succeeds or the attempts run out.
func retry(log logrus.FieldLogger, what string, connect func() error) error {
	var err error
	for i := 1; i <= connectAttempts; i++ {
		if err = connect(); err == nil {
			log.Infof("connected to %s", what)
			return nil
		}
		if i < connectAttempts {
			log.WithError(err).Warnf("%s connection attempt %d/%d failed, retrying in %v", what, i, connectAttempts, connectDelay)
			time.Sleep(connectDelay)
		}
	}
	return err
}
