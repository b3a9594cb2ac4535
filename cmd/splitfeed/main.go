// Package main wires together the splitfeed service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/jaekyeom/splitfeed/internal/api"
	"github.com/jaekyeom/splitfeed/internal/assets"
	"github.com/jaekyeom/splitfeed/internal/clock/system"
	"github.com/jaekyeom/splitfeed/internal/config"
	"github.com/jaekyeom/splitfeed/internal/dispatch"
	"github.com/jaekyeom/splitfeed/internal/engine"
	"github.com/jaekyeom/splitfeed/internal/fetch"
	"github.com/jaekyeom/splitfeed/internal/logging"
	pubsubpublisher "github.com/jaekyeom/splitfeed/internal/publisher/pubsub"
	"github.com/jaekyeom/splitfeed/internal/render"
	"github.com/jaekyeom/splitfeed/internal/schedule"
	"github.com/jaekyeom/splitfeed/internal/storage"
	memorystorage "github.com/jaekyeom/splitfeed/internal/storage/memory"
	"github.com/jaekyeom/splitfeed/internal/storage/postgres"
	"github.com/jaekyeom/splitfeed/internal/store"
	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// progressTopic is the logical stream name stamped on post-save
// notifications. The Pub/Sub resource it lands on comes from config.
const progressTopic = "splitfeed.progress"

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := system.New()

	var st store.Store
	if cfg.DB.DSN != "" {
		pg, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: int32(cfg.DB.MaxConns),
		})
		if err != nil {
			logger.Fatal("postgres connect failed", zap.Error(err))
		}
		defer pg.Close()
		st = pg
		logger.Info("using postgres store")
	} else {
		st = memorystorage.NewResultStore()
		logger.Warn("db.dsn not set, results are held in memory only")
	}

	files, err := storage.New(ctx, storage.Config{
		Backend: cfg.Storage.Backend,
		CertDir: cfg.Storage.CertDir,
		Bucket:  cfg.Storage.GCSBucket,
		Prefix:  cfg.Storage.Prefix,
	})
	if err != nil {
		logger.Fatal("artifact store init failed", zap.Error(err))
	}

	var pub tracker.Publisher
	if cfg.PubSub.Enabled {
		psClient, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("pubsub client init failed", zap.Error(err))
		}
		defer psClient.Close()
		topic := psClient.Topic(cfg.PubSub.TopicName)
		defer topic.Stop()
		pub = pubsubpublisher.New(topic)
		logger.Info("pubsub notifications enabled", zap.String("topic", cfg.PubSub.TopicName))
	}

	var renderer tracker.Renderer
	if cfg.Headless.Enabled {
		worker, err := render.NewWorker(render.Config{
			MaxParallel: cfg.Headless.MaxParallel,
			UserAgent:   cfg.Crawler.UserAgent,
			NavTimeout:  cfg.NavTimeout(),
		}, logger.Named("render"))
		if err != nil {
			logger.Warn("render worker init failed, headless fetching disabled", zap.Error(err))
		} else {
			defer worker.Close()
			renderer = worker
		}
	}

	httpClient := fetch.NewClient(fetch.ClientConfig{
		UserAgent:          cfg.Crawler.UserAgent,
		Timeout:            cfg.HTTPTimeout(),
		InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
	})
	fetcher := fetch.NewFetcher(
		httpClient,
		renderer,
		cfg.Headless.RenderHosts,
		cfg.NavTimeout(),
		clk,
		logger.Named("fetch"),
	)
	cached := fetch.NewCache(fetcher, cfg.CacheTTL())

	base := schedule.NewTracker(clk, cfg.MinFetchInterval())
	var sched schedule.Scheduler = base
	if cfg.Crawler.Adaptive {
		sched = schedule.NewAdaptiveTracker(base, cfg.Crawler.BackoffCap)
	}

	disp := dispatch.New(dispatch.Config{
		MaxParallel:   cfg.Crawler.Concurrency,
		SerialHosts:   cfg.Crawler.SerialHosts,
		HostRPS:       cfg.Crawler.PerHostRPS,
		HostBurst:     cfg.Crawler.PerHostBurst,
		RenderTimeout: cfg.NavTimeout(),
	}, cached, renderer, sched, clk, logger.Named("dispatch"))

	pool := assets.NewPool(assets.Config{
		Workers:     cfg.Assets.Workers,
		UserAgent:   cfg.Crawler.UserAgent,
		Timeout:     cfg.HTTPTimeout(),
		JoinTimeout: cfg.AssetJoinTimeout(),
	}, files, st, logger.Named("assets"))

	agg := engine.NewAggregator(st, pool, pub, progressTopic, clk, logger.Named("aggregate"))
	eng := engine.New(engine.Config{}, st, sched, disp, agg, pool, logger.Named("engine"))

	apiServer := api.NewServer(st, cached, clk, cfg, logger.Named("api"))
	srv := &http.Server{
		Addr:              apiServer.Addr(),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	engDone := make(chan struct{})
	go func() {
		defer close(engDone)
		if err := eng.Run(ctx); err != nil {
			logger.Error("engine error", zap.Error(err))
			stop()
		}
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	<-engDone
	logger.Info("shutdown complete")
}
