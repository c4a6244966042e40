package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/processor"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/queue"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/worker/handler"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/worker"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/deps"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/middleware"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/poll"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/pubsub"
)

func main() {
	log, err := logger.NewLoggerFromEnv("worker")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting worker service")

	cfg, err := config.LoadWorkerConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	log.Info("configuration loaded",
		logger.String("database_driver", cfg.Database.Driver),
		logger.Int("concurrency", cfg.Concurrency),
		logger.Duration("poll_interval", cfg.PollInterval),
		logger.Duration("lease_timeout", cfg.LeaseTimeout),
		logger.Int("max_attempts", cfg.MaxAttempts),
		logger.Duration("sweep_interval", cfg.SweepInterval),
		logger.Duration("job_retention", cfg.JobRetention),
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}
	log.Info("database initialized", logger.String("driver", cfg.Database.Driver))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var pub pubsub.PubSub = pubsub.NewNop()
	if cfg.Redis != nil {
		redisPub, err := pubsub.NewRedisPubSub(pubsub.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log)
		if err != nil {
			log.WithError(err).Error("failed to initialize Redis pub/sub, continuing in poll-only mode",
				logger.String("mode", "poll-only"))
		} else {
			pub = redisPub
			defer redisPub.Close()
		}
	}

	notifications, err := pub.Subscribe(ctx, pubsub.ChannelHeartbeatJobs)
	if err != nil {
		log.WithError(err).Error("failed to subscribe to job notifications, continuing in poll-only mode")
		notifications = nil
	}

	hostname, _ := os.Hostname()
	workerID := fmt.Sprintf("%s-%s", hostname, uuid.Must(uuid.NewV7()).String()[:8])
	wlog := log.WithWorkerID(workerID)

	q := queue.New(db, cfg.LeaseTimeout)
	pool := &worker.Pool{
		Queue:         q,
		Processor:     processor.New(db, q, cfg.Status, cfg.MaxAttempts, pub, wlog),
		Concurrency:   cfg.Concurrency,
		PollInterval:  cfg.PollInterval,
		Notifications: notifications,
		ID:            workerID,
		Logger:        wlog,
	}

	sweeper := worker.NewSweeper(db, cfg.Status, cfg.SweepBatch, pub, wlog.Component("sweeper"))
	purger := &worker.Purger{Queue: q, Retention: cfg.JobRetention}

	poller := poll.NewPoller(wlog.Component("poller"))
	poller.RegisterFetchFunc("status_sweep", sweeper.Sweep, poll.PollerConfig{Interval: cfg.SweepInterval, RunImmediately: true})
	if purger.Enabled() {
		poller.RegisterFetchFunc("job_purge", purger.Purge, poll.PollerConfig{Interval: cfg.SweepInterval * 20})
	}

	app := fiber.New(fiber.Config{
		AppName:               "Heartbeat Worker",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(log),
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.CanonicalLoggerMiddleware(log))

	handler.NewHandler(deps.App{
		Fiber:    app,
		Logger:   wlog,
		Database: db,
		Poller:   poller,
		Pub:      pub,
	}, q, workerID)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("worker health endpoint running", logger.String("address", cfg.ServerAddr))
		return app.Listen(cfg.ServerAddr)
	})

	g.Go(func() error {
		<-gCtx.Done()
		return app.Shutdown()
	})

	g.Go(func() error {
		wlog.Info("worker pool running")
		return pool.Run(gCtx)
	})

	g.Go(func() error {
		if err := poller.Start(gCtx); err != nil {
			return err
		}
		<-gCtx.Done()
		return poller.Stop()
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("worker service stopped with error")
	}

	if conn, err := db.DB(); err == nil {
		_ = conn.Close()
	}
	log.Info("worker service stopped gracefully")
}
