package main

// @title           Heartbeat Pipeline - Ingest API
// @version         1.0
// @description     Ingest service for game server heartbeats. Verifies signed heartbeats, queues them for workers and serves owner monitoring endpoints.
// @contact.name   API Support
// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html
// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.basic  BasicAuth

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	_ "github.com/Alwanly/service-heartbeat-pipeline/docs/ingest"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/ingest/handler"
	authentication "github.com/Alwanly/service-heartbeat-pipeline/pkg/auth"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/database"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/deps"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/middleware"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/pubsub"
	swagger "github.com/gofiber/swagger"
)

func main() {
	log, err := logger.NewLoggerFromEnv("ingest")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting ingest service")

	cfg, err := config.LoadIngestConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	log.Info("configuration loaded",
		logger.String("server_addr", cfg.ServerAddr),
		logger.String("database_driver", cfg.Database.Driver),
		logger.Duration("clock_skew", cfg.ClockSkew),
		logger.Duration("key_grace", cfg.KeyGrace),
	)

	auth := middleware.SetBasicAuth(&authentication.BasicAuthTConfig{
		Username:      cfg.DashboardUsername,
		Password:      cfg.DashboardPassword,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	})
	mid := middleware.NewAuthMiddleware(auth)
	log.Info("authentication initialized")

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	log.Info("database initialized", logger.String("driver", cfg.Database.Driver))

	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}
	log.Info("database migrations applied successfully")

	app := fiber.New(fiber.Config{
		AppName:               "Heartbeat Ingest",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.CanonicalLoggerMiddleware(log))

	deps := deps.App{
		Fiber:      app,
		Database:   db,
		Logger:     log,
		Middleware: mid,
		Pub:        pubsub.NewNop(),
	}

	if cfg.Redis != nil {
		redisCfg := pubsub.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		redisPub, err := pubsub.NewRedisPubSub(redisCfg, log)
		if err != nil {
			log.WithError(err).Error("failed to initialize Redis pub/sub, workers will rely on polling",
				logger.String("mode", "poll-only"))
		} else {
			deps.Pub = redisPub
			log.Info("Redis pub/sub initialized successfully",
				logger.String("host", cfg.Redis.Host),
				logger.Int("port", cfg.Redis.Port))
			defer redisPub.Close()
		}
	} else {
		log.Info("no Redis configuration provided; skipping pub/sub initialization")
	}

	handler.NewHandler(deps, cfg)

	app.Get("/swagger/*", swagger.HandlerDefault)

	ctx, cancel := context.WithCancel(context.Background())
	gErr, gCtx := errgroup.WithContext(ctx)

	gErr.Go(func() error {
		log.Info("ingest service is running", logger.String("address", cfg.ServerAddr))
		if err := app.Listen(cfg.ServerAddr); err != nil {
			cancel()
			return err
		}
		return nil
	})

	gErr.Go(func() error {
		<-gCtx.Done()

		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("failed to shutdown fiber app")
			return err
		}

		conn, err := db.DB()
		if err != nil {
			log.WithError(err).Error("failed to get database connection")
			return err
		}
		if err := conn.Close(); err != nil {
			log.WithError(err).Error("failed to close database")
			return err
		}

		return nil
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		log.Info("listening for shutdown signals")
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := gErr.Wait(); err != nil {
		log.WithError(err).Fatal("ingest service encountered an error")
	}

	log.Info("ingest service stopped gracefully")
}
