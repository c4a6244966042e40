package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Alwanly/service-heartbeat-pipeline/internal/config"
	agenthandler "github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/handler"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/repository"
	"github.com/Alwanly/service-heartbeat-pipeline/internal/server/agent/usecase"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/logger"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/middleware"
	"github.com/Alwanly/service-heartbeat-pipeline/pkg/poll"
)

func main() {
	log, err := logger.NewLoggerFromEnv("agent")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting agent service")

	cfg, err := config.LoadAgentConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	if cfg.ServerID == "" || cfg.ClusterID == "" {
		log.Fatal("SERVER_ID and CLUSTER_ID are required")
	}
	log = log.WithServerID(cfg.ServerID)

	log.Info("configuration loaded",
		logger.String("ingest_url", cfg.IngestURL),
		logger.String(logger.FieldClusterID, cfg.ClusterID),
		logger.Int(logger.FieldKeyVersion, cfg.KeyVersion),
		logger.Duration("heartbeat_interval", cfg.HeartbeatInterval),
	)

	pemBytes, err := os.ReadFile(cfg.PrivateKeyPath)
	if err != nil {
		log.WithError(err).Fatal("failed to read private key")
	}
	signer, err := usecase.LoadSigner(pemBytes)
	if err != nil {
		log.WithError(err).Fatal("failed to load private key")
	}

	app := fiber.New(fiber.Config{DisableStartupMessage: true, ErrorHandler: middleware.ErrorHandler(log)})

	uc := usecase.NewUseCase(usecase.UseCase{
		Ingest: repository.NewIngestClient(cfg, log),
		Probe:  repository.NewStatusProbe(cfg.StatusFile),
		Repo:   repository.NewRepository(),
		Signer: signer,
		Config: cfg,
		Logger: log,
	})

	h := agenthandler.NewHandler(uc, cfg, time.Now())
	h.RegisterRoutes(app)

	poller := poll.NewPoller(log)
	poller.RegisterFetchFunc("heartbeat", uc.SendHeartbeat, poll.PollerConfig{
		Interval:       cfg.HeartbeatInterval,
		RunImmediately: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting HTTP server", logger.String("address", cfg.AgentAddr))
		if err := app.Listen(cfg.AgentAddr); err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return poller.Start(gCtx)
	})

	// Handle graceful shutdown
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Info("received shutdown signal", logger.String("signal", sig.String()))
		case <-gCtx.Done():
			log.Info("context cancelled")
		}

		if err := poller.Stop(); err != nil {
			log.WithError(err).Error("error stopping heartbeat poller")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Error("error during server shutdown")
		}

		cancel()
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("agent service stopped with error")
		os.Exit(1)
	}

	log.Info("agent service stopped gracefully")
}
