// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"avisflow/internal/config"
	"avisflow/internal/domain/ports/adapter"
	"avisflow/internal/infra/db/postgres"
	"avisflow/internal/infra/generation"
	"avisflow/internal/infra/logging"
	"avisflow/internal/infra/metrics"
	"avisflow/internal/infra/queue/rabbit"
	red "avisflow/internal/infra/redis"
	"avisflow/internal/infra/web"
	"avisflow/internal/infra/worker"
	"avisflow/internal/usecase"
	"avisflow/internal/validator"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	batchRepo := postgres.NewBatchRepo(pool)
	itemRepo := postgres.NewFailedItemRepo(pool)
	workItemRepo := postgres.NewWorkItemRepo(pool)
	artifactRepo := postgres.NewArtifactRepo(pool)

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	// ---- RabbitMQ ----
	queueClient, err := rabbit.NewClient(&cfg.Queue, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq")
	}
	defer queueClient.Close()
	taskQueue := rabbit.NewTaskQueue(queueClient)

	// ---- Use cases ----
	checkpoints := usecase.NewCheckpointStore(batchRepo, itemRepo, logger)
	v := validator.New(metrics.RejectionSink{})

	var gen adapter.GenerationClient
	if cfg.Generation.BaseURL == "" {
		logger.Warn().Msg("generation.base_url not set; using canned responses")
		gen = generation.NewNoopClient()
	} else {
		gen, err = generation.NewHTTPClient(&cfg.Generation)
		if err != nil {
			logger.Fatal().Err(err).Msg("generation client")
		}
	}

	orch := usecase.NewJobOrchestrator(gen, workItemRepo, artifactRepo, txManager, checkpoints, v, usecase.OrchestratorOptions{
		Countdown:      cfg.Orchestrator.PollCountdown,
		MaxPolls:       cfg.Orchestrator.MaxPolls,
		AdHocExpiry:    cfg.Orchestrator.AdHocExpiry,
		PeriodicExpiry: cfg.Orchestrator.PeriodicExpiry,
	}, logger)

	// ---- Consumer ----
	wpool := worker.NewPool(cfg.Orchestrator.Workers, logger)
	wpool.Start(ctx)
	defer wpool.Stop()

	consumer := rabbit.NewConsumer(
		queueClient, taskQueue, orch, wpool,
		cfg.Orchestrator.PollCountdown, cfg.Queue.Prefetch, cfg.Queue.ConsumerTag,
		logger,
	)
	go func() {
		if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped")
		}
	}()

	// ---- Ops HTTP server ----
	auth := web.NewAuthManager(cfg.Ops.JWTSecret, !cfg.Runtime.Dev, "", 30*time.Minute)
	ready := func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}
	srv := web.NewServer(checkpoints, auth, cfg.Ops.APIKey, ready, logger)
	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Ops.Port), Handler: srv.Router()}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("ops http listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
}
