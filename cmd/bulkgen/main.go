// File: cmd/bulkgen/main.go
//
// One-shot bulk scheduling pass: partitions the work-item keyspace into
// checkpointed batches and enqueues a start task per item. With -decrypt
// it instead calls the synchronous decrypt endpoints for the given items.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"avisflow/internal/config"
	"avisflow/internal/domain/ports/adapter"
	"avisflow/internal/domain/ports/repository"
	"avisflow/internal/infra/db/postgres"
	"avisflow/internal/infra/generation"
	"avisflow/internal/infra/logging"
	"avisflow/internal/infra/queue/rabbit"
	red "avisflow/internal/infra/redis"
	"avisflow/internal/usecase"

	"github.com/rs/zerolog"
)

const (
	rateLimitWindow  = time.Minute
	maxDecryptChunk  = 100
	rateLimitBackoff = time.Second
)

func main() {
	batchType := flag.String("type", "", "batch type (defaults to scheduler.batch_type)")
	angle := flag.String("angle", "", "editorial angle forwarded to generation")
	quality := flag.String("quality", "", "quality tier forwarded to generation")
	batchSize := flag.Int("batch-size", 0, "items per batch (defaults to scheduler.batch_size)")
	maxBatches := flag.Int("max-batches", 0, "max batches this pass (defaults to scheduler.max_batches)")
	periodic := flag.Bool("periodic", false, "regeneration pass: skip items with fresh artifacts")
	includeInactive := flag.Bool("include-inactive", false, "schedule inactive work items too")
	resumeFrom := flag.String("resume-from", "", "explicit keyset cursor, overrides the checkpoint")
	decryptIDs := flag.String("decrypt", "", "comma-separated work item IDs for synchronous decrypt")
	useLLM := flag.Bool("use-llm", false, "ask the decrypt endpoint for LLM-backed synthesis")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	workItemRepo := postgres.NewWorkItemRepo(pool)
	artifactRepo := postgres.NewArtifactRepo(pool)
	batchRepo := postgres.NewBatchRepo(pool)
	itemRepo := postgres.NewFailedItemRepo(pool)
	checkpoints := usecase.NewCheckpointStore(batchRepo, itemRepo, logger)

	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()

	if *decryptIDs != "" {
		runDecrypt(ctx, cfg, logger, workItemRepo, redisClient, *decryptIDs, *useLLM)
		return
	}

	queueClient, err := rabbit.NewClient(&cfg.Queue, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("rabbitmq")
	}
	defer queueClient.Close()

	sched := usecase.NewBulkScheduler(
		workItemRepo, artifactRepo, checkpoints,
		rabbit.NewTaskQueue(queueClient), red.NewLocker(redisClient),
		logger,
	)

	req := usecase.ScheduleRequest{
		BatchType:       firstNonEmpty(*batchType, cfg.Scheduler.BatchType),
		Angle:           firstNonEmpty(*angle, cfg.Scheduler.Angle),
		Quality:         firstNonEmpty(*quality, cfg.Scheduler.Quality),
		BatchSize:       firstPositive(*batchSize, cfg.Scheduler.BatchSize),
		MaxBatches:      firstPositive(*maxBatches, cfg.Scheduler.MaxBatches),
		Periodic:        *periodic,
		IncludeInactive: *includeInactive || cfg.Scheduler.IncludeInactive,
		ResumeFrom:      *resumeFrom,
	}

	report, err := sched.Schedule(ctx, req)
	if err != nil {
		logger.Fatal().Err(err).Str("batch_type", req.BatchType).Msg("scheduling pass failed")
	}
	logger.Info().
		Str("batch_type", req.BatchType).
		Int("batches_created", report.BatchesCreated).
		Int("items_enqueued", report.ItemsEnqueued).
		Int("items_failed", report.ItemsFailed).
		Int("items_skipped", report.ItemsSkipped).
		Str("cursor", report.Cursor).
		Msg("scheduling pass complete")
}

// runDecrypt bypasses the queue and calls the synchronous decrypt
// endpoints directly, throttled by the shared generation rate limit.
func runDecrypt(
	ctx context.Context,
	cfg *config.Config,
	logger *zerolog.Logger,
	workItems repository.WorkItemRepository,
	redisClient *red.Client,
	rawIDs string,
	useLLM bool,
) {
	var gen adapter.GenerationClient
	if cfg.Generation.BaseURL == "" {
		logger.Warn().Msg("generation.base_url not set; using canned responses")
		gen = generation.NewNoopClient()
	} else {
		client, err := generation.NewHTTPClient(&cfg.Generation)
		if err != nil {
			logger.Fatal().Err(err).Msg("generation client")
		}
		gen = client
	}

	limiter := red.NewRateLimiter(redisClient)
	var reqs []adapter.DecryptBatchRequest
	for _, id := range strings.Split(rawIDs, ",") {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		wi, err := workItems.FindByID(ctx, nil, id)
		if err != nil {
			logger.Warn().Err(err).Str("work_item_id", id).Msg("work item skipped")
			continue
		}
		reqs = append(reqs, adapter.DecryptBatchRequest{
			CompanyID:   wi.CompanyID,
			CompanyName: wi.CompanyName,
			City:        wi.City,
			Subcategory: wi.Subcategory,
			NAFLabel:    wi.NAFLabel,
		})
	}
	if len(reqs) == 0 {
		logger.Fatal().Msg("no resolvable work items to decrypt")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	for start := 0; start < len(reqs); start += maxDecryptChunk {
		end := start + maxDecryptChunk
		if end > len(reqs) {
			end = len(reqs)
		}
		chunk := reqs[start:end]
		waitForRateLimit(ctx, cfg, logger, limiter)

		if len(chunk) == 1 {
			res, err := gen.DecryptBatch(ctx, chunk[0])
			if err != nil {
				logger.Fatal().Err(err).Str("company_id", chunk[0].CompanyID).Msg("decrypt failed")
			}
			_ = enc.Encode(res)
			continue
		}
		res, err := gen.DecryptMultiBatch(ctx, chunk, useLLM)
		if err != nil {
			logger.Fatal().Err(err).Int("items", len(chunk)).Msg("multi decrypt failed")
		}
		_ = enc.Encode(res)
	}
}

func waitForRateLimit(ctx context.Context, cfg *config.Config, logger *zerolog.Logger, limiter *red.RateLimiter) {
	if cfg.Scheduler.RateLimit <= 0 {
		return
	}
	for {
		key := red.GenerationWindowKey("decrypt", rateLimitWindow)
		ok, err := limiter.Allow(ctx, key, cfg.Scheduler.RateLimit, rateLimitWindow)
		if err != nil {
			logger.Warn().Err(err).Msg("rate limiter unavailable; proceeding")
			return
		}
		if ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(rateLimitBackoff):
		}
	}
}

func firstNonEmpty(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func firstPositive(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
