package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/adapter"
	"avisflow/internal/domain/ports/repository"
	"avisflow/internal/infra/logging"
	"avisflow/internal/infra/metrics"
)

const (
	DefaultBatchSize  = 100
	DefaultMaxBatches = 10

	schedulerLockTTL = 30 * time.Minute
)

// ScheduleRequest describes one bulk scheduling invocation.
type ScheduleRequest struct {
	BatchType       string
	Angle           string
	Quality         string
	BatchSize       int
	MaxBatches      int
	Periodic        bool
	IncludeInactive bool
	// ResumeFrom overrides the checkpoint cursor when non-empty.
	ResumeFrom string
}

// ScheduleReport summarizes what one invocation did.
type ScheduleReport struct {
	BatchesCreated int
	ItemsEnqueued  int
	ItemsFailed    int
	ItemsSkipped   int
	// Cursor is the last id covered; the next invocation resumes after it.
	Cursor string
}

// BulkScheduler partitions the work-item set into contiguous batches via
// keyset pagination and enqueues a Start task per item. Enqueue is
// fire-and-forget: a batch completes once every enqueue attempt is
// accounted for, not when the jobs themselves finish.
type BulkScheduler struct {
	workItems   repository.WorkItemRepository
	artifacts   repository.ArtifactRepository
	checkpoints *CheckpointStore
	queue       adapter.TaskQueue
	locker      adapter.Locker
	log         *zerolog.Logger
}

func NewBulkScheduler(
	workItems repository.WorkItemRepository,
	artifacts repository.ArtifactRepository,
	checkpoints *CheckpointStore,
	queue adapter.TaskQueue,
	locker adapter.Locker,
	log *zerolog.Logger,
) *BulkScheduler {
	return &BulkScheduler{
		workItems:   workItems,
		artifacts:   artifacts,
		checkpoints: checkpoints,
		queue:       queue,
		locker:      locker,
		log:         log,
	}
}

// Schedule runs one bounded scheduling pass. Concurrent passes of the
// same batch type are mutually exclusive via the distributed lock; the
// resume cursor only ever advances, so re-running a range is idempotent
// at the cursor level.
func (s *BulkScheduler) Schedule(ctx context.Context, req ScheduleRequest) (*ScheduleReport, error) {
	defer logging.TraceDuration(s.log, "BulkScheduler.Schedule")()
	if req.BatchType == "" {
		return nil, fmt.Errorf("%w: batch type required", domain.ErrInvalidArgument)
	}
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}
	if req.MaxBatches <= 0 {
		req.MaxBatches = DefaultMaxBatches
	}

	if s.locker != nil {
		key := "bulkgen:lock:" + req.BatchType
		token, err := s.locker.TryLock(ctx, key, schedulerLockTTL)
		if err != nil {
			return nil, fmt.Errorf("scheduler lock %s: %w", req.BatchType, err)
		}
		defer func() {
			if err := s.locker.Unlock(context.Background(), key, token); err != nil {
				s.log.Warn().Str("key", key).Err(err).Msg("scheduler unlock failed")
			}
		}()
	}

	cursor := req.ResumeFrom
	if cursor == "" {
		var err error
		cursor, err = s.checkpoints.LastCompletedCursor(ctx, req.BatchType)
		if err != nil {
			return nil, err
		}
	}

	report := &ScheduleReport{Cursor: cursor}
	for i := 0; i < req.MaxBatches; i++ {
		ids, err := s.workItems.ListIDsAfter(ctx, cursor, req.BatchSize, req.IncludeInactive)
		if err != nil {
			return report, fmt.Errorf("list work items after %q: %w", cursor, err)
		}
		if len(ids) == 0 {
			break
		}

		endAt := ids[len(ids)-1]
		params := map[string]any{
			"start_after_id": cursor,
			"end_at_id":      endAt,
			"angle":          req.Angle,
			"quality":        req.Quality,
		}
		batch, err := s.checkpoints.CreateBatch(ctx, req.BatchType, len(ids), params)
		if err != nil {
			return report, fmt.Errorf("create batch: %w", err)
		}
		if _, err := s.checkpoints.StartBatch(ctx, batch.ID); err != nil {
			return report, fmt.Errorf("start batch %s: %w", batch.ID, err)
		}

		success, failed, skipped := s.enqueueBatch(ctx, batch.ID, ids, req)
		if _, err := s.checkpoints.CompleteBatch(ctx, batch.ID, success, failed); err != nil {
			return report, fmt.Errorf("complete batch %s: %w", batch.ID, err)
		}

		report.BatchesCreated++
		report.ItemsEnqueued += success
		report.ItemsFailed += failed
		report.ItemsSkipped += skipped
		report.Cursor = endAt
		cursor = endAt

		if len(ids) < req.BatchSize {
			break
		}
	}

	s.log.Info().
		Str("batch_type", req.BatchType).
		Int("batches", report.BatchesCreated).
		Int("enqueued", report.ItemsEnqueued).
		Int("failed", report.ItemsFailed).
		Int("skipped", report.ItemsSkipped).
		Str("cursor", report.Cursor).
		Msg("bulk scheduling pass finished")
	return report, nil
}

// enqueueBatch pushes one Start task per id. Enqueue failures are
// recorded as FailedItems and never abort the rest of the batch.
func (s *BulkScheduler) enqueueBatch(ctx context.Context, batchID string, ids []string, req ScheduleRequest) (success, failed, skipped int) {
	for _, id := range ids {
		if req.Periodic && !s.needsRegeneration(ctx, id) {
			skipped++
			continue
		}
		task := model.StartTask{
			WorkItemID: id,
			Angle:      req.Angle,
			Quality:    req.Quality,
			BatchID:    batchID,
			Periodic:   req.Periodic,
		}
		if err := s.queue.EnqueueStart(ctx, task); err != nil {
			metrics.IncEnqueueFailure(req.BatchType)
			if _, logErr := s.checkpoints.LogFailedItem(ctx, batchID, "enqueue", id,
				map[string]any{"work_item_id": id, "angle": req.Angle}, err, 0); logErr != nil {
				s.log.Error().Str("work_item_id", id).Err(logErr).Msg("recording enqueue failure failed")
			}
			failed++
			continue
		}
		success++
	}
	return success, failed, skipped
}

// needsRegeneration gates the periodic path: items with a fresh,
// non-empty artifact are skipped. Read errors err on the side of
// regenerating.
func (s *BulkScheduler) needsRegeneration(ctx context.Context, id string) bool {
	if s.artifacts == nil {
		return true
	}
	wi, err := s.workItems.FindByID(ctx, nil, id)
	if err != nil {
		return true
	}
	art, err := s.artifacts.FindByWorkItem(ctx, nil, id, contentKind(""))
	if err != nil {
		return true
	}
	return ShouldRegenerate(wi, art, time.Now())
}

// ShouldRegenerate reports whether a work item's artifact is stale
// enough to regenerate: missing or empty text, a low confidence score,
// no generation stamp, an elapsed expiry, or an old generation date.
func ShouldRegenerate(wi *model.WorkItem, art *model.GeneratedArtifact, now time.Time) bool {
	if art == nil || strings.TrimSpace(art.Text) == "" {
		return true
	}
	if art.ConfidenceScore > 0 && art.ConfidenceScore < 0.5 {
		return true
	}
	if !art.ExpiresAt.IsZero() && now.After(art.ExpiresAt) {
		return true
	}
	if wi.LastGeneratedAt == nil {
		return true
	}
	return now.Sub(*wi.LastGeneratedAt) > DefaultPeriodicExpiry
}
