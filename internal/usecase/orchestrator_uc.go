package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
	"avisflow/internal/domain/ports/adapter"
	"avisflow/internal/domain/ports/repository"
	"avisflow/internal/infra/logging"
	"avisflow/internal/infra/metrics"
	"avisflow/internal/validator"
)

const (
	DefaultPollCountdown  = 15 * time.Second
	DefaultMaxPolls       = 120
	DefaultAdHocExpiry    = 30 * 24 * time.Hour
	DefaultPeriodicExpiry = 90 * 24 * time.Hour

	metaDescriptionMaxRunes = 160
)

// OrchestratorOptions tunes the poll loop and artifact expiry windows.
// Zero values fall back to the defaults above.
type OrchestratorOptions struct {
	Countdown      time.Duration
	MaxPolls       int
	AdHocExpiry    time.Duration
	PeriodicExpiry time.Duration
}

// PollOutcome is the decision a single Poll invocation hands back to the
// task-queue consumer. When Terminal is false the consumer re-enqueues
// Next after RequeueAfter; nothing blocks in between.
type PollOutcome struct {
	Terminal     bool
	Status       model.ApplyStatus
	RequeueAfter time.Duration
	Next         model.PollTask
}

// JobOrchestrator drives one generation job through its lifecycle:
// Start obtains a job_id, Poll checks it once per queue delivery until
// the job terminates or the delivery budget runs out, then the done
// payload is applied under the editorial rule.
type JobOrchestrator struct {
	gen         adapter.GenerationClient
	workItems   repository.WorkItemRepository
	artifacts   repository.ArtifactRepository
	txm         repository.TransactionManager
	checkpoints *CheckpointStore
	validate    *validator.Validator

	countdown   time.Duration
	maxPolls    int
	adHocTTL    time.Duration
	periodicTTL time.Duration

	log *zerolog.Logger
}

func NewJobOrchestrator(
	gen adapter.GenerationClient,
	workItems repository.WorkItemRepository,
	artifacts repository.ArtifactRepository,
	txm repository.TransactionManager,
	checkpoints *CheckpointStore,
	v *validator.Validator,
	opts OrchestratorOptions,
	log *zerolog.Logger,
) *JobOrchestrator {
	if opts.Countdown <= 0 {
		opts.Countdown = DefaultPollCountdown
	}
	if opts.MaxPolls <= 0 {
		opts.MaxPolls = DefaultMaxPolls
	}
	if opts.AdHocExpiry <= 0 {
		opts.AdHocExpiry = DefaultAdHocExpiry
	}
	if opts.PeriodicExpiry <= 0 {
		opts.PeriodicExpiry = DefaultPeriodicExpiry
	}
	return &JobOrchestrator{
		gen:         gen,
		workItems:   workItems,
		artifacts:   artifacts,
		txm:         txm,
		checkpoints: checkpoints,
		validate:    v,
		countdown:   opts.Countdown,
		maxPolls:    opts.MaxPolls,
		adHocTTL:    opts.AdHocExpiry,
		periodicTTL: opts.PeriodicExpiry,
		log:         log,
	}
}

// Start loads the work item, opens a job on the generation service and
// returns the PollTask that continues the chain. Start is not retried
// locally; the queue's own redelivery policy covers transient failures.
func (o *JobOrchestrator) Start(ctx context.Context, task model.StartTask) (*model.PollTask, error) {
	defer logging.TraceDuration(o.log, "JobOrchestrator.Start")()
	wi, err := o.workItems.FindByID(ctx, nil, task.WorkItemID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			cause := fmt.Errorf("work item %s: %w", task.WorkItemID, domain.ErrNotFound)
			o.recordItemFailure(ctx, task.BatchID, "work_item", task.WorkItemID, startItemData(task), cause)
		}
		return nil, err
	}

	req := adapter.StartJobRequest{
		Mode:      "redaction",
		CompanyID: wi.CompanyID,
		Context: map[string]string{
			"company_name": wi.CompanyName,
			"city":         wi.City,
			"category":     wi.Category,
			"subcategory":  wi.Subcategory,
			"naf_label":    wi.NAFLabel,
			"angle":        task.Angle,
			"quality":      task.Quality,
		},
	}
	jobID, err := o.gen.StartJob(ctx, req)
	if err != nil {
		if task.BatchID != "" {
			o.recordItemFailure(ctx, task.BatchID, "work_item", task.WorkItemID, startItemData(task), err)
		}
		return nil, fmt.Errorf("start job for work item %s: %w", task.WorkItemID, err)
	}

	o.log.Info().
		Str("job_id", jobID).
		Str("work_item_id", task.WorkItemID).
		Str("batch_id", task.BatchID).
		Msg("generation job started")
	return &model.PollTask{
		JobID:      jobID,
		WorkItemID: task.WorkItemID,
		Angle:      task.Angle,
		Quality:    task.Quality,
		BatchID:    task.BatchID,
		Periodic:   task.Periodic,
	}, nil
}

// Poll performs exactly one GetJobStatus round-trip. Transport and
// protocol errors are transient and share the delivery budget with
// non-terminal statuses.
func (o *JobOrchestrator) Poll(ctx context.Context, task model.PollTask) (PollOutcome, error) {
	defer logging.TraceDuration(o.log, "JobOrchestrator.Poll")()
	delivery := task.Deliveries + 1

	st, err := o.gen.GetJobStatus(ctx, task.JobID)
	if err != nil {
		metrics.IncJobPoll("error")
		o.log.Warn().
			Str("job_id", task.JobID).
			Int("delivery", delivery).
			Err(err).
			Msg("poll transport error")
		return o.requeueOrExhaust(ctx, task, delivery), nil
	}

	status := model.JobStatus(st.Status)
	metrics.IncJobPoll(st.Status)

	switch {
	case !status.Terminal():
		return o.requeueOrExhaust(ctx, task, delivery), nil

	case status == model.JobStatusFailed:
		cause := fmt.Errorf("%w: %s", domain.ErrJobFailed, st.Error)
		o.recordItemFailure(ctx, task.BatchID, "ai_job", task.WorkItemID, pollItemData(task, delivery), cause)
		metrics.IncJobFinished("failed")
		o.log.Error().
			Str("job_id", task.JobID).
			Str("work_item_id", task.WorkItemID).
			Str("error", st.Error).
			Msg("generation job failed")
		return PollOutcome{Terminal: true}, nil

	default: // done
		content := st.GeneratedContent
		if content == nil && st.ResultURL != "" {
			content, err = o.gen.FetchResult(ctx, st.ResultURL)
			if err != nil {
				metrics.IncJobPoll("result_error")
				o.log.Warn().
					Str("job_id", task.JobID).
					Str("result_url", st.ResultURL).
					Err(err).
					Msg("result fetch error")
				return o.requeueOrExhaust(ctx, task, delivery), nil
			}
		}
		applied, err := o.applyResult(ctx, task, content)
		if err != nil {
			// item_type names the entity that failed: a missing work
			// item is a work_item failure, everything else is job-level.
			itemType := "ai_job"
			if errors.Is(err, domain.ErrNotFound) {
				itemType = "work_item"
			}
			o.recordItemFailure(ctx, task.BatchID, itemType, task.WorkItemID, pollItemData(task, delivery), err)
			metrics.IncJobFinished("rejected")
			return PollOutcome{Terminal: true}, err
		}
		metrics.IncJobFinished(string(applied))
		o.log.Info().
			Str("job_id", task.JobID).
			Str("work_item_id", task.WorkItemID).
			Str("apply_status", string(applied)).
			Int("deliveries", delivery).
			Msg("generation job finished")
		return PollOutcome{Terminal: true, Status: applied}, nil
	}
}

func (o *JobOrchestrator) requeueOrExhaust(ctx context.Context, task model.PollTask, delivery int) PollOutcome {
	if delivery >= o.maxPolls {
		cause := fmt.Errorf("job %s still pending after %d polls: %w", task.JobID, delivery, domain.ErrPollExhausted)
		o.recordItemFailure(ctx, task.BatchID, "ai_job", task.WorkItemID, pollItemData(task, delivery), cause)
		metrics.IncPollBudgetExhausted()
		metrics.IncJobFinished("poll_exhausted")
		o.log.Error().
			Str("job_id", task.JobID).
			Str("work_item_id", task.WorkItemID).
			Int("deliveries", delivery).
			Msg("poll budget exhausted, abandoning job")
		return PollOutcome{Terminal: true}
	}
	next := task
	next.Deliveries = delivery
	return PollOutcome{RequeueAfter: o.countdown, Next: next}
}

// applyResult persists a done payload under the editorial rule: the meta
// description is saved unconditionally, but no artifact is created when
// the business has no public reviews and no generated text.
func (o *JobOrchestrator) applyResult(ctx context.Context, task model.PollTask, content *adapter.GeneratedContent) (model.ApplyStatus, error) {
	wi, err := o.workItems.FindByID(ctx, nil, task.WorkItemID)
	if err != nil {
		return "", fmt.Errorf("apply result for work item %s: %w", task.WorkItemID, err)
	}
	if content == nil {
		content = &adapter.GeneratedContent{}
	}

	// Written outside the final transaction: the meta description
	// sticks even when the text is rejected further down.
	if content.MetaDescription != nil {
		if md := strings.TrimSpace(*content.MetaDescription); md != "" {
			if err := o.workItems.UpdateMetaDescription(ctx, nil, wi.ID, truncateRunes(md, metaDescriptionMaxRunes)); err != nil {
				return "", fmt.Errorf("persist meta description: %w", err)
			}
		}
	}

	text := ""
	if content.Text != nil {
		text = strings.TrimSpace(*content.Text)
	}
	hasReviews := resolveHasReviews(content)

	if !hasReviews && isNullSentinel(text) {
		return model.ApplyNoReviews, nil
	}

	art := &model.GeneratedArtifact{
		WorkItemID:      wi.ID,
		Kind:            contentKind(task.Angle),
		Source:          content.Source,
		ConfidenceScore: content.ConfidenceScore,
		ExpiresAt:       time.Now().Add(o.expiry(task)),
	}
	if content.Rating != nil {
		art.Rating = *content.Rating
	}

	if isNullSentinel(text) {
		if err := o.artifacts.Upsert(ctx, nil, art); err != nil {
			return "", fmt.Errorf("upsert metadata-only artifact: %w", err)
		}
		return model.ApplyNoText, nil
	}

	ok, reason := o.validate.Validate(text)
	if !ok {
		text = validator.Sanitize(text, validator.Facts{
			CompanyName: wi.CompanyName,
			City:        wi.City,
			Category:    wi.Category,
		})
		ok, reason = o.validate.Validate(text)
		if !ok {
			return "", fmt.Errorf("%w: %s", domain.ErrContentRejected, reason)
		}
	}

	art.Text = text
	// Final atomic write: the artifact and the work item's generation
	// stamp land together or not at all.
	err = o.atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := o.artifacts.Upsert(ctx, tx, art); err != nil {
			return fmt.Errorf("upsert artifact: %w", err)
		}
		if err := o.workItems.TouchGeneratedAt(ctx, tx, wi.ID); err != nil {
			return fmt.Errorf("touch last_generated_at: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return model.ApplySuccess, nil
}

// atomically runs fn inside a database transaction when a manager is
// wired; repositories fall back to the pool on a nil tx otherwise.
func (o *JobOrchestrator) atomically(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if o.txm == nil {
		return fn(ctx, nil)
	}
	return o.txm.WithTx(ctx, pgx.TxOptions{}, fn)
}

func (o *JobOrchestrator) expiry(task model.PollTask) time.Duration {
	if task.Periodic {
		return o.periodicTTL
	}
	return o.adHocTTL
}

func (o *JobOrchestrator) recordItemFailure(ctx context.Context, batchID, itemType, itemID string, data map[string]any, cause error) {
	if o.checkpoints == nil {
		return
	}
	if _, err := o.checkpoints.LogFailedItem(ctx, batchID, itemType, itemID, data, cause, 0); err != nil {
		o.log.Error().
			Str("item_type", itemType).
			Str("item_id", itemID).
			Err(err).
			Msg("recording failed item failed")
	}
}

// resolveHasReviews resolves the review signal in strict precedence:
// explicit flag, then non-sentinel text, then rating/source presence.
func resolveHasReviews(c *adapter.GeneratedContent) bool {
	if c.HasReviews != nil {
		return *c.HasReviews
	}
	if c.Text != nil && !isNullSentinel(strings.TrimSpace(*c.Text)) {
		return true
	}
	return c.Source != "" || c.Rating != nil
}

func isNullSentinel(text string) bool {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "", "null", "none":
		return true
	}
	return false
}

func contentKind(angle string) model.ContentKind {
	if angle == string(model.ContentKindLongText) {
		return model.ContentKindLongText
	}
	return model.ContentKindReviewDigest
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func startItemData(task model.StartTask) map[string]any {
	return map[string]any{
		"work_item_id": task.WorkItemID,
		"angle":        task.Angle,
		"quality":      task.Quality,
	}
}

func pollItemData(task model.PollTask, delivery int) map[string]any {
	return map[string]any{
		"job_id":       task.JobID,
		"work_item_id": task.WorkItemID,
		"angle":        task.Angle,
		"quality":      task.Quality,
		"deliveries":   delivery,
	}
}
