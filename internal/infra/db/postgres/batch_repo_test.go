//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
)

func TestBatchRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewBatchRepo(testPool)
	cleanup(t)

	b := &model.Batch{
		Type:       "bulk_generation",
		Size:       100,
		Status:     model.BatchStatusPending,
		MaxRetries: 5,
		QueryParams: map[string]any{
			"start_after_id": "",
			"end_at_id":      "01ARZ3NDEKTSV4RRFFQ69G5FAV",
		},
	}
	if err := repo.Save(ctx, nil, b); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if b.ID == "" {
		t.Fatal("Save must assign an ID")
	}

	got, err := repo.FindByID(ctx, nil, b.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.EndAtID() != "01ARZ3NDEKTSV4RRFFQ69G5FAV" {
		t.Errorf("query_params round-trip broken: %q", got.EndAtID())
	}

	// Guarded transition: pending -> processing succeeds once.
	if err := repo.UpdateStatus(ctx, nil, b.ID, model.BatchStatusPending, model.BatchStatusProcessing); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := repo.UpdateStatus(ctx, nil, b.ID, model.BatchStatusPending, model.BatchStatusProcessing); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second start, got %v", err)
	}
	processing, _ := repo.FindByID(ctx, nil, b.ID)
	if processing.StartedAt == nil {
		t.Error("processing transition must stamp started_at")
	}

	// Complete and resolve the resume cursor.
	now := time.Now()
	processing.Status = model.BatchStatusCompleted
	processing.CompletedAt = &now
	processing.ItemsProcessed = 100
	processing.ItemsSuccess = 98
	processing.ItemsFailed = 2
	if err := repo.Save(ctx, nil, processing); err != nil {
		t.Fatalf("Save completed: %v", err)
	}

	last, err := repo.LastCompleted(ctx, "bulk_generation")
	if err != nil {
		t.Fatalf("LastCompleted: %v", err)
	}
	if last.ID != b.ID {
		t.Errorf("LastCompleted returned %s, want %s", last.ID, b.ID)
	}
	if _, err := repo.LastCompleted(ctx, "regeneration"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for other type, got %v", err)
	}

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Completed != 1 || stats.ItemsProcessed != 100 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.SuccessRate != 98 {
		t.Errorf("expected 98%% success rate, got %f", stats.SuccessRate)
	}
}

func TestFailedItemRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewFailedItemRepo(testPool)
	cleanup(t)

	item := &model.FailedItem{
		ItemType:     "ai_job",
		ItemID:       "wi-1",
		ItemData:     map[string]any{"job_id": "job-1"},
		ErrorType:    "poll_exhausted",
		ErrorMessage: "job still pending after 120 polls",
		MaxRetries:   3,
	}
	if err := repo.Save(ctx, nil, item); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := repo.FindByID(ctx, nil, item.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.ItemData["job_id"] != "job-1" {
		t.Errorf("item_data round-trip broken: %+v", got.ItemData)
	}

	due, err := repo.ListForRetry(ctx, "ai_job", 10)
	if err != nil {
		t.Fatalf("ListForRetry: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected 1 item due for retry, got %d", len(due))
	}

	now := time.Now()
	got.IsResolved = true
	got.ResolvedAt = &now
	if err := repo.Save(ctx, nil, got); err != nil {
		t.Fatalf("Save resolved: %v", err)
	}
	due, _ = repo.ListForRetry(ctx, "ai_job", 10)
	if len(due) != 0 {
		t.Errorf("resolved items must not be due for retry, got %d", len(due))
	}
}
