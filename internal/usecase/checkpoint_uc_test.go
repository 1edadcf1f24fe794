//go:build !integration

package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
)

func newTestCheckpointStore() (*CheckpointStore, *memBatchRepo, *memFailedItemRepo) {
	batches := newMemBatchRepo()
	items := newMemFailedItemRepo()
	return NewCheckpointStore(batches, items, newTestLogger()), batches, items
}

func TestCheckpointStore_BatchLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestCheckpointStore()

	b, err := store.CreateBatch(ctx, "bulk_generation", 100, map[string]any{
		"start_after_id": "",
		"end_at_id":      "id-100",
	})
	if err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}
	if b.Status != model.BatchStatusPending {
		t.Errorf("expected pending, got %s", b.Status)
	}
	if b.MaxRetries != DefaultBatchMaxRetries {
		t.Errorf("expected default max retries %d, got %d", DefaultBatchMaxRetries, b.MaxRetries)
	}

	started, err := store.StartBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("StartBatch: %v", err)
	}
	if started.Status != model.BatchStatusProcessing {
		t.Errorf("expected processing, got %s", started.Status)
	}
	if started.StartedAt == nil {
		t.Error("expected StartedAt to be stamped")
	}

	// Starting twice must hit the pending guard.
	if _, err := store.StartBatch(ctx, b.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on double start, got %v", err)
	}

	done, err := store.CompleteBatch(ctx, b.ID, 97, 3)
	if err != nil {
		t.Fatalf("CompleteBatch: %v", err)
	}
	if done.Status != model.BatchStatusCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
	if done.ItemsProcessed != done.ItemsSuccess+done.ItemsFailed {
		t.Errorf("counts invariant broken: %d != %d + %d",
			done.ItemsProcessed, done.ItemsSuccess, done.ItemsFailed)
	}
	if done.ItemsProcessed != 100 {
		t.Errorf("expected 100 processed, got %d", done.ItemsProcessed)
	}
	if done.CompletedAt == nil {
		t.Error("expected CompletedAt to be stamped")
	}
	if done.DurationSeconds < 0 {
		t.Errorf("negative duration: %f", done.DurationSeconds)
	}
}

func TestCheckpointStore_FailBatch(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestCheckpointStore()

	b, _ := store.CreateBatch(ctx, "bulk_generation", 10, nil)
	if _, err := store.StartBatch(ctx, b.ID); err != nil {
		t.Fatalf("StartBatch: %v", err)
	}

	failed, err := store.FailBatch(ctx, b.ID, "broker unavailable", map[string]any{"attempt": 1})
	if err != nil {
		t.Fatalf("FailBatch: %v", err)
	}
	if failed.Status != model.BatchStatusFailed {
		t.Errorf("expected failed, got %s", failed.Status)
	}
	if failed.RetryCount != 1 {
		t.Errorf("expected retry_count 1, got %d", failed.RetryCount)
	}
	if failed.LastError != "broker unavailable" {
		t.Errorf("unexpected last error: %q", failed.LastError)
	}
	if !failed.CanRetry() {
		t.Error("one failure should leave retry budget")
	}
}

func TestFailedItem_CanRetry(t *testing.T) {
	cases := []struct {
		retryCount int
		maxRetries int
		resolved   bool
		want       bool
	}{
		{0, 3, false, true},
		{2, 3, false, true},
		{3, 3, false, false},
		{4, 3, false, false},
		{0, 3, true, false},
		{3, 3, true, false},
		{0, 0, false, false},
	}
	for _, c := range cases {
		item := &model.FailedItem{RetryCount: c.retryCount, MaxRetries: c.maxRetries, IsResolved: c.resolved}
		if got := item.CanRetry(); got != c.want {
			t.Errorf("CanRetry(retry=%d max=%d resolved=%v) = %v, want %v",
				c.retryCount, c.maxRetries, c.resolved, got, c.want)
		}
	}
}

func TestCheckpointStore_RetryFailedItem(t *testing.T) {
	ctx := context.Background()
	store, _, items := newTestCheckpointStore()

	logged, err := store.LogFailedItem(ctx, "batch-1", "ai_job", "wi-1",
		map[string]any{"job_id": "job-1"}, domain.ErrJobFailed, 2)
	if err != nil {
		t.Fatalf("LogFailedItem: %v", err)
	}
	if logged.ErrorType != "job_failed" {
		t.Errorf("expected error_type job_failed, got %q", logged.ErrorType)
	}

	for i := 1; i <= 2; i++ {
		ok, err := store.RetryFailedItem(ctx, logged.ID)
		if err != nil {
			t.Fatalf("RetryFailedItem #%d: %v", i, err)
		}
		if !ok {
			t.Fatalf("retry #%d should be granted", i)
		}
	}

	// Budget exhausted: refused without mutation.
	ok, err := store.RetryFailedItem(ctx, logged.ID)
	if err != nil {
		t.Fatalf("RetryFailedItem after exhaustion: %v", err)
	}
	if ok {
		t.Error("retry should be refused once retry_count == max_retries")
	}
	after, _ := items.FindByID(ctx, nil, logged.ID)
	if after.RetryCount != 2 {
		t.Errorf("refused retry mutated retry_count: %d", after.RetryCount)
	}

	if err := store.MarkItemResolved(ctx, logged.ID); err != nil {
		t.Fatalf("MarkItemResolved: %v", err)
	}
	resolved, _ := items.FindByID(ctx, nil, logged.ID)
	if !resolved.IsResolved || resolved.ResolvedAt == nil {
		t.Error("expected item resolved with timestamp")
	}
}

func TestCheckpointStore_FailedItemsOrdering(t *testing.T) {
	ctx := context.Background()
	store, _, items := newTestCheckpointStore()

	base := time.Now()
	for i := 0; i < 3; i++ {
		item := &model.FailedItem{
			ItemType:   "ai_job",
			ItemID:     fmt.Sprintf("wi-%d", i),
			MaxRetries: 3,
			RetryCount: 2 - i, // oldest has the most retries
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		}
		if err := items.Save(ctx, nil, item); err != nil {
			t.Fatalf("seed item: %v", err)
		}
	}

	got, err := store.GetFailedItemsForRetry(ctx, "ai_job", 10)
	if err != nil {
		t.Fatalf("GetFailedItemsForRetry: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 items, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].RetryCount < got[i-1].RetryCount {
			t.Errorf("items not ordered by retry_count ascending: %d before %d",
				got[i-1].RetryCount, got[i].RetryCount)
		}
	}
}

func TestCheckpointStore_GetStats(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestCheckpointStore()

	t.Run("zero processed yields zero rate", func(t *testing.T) {
		st, err := store.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats: %v", err)
		}
		if st.SuccessRate != 0 {
			t.Errorf("expected 0 rate, got %f", st.SuccessRate)
		}
	})

	t.Run("rate is success over processed", func(t *testing.T) {
		b, _ := store.CreateBatch(ctx, "bulk_generation", 10, nil)
		store.StartBatch(ctx, b.ID)
		store.CompleteBatch(ctx, b.ID, 8, 2)

		st, err := store.GetStats(ctx)
		if err != nil {
			t.Fatalf("GetStats: %v", err)
		}
		if st.Completed != 1 {
			t.Errorf("expected 1 completed batch, got %d", st.Completed)
		}
		if st.SuccessRate != 80 {
			t.Errorf("expected 80%% success rate, got %f", st.SuccessRate)
		}
	})
}

func TestCheckpointStore_LastCompletedCursor(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestCheckpointStore()

	cursor, err := store.LastCompletedCursor(ctx, "bulk_generation")
	if err != nil {
		t.Fatalf("LastCompletedCursor: %v", err)
	}
	if cursor != "" {
		t.Errorf("expected empty cursor with no history, got %q", cursor)
	}

	b, _ := store.CreateBatch(ctx, "bulk_generation", 5, map[string]any{
		"start_after_id": "id-000",
		"end_at_id":      "id-005",
	})
	store.StartBatch(ctx, b.ID)
	store.CompleteBatch(ctx, b.ID, 5, 0)

	cursor, err = store.LastCompletedCursor(ctx, "bulk_generation")
	if err != nil {
		t.Fatalf("LastCompletedCursor: %v", err)
	}
	if cursor != "id-005" {
		t.Errorf("expected cursor id-005, got %q", cursor)
	}

	// Other batch types do not share the cursor.
	cursor, _ = store.LastCompletedCursor(ctx, "regeneration")
	if cursor != "" {
		t.Errorf("expected empty cursor for other type, got %q", cursor)
	}
}
