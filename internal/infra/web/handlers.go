package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"avisflow/internal/domain"
	"avisflow/internal/domain/model"
	"avisflow/internal/usecase"

	"github.com/go-chi/chi/v5"
)

type batchResponse struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Size           int            `json:"size"`
	Status         string         `json:"status"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
	QueryParams    map[string]any `json:"query_params,omitempty"`
	ItemsProcessed int            `json:"items_processed"`
	ItemsSuccess   int            `json:"items_success"`
	ItemsFailed    int            `json:"items_failed"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	DurationSecs   float64        `json:"duration_seconds,omitempty"`
	LastError      string         `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func toBatchResponse(b *model.Batch) batchResponse {
	return batchResponse{
		ID:             b.ID,
		Type:           b.Type,
		Size:           b.Size,
		Status:         string(b.Status),
		RetryCount:     b.RetryCount,
		MaxRetries:     b.MaxRetries,
		QueryParams:    b.QueryParams,
		ItemsProcessed: b.ItemsProcessed,
		ItemsSuccess:   b.ItemsSuccess,
		ItemsFailed:    b.ItemsFailed,
		StartedAt:      b.StartedAt,
		CompletedAt:    b.CompletedAt,
		DurationSecs:   b.DurationSeconds,
		LastError:      b.LastError,
		CreatedAt:      b.CreatedAt,
	}
}

type failedItemResponse struct {
	ID           string         `json:"id"`
	BatchID      string         `json:"batch_id,omitempty"`
	ItemType     string         `json:"item_type"`
	ItemID       string         `json:"item_id"`
	ItemData     map[string]any `json:"item_data,omitempty"`
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	RetryCount   int            `json:"retry_count"`
	MaxRetries   int            `json:"max_retries"`
	IsResolved   bool           `json:"is_resolved"`
	CreatedAt    time.Time      `json:"created_at"`
}

func toFailedItemResponse(f *model.FailedItem) failedItemResponse {
	return failedItemResponse{
		ID:           f.ID,
		BatchID:      f.BatchID,
		ItemType:     f.ItemType,
		ItemID:       f.ItemID,
		ItemData:     f.ItemData,
		ErrorType:    f.ErrorType,
		ErrorMessage: f.ErrorMessage,
		RetryCount:   f.RetryCount,
		MaxRetries:   f.MaxRetries,
		IsResolved:   f.IsResolved,
		CreatedAt:    f.CreatedAt,
	}
}

// statsHandler serves the aggregate checkpoint view.
func statsHandler(checkpoints *usecase.CheckpointStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := checkpoints.GetStats(r.Context())
		if err != nil {
			http.Error(w, "Failed to load stats", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"total_batches":           stats.TotalBatches,
			"pending":                 stats.Pending,
			"processing":              stats.Processing,
			"completed":               stats.Completed,
			"failed":                  stats.Failed,
			"items_processed":         stats.ItemsProcessed,
			"items_success":           stats.ItemsSuccess,
			"items_failed":            stats.ItemsFailed,
			"success_rate":            stats.SuccessRate,
			"failed_items_total":      stats.FailedItemsTotal,
			"failed_items_unresolved": stats.FailedItemsUnresolved,
			"failed_items_resolved":   stats.FailedItemsResolved,
		})
	}
}

func batchesListHandler(checkpoints *usecase.CheckpointStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := r.URL.Query().Get("status")
		if status == "" {
			http.Error(w, "status query parameter is required", http.StatusBadRequest)
			return
		}
		switch model.BatchStatus(status) {
		case model.BatchStatusPending, model.BatchStatusProcessing,
			model.BatchStatusCompleted, model.BatchStatusFailed:
		default:
			http.Error(w, "unknown status", http.StatusBadRequest)
			return
		}

		batches, err := checkpoints.ListBatches(r.Context(), r.URL.Query().Get("type"), model.BatchStatus(status))
		if err != nil {
			http.Error(w, "Failed to list batches", http.StatusInternalServerError)
			return
		}
		out := make([]batchResponse, 0, len(batches))
		for _, b := range batches {
			out = append(out, toBatchResponse(b))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func failedItemsListHandler(checkpoints *usecase.CheckpointStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}
		items, err := checkpoints.GetFailedItemsForRetry(r.Context(), r.URL.Query().Get("type"), limit)
		if err != nil {
			http.Error(w, "Failed to list items", http.StatusInternalServerError)
			return
		}
		out := make([]failedItemResponse, 0, len(items))
		for _, f := range items {
			out = append(out, toFailedItemResponse(f))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// itemRetryHandler grants one retry attempt. 409 means the retry
// budget is spent or the item is already resolved.
func itemRetryHandler(checkpoints *usecase.CheckpointStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		granted, err := checkpoints.RetryFailedItem(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Item not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to retry item", http.StatusInternalServerError)
			return
		}
		if !granted {
			http.Error(w, "Retry budget exhausted", http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "retry_granted": true})
	}
}

func itemResolveHandler(checkpoints *usecase.CheckpointStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := checkpoints.MarkItemResolved(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Item not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to resolve item", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
