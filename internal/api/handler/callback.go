package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/clipforge/vidqueue/internal/api/response"
	"github.com/clipforge/vidqueue/internal/queue"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/google/uuid"
)

// Completer defines the interface the completion callback depends on.
type Completer interface {
	Apply(ctx context.Context, ev queue.CompletionEvent) error
}

// NewCompletionHandler returns the handler for
// POST /api/v1/internal/analysis-complete, the analyzer's HTTP side channel
// for reporting its asynchronous outcome.
func NewCompletionHandler(u Completer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev queue.CompletionEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if ev.VideoID == uuid.Nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "video_id is required", nil)
			return
		}

		if err := u.Apply(r.Context(), ev); err != nil {
			switch {
			case errors.Is(err, queue.ErrInvalidEventStatus):
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"status must be completed or failed", nil)
			case errors.Is(err, store.ErrNotFound):
				response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND",
					"No analysis job exists for this video", nil)
			default:
				slog.Error("apply completion event", "video_id", ev.VideoID, "error", err)
				response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
					"Failed to record analysis outcome", nil)
			}
			return
		}

		response.JSON(w, completionResponse{VideoID: ev.VideoID, Status: ev.Status})
	}
}

type completionResponse struct {
	VideoID uuid.UUID `json:"video_id"`
	Status  string    `json:"status"`
}
