package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/clipforge/vidqueue/internal/api/middleware"
	"github.com/clipforge/vidqueue/internal/api/response"
	"github.com/clipforge/vidqueue/internal/cache"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/google/uuid"
)

const maxRetryBatch = 100

// NewRetryFailedHandler returns the handler for POST /api/v1/videos/retry-failed.
// Re-enqueues the caller's terminally failed jobs for the given videos.
func NewRetryFailedHandler(s store.Store, c cache.Cache, maxRetries int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		var req struct {
			VideoIDs []string `json:"video_ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(req.VideoIDs) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "video_ids is required", nil)
			return
		}
		if len(req.VideoIDs) > maxRetryBatch {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				fmt.Sprintf("video_ids must contain at most %d entries", maxRetryBatch), nil)
			return
		}

		videoIDs := make([]uuid.UUID, 0, len(req.VideoIDs))
		for _, raw := range req.VideoIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					fmt.Sprintf("%q is not a valid UUID", raw), nil)
				return
			}
			videoIDs = append(videoIDs, id)
		}

		// Ownership and failed-status filtering happen in one query; videos
		// that don't match simply produce no result entry.
		failed, err := s.ListFailedJobsByVideoIDs(r.Context(), userID, videoIDs)
		if err != nil {
			slog.Error("list failed jobs", "user_id", userID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch videos", nil)
			return
		}

		results := make([]retryResult, 0, len(failed))
		requeued := 0
		for _, job := range failed {
			if _, err := s.EnqueueJob(r.Context(), job.VideoID, job.ProjectID, userID, maxRetries); err != nil {
				slog.Error("requeue failed job", "video_id", job.VideoID, "error", err)
				results = append(results, retryResult{VideoID: job.VideoID, Success: false, Error: "failed to requeue"})
				continue
			}
			_ = c.Delete(r.Context(), cache.JobStatusKey(job.VideoID))
			results = append(results, retryResult{VideoID: job.VideoID, Success: true})
			requeued++
		}
		_ = c.Delete(r.Context(), cache.QueueStatsKey(userID))

		response.JSON(w, retryFailedResponse{
			Message: fmt.Sprintf("Requeued %d of %d videos", requeued, len(results)),
			Results: results,
		})
	}
}

type retryResult struct {
	VideoID uuid.UUID `json:"video_id"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

type retryFailedResponse struct {
	Message string        `json:"message"`
	Results []retryResult `json:"results"`
}
