package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/clipforge/vidqueue/internal/api/middleware"
	"github.com/clipforge/vidqueue/internal/api/response"
	"github.com/clipforge/vidqueue/internal/cache"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// NewEnqueueHandler returns the handler for POST /api/v1/videos/{videoID}/queue.
// Queues the video for analysis, resetting any previous job for it.
func NewEnqueueHandler(s store.Store, c cache.Cache, maxRetries int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		videoID, err := uuid.Parse(chi.URLParam(r, "videoID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "videoID must be a valid UUID", nil)
			return
		}

		video, err := s.GetVideoForUser(r.Context(), videoID, userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				response.Error(w, http.StatusNotFound, "VIDEO_NOT_FOUND", "Video not found", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to look up video", nil)
			return
		}

		job, err := s.EnqueueJob(r.Context(), video.ID, video.ProjectID, userID, maxRetries)
		if err != nil {
			slog.Error("enqueue job", "video_id", videoID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to queue video analysis", nil)
			return
		}

		// Stale status responses are worse than a cache miss here
		_ = c.Delete(r.Context(), cache.JobStatusKey(videoID))
		_ = c.Delete(r.Context(), cache.QueueStatsKey(userID))

		stats, err := s.QueueStatsForUser(r.Context(), userID)
		if err != nil {
			slog.Error("queue stats for user", "user_id", userID, "error", err)
			stats = nil
		}

		response.Accepted(w, enqueueResponse{
			Message:       "Video queued for analysis",
			VideoID:       videoID,
			Status:        job.Status,
			QueuePosition: job.QueuePosition,
			QueueStats:    stats,
		})
	}
}

type enqueueResponse struct {
	Message       string             `json:"message"`
	VideoID       uuid.UUID          `json:"video_id"`
	Status        string             `json:"status"`
	QueuePosition int64              `json:"queue_position"`
	QueueStats    *models.QueueStats `json:"queue_stats,omitempty"`
}
