package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/vidqueue/internal/api/middleware"
	"github.com/clipforge/vidqueue/internal/api/response"
	"github.com/clipforge/vidqueue/internal/cache"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// statusCacheTTL keeps polling cheap without letting responses go stale for
// long; transitions also invalidate the key explicitly.
const statusCacheTTL = 3 * time.Second

// NewStatusHandler returns the handler for GET /api/v1/videos/{videoID}/status.
// Read-only; answers UI polling about a single video's analysis progress.
func NewStatusHandler(s store.Store, c cache.Cache) http.HandlerFunc {
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

		key := cache.JobStatusKey(videoID)
		if cached, hit, err := c.Get(r.Context(), key); err == nil && hit {
			var sr statusResponse
			if json.Unmarshal(cached, &sr) == nil {
				response.JSON(w, sr)
				return
			}
		}

		job, err := s.GetJobByVideoID(r.Context(), videoID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				// A video without a job is a valid state, not an error
				response.JSON(w, statusResponse{
					VideoID:     videoID,
					VideoName:   video.OriginalName,
					Status:      "not_found",
					HasAnalysis: false,
				})
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to look up analysis status", nil)
			return
		}

		sr := statusResponse{
			VideoID:               videoID,
			VideoName:             video.OriginalName,
			Status:                job.Status,
			ProcessingStartedAt:   job.ProcessingStartedAt,
			ProcessingCompletedAt: job.ProcessingCompletedAt,
			HasAnalysis:           job.Status == models.JobStatusCompleted,
			SegmentsCount:         job.SegmentsCount,
			ErrorMessage:          job.ErrorMessage,
		}

		if b, err := json.Marshal(sr); err == nil {
			if err := c.Set(r.Context(), key, b, statusCacheTTL); err != nil {
				slog.Warn("cache status response", "video_id", videoID, "error", err)
			}
		}

		response.JSON(w, sr)
	}
}

type statusResponse struct {
	VideoID               uuid.UUID  `json:"video_id"`
	VideoName             string     `json:"video_name,omitempty"`
	Status                string     `json:"status"`
	ProcessingStartedAt   *time.Time `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `json:"processing_completed_at,omitempty"`
	HasAnalysis           bool       `json:"has_analysis"`
	SegmentsCount         int        `json:"segments_count"`
	ErrorMessage          *string    `json:"error_message,omitempty"`
}
