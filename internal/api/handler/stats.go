package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipforge/vidqueue/internal/api/middleware"
	"github.com/clipforge/vidqueue/internal/api/response"
	"github.com/clipforge/vidqueue/internal/cache"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/clipforge/vidqueue/pkg/models"
)

const statsCacheTTL = 5 * time.Second

// NewQueueStatsHandler returns the handler for GET /api/v1/queue/stats,
// scoped to the caller's own jobs.
func NewQueueStatsHandler(s store.Store, c cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.GetUserID(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized, "INVALID_TOKEN", "Missing user", nil)
			return
		}

		key := cache.QueueStatsKey(userID)
		if cached, hit, err := c.Get(r.Context(), key); err == nil && hit {
			var st models.QueueStats
			if json.Unmarshal(cached, &st) == nil {
				response.JSON(w, &st)
				return
			}
		}

		stats, err := s.QueueStatsForUser(r.Context(), userID)
		if err != nil {
			slog.Error("queue stats for user", "user_id", userID, "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch queue stats", nil)
			return
		}

		if b, err := json.Marshal(stats); err == nil {
			_ = c.Set(r.Context(), key, b, statsCacheTTL)
		}

		response.JSON(w, stats)
	}
}
