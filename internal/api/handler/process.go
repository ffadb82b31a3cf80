// Package handler contains the HTTP handlers for the analysis queue API.
package handler

import (
	"context"
	"net/http"

	"github.com/clipforge/vidqueue/internal/api/response"
	"github.com/clipforge/vidqueue/internal/queue"
	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/google/uuid"
)

// QueueTicker defines the interface the trigger handler depends on.
type QueueTicker interface {
	Tick(ctx context.Context) (*queue.TickReport, error)
}

// NewProcessQueueHandler returns the handler for the scheduler trigger
// endpoint. One call runs one dispatcher tick; partial failures are reported
// in the body, not via the status code.
func NewProcessQueueHandler(d QueueTicker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := d.Tick(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "QUEUE_TICK_FAILED",
				"Failed to process the analysis queue", nil)
			return
		}

		response.JSON(w, processQueueResponse{
			Success:   true,
			Processed: report.Processed,
			Errors:    report.Errors,
			Details: processQueueDetails{
				ProcessedVideos: report.ProcessedVideos,
				Errors:          report.ErrorDetails,
			},
			QueueStats: report.Stats,
		})
	}
}

type processQueueResponse struct {
	Success    bool                `json:"success"`
	Processed  int                 `json:"processed"`
	Errors     int                 `json:"errors"`
	Details    processQueueDetails `json:"details"`
	QueueStats *models.QueueStats  `json:"queue_stats,omitempty"`
}

type processQueueDetails struct {
	ProcessedVideos []uuid.UUID           `json:"processed_videos"`
	Errors          []queue.DispatchError `json:"errors"`
}
