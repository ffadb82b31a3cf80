package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/clipforge/vidqueue/internal/cache"
	"github.com/clipforge/vidqueue/internal/metrics"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/google/uuid"
)

// ErrInvalidEventStatus is returned for completion events whose status is
// neither completed nor failed.
var ErrInvalidEventStatus = errors.New("invalid completion event status")

// CompletionEvent is the analyzer's asynchronous outcome report, delivered
// either through the HTTP callback endpoint or the AMQP completion queue.
type CompletionEvent struct {
	VideoID       uuid.UUID `json:"video_id"`
	Status        string    `json:"status"`
	ErrorMessage  string    `json:"error_message,omitempty"`
	SegmentsCount int       `json:"segments_count,omitempty"`
}

// StatusUpdater moves jobs to terminal states in response to analyzer
// completion signals. Terminal states are absorbing: applying an event to an
// already-terminal job is a no-op.
type StatusUpdater struct {
	store   store.Store
	cache   cache.Cache
	metrics *metrics.Metrics
}

// NewStatusUpdater creates a StatusUpdater.
func NewStatusUpdater(s store.Store, c cache.Cache, m *metrics.Metrics) *StatusUpdater {
	return &StatusUpdater{store: s, cache: c, metrics: m}
}

// Apply records a completion event against the job store. Returns
// store.ErrNotFound when no job exists for the video, and
// ErrInvalidEventStatus for unrecognized statuses.
func (u *StatusUpdater) Apply(ctx context.Context, ev CompletionEvent) error {
	switch ev.Status {
	case models.JobStatusCompleted:
		if err := u.store.CompleteJobByVideoID(ctx, ev.VideoID, ev.SegmentsCount); err != nil {
			return fmt.Errorf("complete job for video %s: %w", ev.VideoID, err)
		}
		u.metrics.JobsCompleted.Inc()
		slog.Info("analysis completed", "video_id", ev.VideoID, "segments", ev.SegmentsCount)

	case models.JobStatusFailed:
		msg := ev.ErrorMessage
		if msg == "" {
			msg = "analysis failed"
		}
		// Processing-level failures are terminal immediately; the retry
		// budget covers invocation failures only.
		if err := u.store.FailJobByVideoID(ctx, ev.VideoID, msg); err != nil {
			return fmt.Errorf("fail job for video %s: %w", ev.VideoID, err)
		}
		u.metrics.JobsFailed.Inc()
		slog.Info("analysis failed", "video_id", ev.VideoID, "error", msg)

	default:
		return fmt.Errorf("%w: %q", ErrInvalidEventStatus, ev.Status)
	}

	if err := u.cache.Delete(ctx, cache.JobStatusKey(ev.VideoID)); err != nil {
		slog.Warn("invalidate status cache", "video_id", ev.VideoID, "error", err)
	}
	return nil
}
