package store

import (
	"context"
	"errors"
	"time"

	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetVideoForUser(ctx context.Context, videoID uuid.UUID, userID uuid.UUID) (*models.Video, error)
	GetStoryboardContent(ctx context.Context, projectID uuid.UUID) (string, bool, error)

	// EnqueueJob creates a queued job for the video, or resets the existing
	// row back to queued with a fresh queue position and retry budget.
	EnqueueJob(ctx context.Context, videoID, projectID, userID uuid.UUID, maxRetries int) (*models.AnalysisJob, error)
	GetJobByVideoID(ctx context.Context, videoID uuid.UUID) (*models.AnalysisJob, error)

	// ClaimQueuedJobs atomically moves up to (maxConcurrent - currently
	// processing) queued jobs to processing, in ascending queue_position
	// order, and returns the claimed rows. Concurrent callers never claim
	// the same job and the processing count never exceeds maxConcurrent.
	ClaimQueuedJobs(ctx context.Context, maxConcurrent int) ([]*models.AnalysisJob, error)

	// RequeueJob puts a processing job back in the queue for another attempt,
	// incrementing retry_count. The original queue position is kept.
	RequeueJob(ctx context.Context, id uuid.UUID, errorMessage string) error
	// FailJob moves a processing job to the terminal failed state.
	FailJob(ctx context.Context, id uuid.UUID, errorMessage string) error

	// CompleteJobByVideoID and FailJobByVideoID apply analyzer completion
	// signals. Jobs already in a terminal state are left untouched.
	CompleteJobByVideoID(ctx context.Context, videoID uuid.UUID, segmentsCount int) error
	FailJobByVideoID(ctx context.Context, videoID uuid.UUID, errorMessage string) error

	// ListStuckJobs returns processing jobs whose dispatch started more than
	// olderThan ago and that never reported completion.
	ListStuckJobs(ctx context.Context, olderThan time.Duration) ([]*models.AnalysisJob, error)
	ListFailedJobsByVideoIDs(ctx context.Context, userID uuid.UUID, videoIDs []uuid.UUID) ([]*models.AnalysisJob, error)

	QueueStats(ctx context.Context) (*models.QueueStats, error)
	QueueStatsForUser(ctx context.Context, userID uuid.UUID) (*models.QueueStats, error)
}
