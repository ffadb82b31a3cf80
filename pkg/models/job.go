package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// AnalysisJob tracks one unit of asynchronous video-analysis work. There is at
// most one job row per video; re-queueing a video resets its existing row.
// Clients poll GET /api/v1/videos/{videoID}/status until the job reaches a
// terminal state.
type AnalysisJob struct {
	ID                    uuid.UUID  `db:"id"                      json:"id"`
	VideoID               uuid.UUID  `db:"video_id"                json:"video_id"`
	ProjectID             uuid.UUID  `db:"project_id"              json:"project_id"`
	UserID                uuid.UUID  `db:"user_id"                 json:"user_id"`
	Status                string     `db:"status"                  json:"status"`
	QueuePosition         int64      `db:"queue_position"          json:"queue_position"`
	RetryCount            int        `db:"retry_count"             json:"retry_count"`
	MaxRetries            int        `db:"max_retries"             json:"max_retries"`
	SegmentsCount         int        `db:"segments_count"          json:"segments_count"`
	ErrorMessage          *string    `db:"error_message"           json:"error_message,omitempty"`
	QueuedAt              time.Time  `db:"queued_at"               json:"queued_at"`
	ProcessingStartedAt   *time.Time `db:"processing_started_at"   json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time `db:"processing_completed_at" json:"processing_completed_at,omitempty"`
	CreatedAt             time.Time  `db:"created_at"              json:"created_at"`
	UpdatedAt             time.Time  `db:"updated_at"              json:"updated_at"`
}

// Terminal reports whether the job is in an absorbing state.
func (j *AnalysisJob) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}
