package models

// QueueStats is an aggregate snapshot of the analysis queue, either global
// (dispatcher report) or scoped to a single user (stats endpoint).
type QueueStats struct {
	QueuedCount          int      `json:"queued_count"`
	ProcessingCount      int      `json:"processing_count"`
	CompletedToday       int      `json:"completed_today"`
	FailedToday          int      `json:"failed_today"`
	AvgProcessingSeconds *float64 `json:"avg_processing_time,omitempty"`
}
