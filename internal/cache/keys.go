package cache

import (
	"fmt"

	"github.com/google/uuid"
)

// JobStatusKey caches the rendered status response for a video. Invalidated
// on every status transition so UI polling stays fresh.
func JobStatusKey(videoID uuid.UUID) string {
	return fmt.Sprintf("analysis:status:%s", videoID)
}

func QueueStatsKey(userID uuid.UUID) string {
	return fmt.Sprintf("queue:stats:%s", userID)
}

func RateLimitKey(userID uuid.UUID) string {
	return fmt.Sprintf("ratelimit:%s", userID)
}
