// Package queue implements the video-analysis queue core: the dispatcher that
// advances queued jobs under a concurrency cap, and the status updater that
// applies analyzer completion signals.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/clipforge/vidqueue/internal/analyzer"
	"github.com/clipforge/vidqueue/internal/cache"
	"github.com/clipforge/vidqueue/internal/metrics"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/google/uuid"
)

const triggerSource = "queue_processor"

// Config tunes a Dispatcher.
type Config struct {
	// MaxConcurrent caps the number of jobs in processing at once.
	MaxConcurrent int
	// DispatchDelay is a courtesy pause between analyzer invocations within
	// one tick, so a burst of claims does not hammer the function endpoint.
	DispatchDelay time.Duration
	// StuckJobTimeout makes jobs processing longer than this eligible for
	// forced retry or failure. Zero disables the sweep.
	StuckJobTimeout time.Duration
}

// Dispatcher advances the analysis queue one bounded batch at a time. It holds
// no state across ticks; everything is derived from the job store, so a crash
// between ticks loses nothing.
type Dispatcher struct {
	store    store.Store
	analyzer analyzer.Client
	cache    cache.Cache
	metrics  *metrics.Metrics
	cfg      Config
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(s store.Store, a analyzer.Client, c cache.Cache, m *metrics.Metrics, cfg Config) *Dispatcher {
	return &Dispatcher{store: s, analyzer: a, cache: c, metrics: m, cfg: cfg}
}

// DispatchError records one job the tick could not hand to the analyzer.
type DispatchError struct {
	VideoID uuid.UUID `json:"video_id"`
	Error   string    `json:"error"`
}

// TickReport summarizes one dispatcher tick. Partial failures are reported
// in-band; a tick only errors as a whole when the store is unreachable.
type TickReport struct {
	Processed       int                `json:"processed"`
	Errors          int                `json:"errors"`
	ProcessedVideos []uuid.UUID        `json:"processed_videos"`
	ErrorDetails    []DispatchError    `json:"errors_detail"`
	Stats           *models.QueueStats `json:"queue_stats,omitempty"`
}

// Tick performs one dispatcher invocation: sweep stuck jobs, claim queued jobs
// up to the free capacity, and invoke the analyzer for each claimed job in
// FIFO order.
func (d *Dispatcher) Tick(ctx context.Context) (*TickReport, error) {
	start := time.Now()
	report := &TickReport{
		ProcessedVideos: []uuid.UUID{},
		ErrorDetails:    []DispatchError{},
	}

	d.sweepStuck(ctx, report)

	claimed, err := d.store.ClaimQueuedJobs(ctx, d.cfg.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("claim queued jobs: %w", err)
	}

	slog.Info("dispatcher tick", "claimed", len(claimed))

	for i, job := range claimed {
		if i > 0 && d.cfg.DispatchDelay > 0 {
			time.Sleep(d.cfg.DispatchDelay)
		}

		d.metrics.JobsDispatched.Inc()
		if err := d.invoke(ctx, job); err != nil {
			slog.Error("analyzer invocation failed",
				"video_id", job.VideoID, "retry_count", job.RetryCount, "error", err)
			d.retryOrFail(ctx, job, fmt.Sprintf("analyzer invocation failed: %v", err))
			report.Errors++
			report.ErrorDetails = append(report.ErrorDetails, DispatchError{
				VideoID: job.VideoID,
				Error:   err.Error(),
			})
			continue
		}

		slog.Info("analyzer invoked", "video_id", job.VideoID)
		report.Processed++
		report.ProcessedVideos = append(report.ProcessedVideos, job.VideoID)
		d.invalidateStatus(ctx, job.VideoID)
	}

	if stats, err := d.store.QueueStats(ctx); err != nil {
		slog.Error("queue stats unavailable", "error", err)
	} else {
		report.Stats = stats
		d.metrics.JobsQueued.Set(float64(stats.QueuedCount))
		d.metrics.JobsProcessing.Set(float64(stats.ProcessingCount))
	}

	d.metrics.TickDuration.Observe(time.Since(start).Seconds())
	return report, nil
}

// invoke builds the analyzer payload for one claimed job and calls the
// function endpoint. Missing storyboard content is not an error.
func (d *Dispatcher) invoke(ctx context.Context, job *models.AnalysisJob) error {
	storyboard, hasStoryboard, err := d.store.GetStoryboardContent(ctx, job.ProjectID)
	if err != nil {
		slog.Error("storyboard lookup failed, invoking without context",
			"project_id", job.ProjectID, "error", err)
		storyboard, hasStoryboard = "", false
	}

	return d.analyzer.Invoke(ctx, analyzer.InvokeRequest{
		VideoID:           job.VideoID,
		ProjectID:         job.ProjectID,
		StoryboardContent: storyboard,
		HasStoryboard:     hasStoryboard,
		TriggerSource:     triggerSource,
		RetryCount:        job.RetryCount,
	})
}

// retryOrFail applies the bounded retry policy to a processing job: requeue
// while retries remain, otherwise fail terminally. The job keeps its original
// queue position on requeue, so a retried job re-enters at the head.
func (d *Dispatcher) retryOrFail(ctx context.Context, job *models.AnalysisJob, reason string) {
	if job.RetryCount >= job.MaxRetries {
		msg := fmt.Sprintf("%s (after %d attempts)", reason, job.RetryCount+1)
		if err := d.store.FailJob(ctx, job.ID, msg); err != nil {
			slog.Error("mark job failed", "job_id", job.ID, "error", err)
			return
		}
		d.metrics.JobsFailed.Inc()
	} else {
		msg := fmt.Sprintf("%s, will retry", reason)
		if err := d.store.RequeueJob(ctx, job.ID, msg); err != nil {
			slog.Error("requeue job", "job_id", job.ID, "error", err)
			return
		}
		d.metrics.JobsRequeued.Inc()
	}
	d.invalidateStatus(ctx, job.VideoID)
}

// sweepStuck forces jobs that have been processing past the configured ceiling
// through the same bounded retry path as invocation failures.
func (d *Dispatcher) sweepStuck(ctx context.Context, report *TickReport) {
	if d.cfg.StuckJobTimeout <= 0 {
		return
	}

	stuck, err := d.store.ListStuckJobs(ctx, d.cfg.StuckJobTimeout)
	if err != nil {
		slog.Error("list stuck jobs", "error", err)
		return
	}

	for _, job := range stuck {
		slog.Warn("job stuck in processing",
			"video_id", job.VideoID, "started_at", job.ProcessingStartedAt)
		reason := fmt.Sprintf("processing exceeded %s without completion", d.cfg.StuckJobTimeout)
		d.retryOrFail(ctx, job, reason)
		report.Errors++
		report.ErrorDetails = append(report.ErrorDetails, DispatchError{
			VideoID: job.VideoID,
			Error:   reason,
		})
	}
}

func (d *Dispatcher) invalidateStatus(ctx context.Context, videoID uuid.UUID) {
	if err := d.cache.Delete(ctx, cache.JobStatusKey(videoID)); err != nil {
		slog.Warn("invalidate status cache", "video_id", videoID, "error", err)
	}
}
