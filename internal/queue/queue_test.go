package queue_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/clipforge/vidqueue/internal/analyzer"
	"github.com/clipforge/vidqueue/internal/metrics"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/google/uuid"
)

// fakeStore is an in-memory Store implementation for dispatcher and updater
// tests. It mirrors the Postgres implementation's semantics: FIFO claims,
// capacity-bounded processing, and absorbing terminal states.
type fakeStore struct {
	mu           sync.Mutex
	jobs         map[uuid.UUID]*models.AnalysisJob
	storyboards  map[uuid.UUID]string
	nextPosition int64

	claimErr error
	statsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:        make(map[uuid.UUID]*models.AnalysisJob),
		storyboards: make(map[uuid.UUID]string),
	}
}

// addQueued inserts a queued job at the next queue position and returns it.
func (f *fakeStore) addQueued(maxRetries int) *models.AnalysisJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextPosition++
	job := &models.AnalysisJob{
		ID:            uuid.New(),
		VideoID:       uuid.New(),
		ProjectID:     uuid.New(),
		UserID:        uuid.New(),
		Status:        models.JobStatusQueued,
		QueuePosition: f.nextPosition,
		MaxRetries:    maxRetries,
		QueuedAt:      time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	f.jobs[job.ID] = job
	return job
}

func (f *fakeStore) get(id uuid.UUID) *models.AnalysisJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := *f.jobs[id]
	return &j
}

func (f *fakeStore) Ping(context.Context) error { return nil }

func (f *fakeStore) GetVideoForUser(_ context.Context, videoID, _ uuid.UUID) (*models.Video, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) GetStoryboardContent(_ context.Context, projectID uuid.UUID) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.storyboards[projectID]
	return content, ok, nil
}

func (f *fakeStore) EnqueueJob(_ context.Context, videoID, projectID, userID uuid.UUID, maxRetries int) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.VideoID == videoID {
			f.nextPosition++
			j.Status = models.JobStatusQueued
			j.QueuePosition = f.nextPosition
			j.RetryCount = 0
			j.MaxRetries = maxRetries
			j.ErrorMessage = nil
			j.ProcessingStartedAt = nil
			j.ProcessingCompletedAt = nil
			out := *j
			return &out, nil
		}
	}
	f.nextPosition++
	job := &models.AnalysisJob{
		ID:            uuid.New(),
		VideoID:       videoID,
		ProjectID:     projectID,
		UserID:        userID,
		Status:        models.JobStatusQueued,
		QueuePosition: f.nextPosition,
		MaxRetries:    maxRetries,
	}
	f.jobs[job.ID] = job
	out := *job
	return &out, nil
}

func (f *fakeStore) GetJobByVideoID(_ context.Context, videoID uuid.UUID) (*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.VideoID == videoID {
			out := *j
			return &out, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) ClaimQueuedJobs(_ context.Context, maxConcurrent int) ([]*models.AnalysisJob, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	processing := 0
	var queued []*models.AnalysisJob
	for _, j := range f.jobs {
		switch j.Status {
		case models.JobStatusProcessing:
			processing++
		case models.JobStatusQueued:
			queued = append(queued, j)
		}
	}

	slots := maxConcurrent - processing
	if slots <= 0 {
		return nil, nil
	}
	sort.Slice(queued, func(i, j int) bool {
		return queued[i].QueuePosition < queued[j].QueuePosition
	})
	if len(queued) > slots {
		queued = queued[:slots]
	}

	now := time.Now().UTC()
	var claimed []*models.AnalysisJob
	for _, j := range queued {
		j.Status = models.JobStatusProcessing
		started := now
		j.ProcessingStartedAt = &started
		out := *j
		claimed = append(claimed, &out)
	}
	return claimed, nil
}

func (f *fakeStore) RequeueJob(_ context.Context, id uuid.UUID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != models.JobStatusProcessing {
		return store.ErrNotFound
	}
	j.Status = models.JobStatusQueued
	j.RetryCount++
	j.ErrorMessage = &errorMessage
	return nil
}

func (f *fakeStore) FailJob(_ context.Context, id uuid.UUID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != models.JobStatusProcessing {
		return store.ErrNotFound
	}
	now := time.Now().UTC()
	j.Status = models.JobStatusFailed
	j.ErrorMessage = &errorMessage
	j.ProcessingCompletedAt = &now
	return nil
}

func (f *fakeStore) CompleteJobByVideoID(_ context.Context, videoID uuid.UUID, segmentsCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.VideoID != videoID {
			continue
		}
		if j.Terminal() {
			return nil
		}
		now := time.Now().UTC()
		j.Status = models.JobStatusCompleted
		j.SegmentsCount = segmentsCount
		j.ErrorMessage = nil
		j.ProcessingCompletedAt = &now
		return nil
	}
	return store.ErrNotFound
}

func (f *fakeStore) FailJobByVideoID(_ context.Context, videoID uuid.UUID, errorMessage string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.VideoID != videoID {
			continue
		}
		if j.Terminal() {
			return nil
		}
		now := time.Now().UTC()
		j.Status = models.JobStatusFailed
		j.ErrorMessage = &errorMessage
		j.ProcessingCompletedAt = &now
		return nil
	}
	return store.ErrNotFound
}

func (f *fakeStore) ListStuckJobs(_ context.Context, olderThan time.Duration) ([]*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().UTC().Add(-olderThan)
	var stuck []*models.AnalysisJob
	for _, j := range f.jobs {
		if j.Status == models.JobStatusProcessing &&
			j.ProcessingStartedAt != nil && j.ProcessingStartedAt.Before(cutoff) {
			out := *j
			stuck = append(stuck, &out)
		}
	}
	return stuck, nil
}

func (f *fakeStore) ListFailedJobsByVideoIDs(_ context.Context, userID uuid.UUID, videoIDs []uuid.UUID) ([]*models.AnalysisJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(videoIDs))
	for _, id := range videoIDs {
		want[id] = true
	}
	var failed []*models.AnalysisJob
	for _, j := range f.jobs {
		if j.UserID == userID && j.Status == models.JobStatusFailed && want[j.VideoID] {
			out := *j
			failed = append(failed, &out)
		}
	}
	return failed, nil
}

func (f *fakeStore) QueueStats(context.Context) (*models.QueueStats, error) {
	if f.statsErr != nil {
		return nil, f.statsErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var st models.QueueStats
	for _, j := range f.jobs {
		switch j.Status {
		case models.JobStatusQueued:
			st.QueuedCount++
		case models.JobStatusProcessing:
			st.ProcessingCount++
		case models.JobStatusCompleted:
			st.CompletedToday++
		case models.JobStatusFailed:
			st.FailedToday++
		}
	}
	return &st, nil
}

func (f *fakeStore) QueueStatsForUser(ctx context.Context, _ uuid.UUID) (*models.QueueStats, error) {
	return f.QueueStats(ctx)
}

var _ store.Store = (*fakeStore)(nil)

// fakeAnalyzer records invocations and fails on configured video IDs.
type fakeAnalyzer struct {
	mu       sync.Mutex
	invoked  []analyzer.InvokeRequest
	failures map[uuid.UUID]error
	failAll  error
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{failures: make(map[uuid.UUID]error)}
}

func (a *fakeAnalyzer) Invoke(_ context.Context, req analyzer.InvokeRequest) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.invoked = append(a.invoked, req)
	if a.failAll != nil {
		return a.failAll
	}
	if err, ok := a.failures[req.VideoID]; ok {
		return err
	}
	return nil
}

func (a *fakeAnalyzer) invocations() []analyzer.InvokeRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]analyzer.InvokeRequest, len(a.invoked))
	copy(out, a.invoked)
	return out
}

var _ analyzer.Client = (*fakeAnalyzer)(nil)

// fakeCache is a no-op cache recording deleted keys.
type fakeCache struct {
	mu      sync.Mutex
	deleted []string
	data    map[string][]byte
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte)}
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *fakeCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *fakeCache) Ping(context.Context) error { return nil }

func (c *fakeCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

func newTestMetrics() *metrics.Metrics { return metrics.New() }

func errInvoke(msg string) error { return fmt.Errorf("invoke: %s", msg) }
