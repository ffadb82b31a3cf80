package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mw "github.com/clipforge/vidqueue/internal/api/middleware"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// --- mock store ---

// mockStore implements store.Store with overridable function fields. Methods
// without an override return store.ErrNotFound or an empty result.
type mockStore struct {
	getVideoFn     func(videoID, userID uuid.UUID) (*models.Video, error)
	enqueueFn      func(videoID, projectID, userID uuid.UUID, maxRetries int) (*models.AnalysisJob, error)
	getJobFn       func(videoID uuid.UUID) (*models.AnalysisJob, error)
	listFailedFn   func(userID uuid.UUID, videoIDs []uuid.UUID) ([]*models.AnalysisJob, error)
	statsForUserFn func(userID uuid.UUID) (*models.QueueStats, error)
}

func (m *mockStore) Ping(context.Context) error { return nil }

func (m *mockStore) GetVideoForUser(_ context.Context, videoID, userID uuid.UUID) (*models.Video, error) {
	if m.getVideoFn != nil {
		return m.getVideoFn(videoID, userID)
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) GetStoryboardContent(context.Context, uuid.UUID) (string, bool, error) {
	return "", false, nil
}

func (m *mockStore) EnqueueJob(_ context.Context, videoID, projectID, userID uuid.UUID, maxRetries int) (*models.AnalysisJob, error) {
	if m.enqueueFn != nil {
		return m.enqueueFn(videoID, projectID, userID, maxRetries)
	}
	return nil, errors.New("enqueue not configured")
}

func (m *mockStore) GetJobByVideoID(_ context.Context, videoID uuid.UUID) (*models.AnalysisJob, error) {
	if m.getJobFn != nil {
		return m.getJobFn(videoID)
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ClaimQueuedJobs(context.Context, int) ([]*models.AnalysisJob, error) {
	return nil, nil
}

func (m *mockStore) RequeueJob(context.Context, uuid.UUID, string) error { return nil }
func (m *mockStore) FailJob(context.Context, uuid.UUID, string) error   { return nil }

func (m *mockStore) CompleteJobByVideoID(context.Context, uuid.UUID, int) error { return nil }
func (m *mockStore) FailJobByVideoID(context.Context, uuid.UUID, string) error  { return nil }

func (m *mockStore) ListStuckJobs(context.Context, time.Duration) ([]*models.AnalysisJob, error) {
	return nil, nil
}

func (m *mockStore) ListFailedJobsByVideoIDs(_ context.Context, userID uuid.UUID, videoIDs []uuid.UUID) ([]*models.AnalysisJob, error) {
	if m.listFailedFn != nil {
		return m.listFailedFn(userID, videoIDs)
	}
	return nil, nil
}

func (m *mockStore) QueueStats(context.Context) (*models.QueueStats, error) {
	return &models.QueueStats{}, nil
}

func (m *mockStore) QueueStatsForUser(_ context.Context, userID uuid.UUID) (*models.QueueStats, error) {
	if m.statsForUserFn != nil {
		return m.statsForUserFn(userID)
	}
	return &models.QueueStats{}, nil
}

var _ store.Store = (*mockStore)(nil)

// --- mock cache ---

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
	getErr  error
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	c.deleted = append(c.deleted, key)
	return nil
}

func (c *memCache) Ping(context.Context) error { return nil }

func (c *memCache) IncrWithExpiry(context.Context, string, time.Duration) (int64, error) {
	return 1, nil
}

// --- helpers ---

func authedReq(t *testing.T, method, target string, body any, userID uuid.UUID) *http.Request {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, target, rd)
	r.Header.Set("Content-Type", "application/json")
	return r.WithContext(mw.SetUserID(r.Context(), userID))
}

// serve routes the request through a chi router so URL params resolve.
func serve(pattern string, h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Method(r.Method, pattern, h)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, r)
	return rec
}

func parseData(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int) map[string]any {
	t.Helper()
	if rec.Code != wantStatus {
		t.Fatalf("expected %d, got %d: %s", wantStatus, rec.Code, rec.Body.String())
	}
	var env struct {
		Data map[string]any `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return env.Data
}

func parseErrCode(t *testing.T, rec *httptest.ResponseRecorder) (int, string) {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rec.Code, env.Error.Code
}

func strptr(s string) *string { return &s }
