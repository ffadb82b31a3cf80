package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/clipforge/vidqueue/internal/queue"
	"github.com/clipforge/vidqueue/internal/store"
	"github.com/clipforge/vidqueue/pkg/models"
	"github.com/google/uuid"
)

type mockCompleter struct {
	applied []queue.CompletionEvent
	err     error
}

func (m *mockCompleter) Apply(_ context.Context, ev queue.CompletionEvent) error {
	m.applied = append(m.applied, ev)
	return m.err
}

func TestCompletionHandler_Completed(t *testing.T) {
	m := &mockCompleter{}
	h := NewCompletionHandler(m)
	videoID := uuid.New()

	body := map[string]any{
		"video_id":       videoID.String(),
		"status":         "completed",
		"segments_count": 11,
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(t, http.MethodPost, "/api/v1/internal/analysis-complete", body, uuid.New()))

	data := parseData(t, rec, http.StatusOK)
	if data["video_id"] != videoID.String() || data["status"] != "completed" {
		t.Errorf("unexpected response: %v", data)
	}

	if len(m.applied) != 1 {
		t.Fatalf("expected 1 applied event, got %d", len(m.applied))
	}
	ev := m.applied[0]
	if ev.VideoID != videoID || ev.Status != models.JobStatusCompleted || ev.SegmentsCount != 11 {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestCompletionHandler_Failed(t *testing.T) {
	m := &mockCompleter{}
	h := NewCompletionHandler(m)

	body := map[string]any{
		"video_id":      uuid.New().String(),
		"status":        "failed",
		"error_message": "ffmpeg exited with code 1",
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedReq(t, http.MethodPost, "/api/v1/internal/analysis-complete", body, uuid.New()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if m.applied[0].ErrorMessage != "ffmpeg exited with code 1" {
		t.Errorf("unexpected event: %+v", m.applied[0])
	}
}

func TestCompletionHandler_Errors(t *testing.T) {
	cases := []struct {
		name       string
		body       any
		applyErr   error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "invalid status",
			body:       map[string]any{"video_id": uuid.New().String(), "status": "done"},
			applyErr:   queue.ErrInvalidEventStatus,
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "unknown video",
			body:       map[string]any{"video_id": uuid.New().String(), "status": "completed"},
			applyErr:   store.ErrNotFound,
			wantStatus: http.StatusNotFound,
			wantCode:   "JOB_NOT_FOUND",
		},
		{
			name:       "store failure",
			body:       map[string]any{"video_id": uuid.New().String(), "status": "completed"},
			applyErr:   errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
		{
			name:       "missing video_id",
			body:       map[string]any{"status": "completed"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewCompletionHandler(&mockCompleter{err: tc.applyErr})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, authedReq(t, http.MethodPost, "/api/v1/internal/analysis-complete", tc.body, uuid.New()))

			status, code := parseErrCode(t, rec)
			if status != tc.wantStatus || code != tc.wantCode {
				t.Errorf("expected %d %s, got %d %s", tc.wantStatus, tc.wantCode, status, code)
			}
		})
	}
}

func TestCompletionHandler_InvalidJSON(t *testing.T) {
	h := NewCompletionHandler(&mockCompleter{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/analysis-complete", nil)
	h.ServeHTTP(rec, req)

	status, code := parseErrCode(t, rec)
	if status != http.StatusBadRequest || code != "INVALID_REQUEST" {
		t.Errorf("expected 400 INVALID_REQUEST, got %d %s", status, code)
	}
}
