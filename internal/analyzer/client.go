// Package analyzer invokes the external video-analysis function.
//
// The invocation only hands the job to the analyzer; the analyzer reports its
// actual outcome later through the completion callback or an AMQP event.
// An error here therefore always means an invocation-level failure.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for analyzer invocation failures.
var (
	ErrUnreachable = errors.New("analyzer unreachable")
	ErrTimeout     = errors.New("analyzer invocation timeout")
	ErrRejected    = errors.New("analyzer rejected invocation")
)

// InvokeRequest is the payload sent to the analysis function.
type InvokeRequest struct {
	VideoID           uuid.UUID `json:"video_id"`
	ProjectID         uuid.UUID `json:"project_id"`
	AdditionalContext string    `json:"additional_context"`
	StoryboardContent string    `json:"storyboard_content"`
	HasStoryboard     bool      `json:"has_storyboard"`
	TriggerSource     string    `json:"trigger_source"`
	RetryCount        int       `json:"retry_count"`
}

// Client is the interface for invoking the analysis function.
type Client interface {
	Invoke(ctx context.Context, req InvokeRequest) error
}

// HTTPClient implements Client against an HTTP-triggered function URL.
type HTTPClient struct {
	functionURL string
	client      *http.Client
}

// NewHTTPClient creates a new analyzer HTTP client.
func NewHTTPClient(functionURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		functionURL: functionURL,
		client:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Invoke(ctx context.Context, req InvokeRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal invoke payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.functionURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return classifyError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, detail)
	}

	return nil
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}

// Compile-time check that HTTPClient implements Client.
var _ Client = (*HTTPClient)(nil)
