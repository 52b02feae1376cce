// Package client provides an HTTP client for the TTS job service.
//
// The client mirrors the service's job lifecycle: submit a job, poll its
// status until it reaches a terminal state, then download the artifact.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/book-expert/tts-job-service/internal/core"
)

// API endpoints and paths.
const (
	apiSynthesize = "/synthesize"
	apiStatus     = "/status/"
	apiDownload   = "/download/"
	apiHealth     = "/health"
)

// HTTP headers.
const (
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeMP3    = "audio/mpeg"
)

// DefaultPollInterval is used by Wait when no interval is given.
const DefaultPollInterval = 500 * time.Millisecond

var (
	// ErrTextCannotBeEmpty indicates a submission without text.
	ErrTextCannotBeEmpty = errors.New("text cannot be empty")
	// ErrJobIDCannotBeEmpty indicates a submission without a job id.
	ErrJobIDCannotBeEmpty = errors.New("job id cannot be empty")
)

// HTTPClient represents a client for the TTS job service.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
}

// SynthesizeRequest defines the JSON payload of a job submission.
type SynthesizeRequest struct {
	// JobID is chosen by the caller and must be unique on the service.
	JobID string `json:"jobId"`

	// Text is the input to convert to speech. Must be non-empty.
	Text string `json:"text"`

	// Voice optionally selects a catalog voice; the service default is used
	// when empty.
	Voice string `json:"voice,omitempty"`

	// Options optionally overrides the engine defaults.
	Options *core.SynthesisOptions `json:"options,omitempty"`
}

// errorResponse is the structured error body returned by the service.
type errorResponse struct {
	Error  string        `json:"error"`
	Status core.JobState `json:"status"`
}

// jobResponse is the short state body returned by submit and pending downloads.
type jobResponse struct {
	JobID  string        `json:"jobId"`
	Status core.JobState `json:"status"`
}

// NewHTTPClient creates and configures a client for the service at baseURL
// (e.g. "http://localhost:3000"). The timeout applies to every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Submit sends a job and returns the state the service reports, normally queued.
// A duplicate job id is reported as core.ErrDuplicateJob.
func (c *HTTPClient) Submit(ctx context.Context, req SynthesizeRequest) (core.JobState, error) {
	if req.JobID == "" {
		return "", ErrJobIDCannotBeEmpty
	}

	if req.Text == "" {
		return "", ErrTextCannotBeEmpty
	}

	requestBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+apiSynthesize,
		bytes.NewReader(requestBody),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set(headerContentType, contentTypeJSON)
	httpReq.Header.Set(headerAccept, contentTypeJSON)

	resp, err := c.do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseErrorResponse(resp, req.JobID)
	}

	var job jobResponse

	err = json.NewDecoder(resp.Body).Decode(&job)
	if err != nil {
		return "", fmt.Errorf("failed to decode submit response: %w", err)
	}

	return job.Status, nil
}

// Status fetches the job snapshot.
func (c *HTTPClient) Status(ctx context.Context, jobID string) (core.Job, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(apiStatus, jobID), http.NoBody)
	if err != nil {
		return core.Job{}, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := c.do(httpReq)
	if err != nil {
		return core.Job{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.Job{}, parseErrorResponse(resp, jobID)
	}

	var job core.Job

	err = json.NewDecoder(resp.Body).Decode(&job)
	if err != nil {
		return core.Job{}, fmt.Errorf("failed to decode status response: %w", err)
	}

	return job, nil
}

// Wait polls Status until the job is done or failed, or ctx ends.
func (c *HTTPClient) Wait(ctx context.Context, jobID string, interval time.Duration) (core.Job, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.Status(ctx, jobID)
		if err != nil {
			return core.Job{}, err
		}

		if job.State.IsTerminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, fmt.Errorf("stopped waiting for job %s in state %s: %w", jobID, job.State, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Download writes the finished artifact to w and returns the number of bytes.
// A pending job yields *core.JobNotReadyError and a failed job
// *core.JobFailedError.
func (c *HTTPClient) Download(ctx context.Context, jobID string, w io.Writer) (int64, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.jobURL(apiDownload, jobID), http.NoBody)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}

	httpReq.Header.Set(headerAccept, contentTypeMP3)

	resp, err := c.do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, parseErrorResponse(resp, jobID)
	}

	written, err := io.Copy(w, resp.Body)
	if err != nil {
		return written, fmt.Errorf("failed to read audio data: %w", err)
	}

	return written, nil
}

// HealthCheck verifies that the service is running.
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+apiHealth, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed with status: %s", resp.Status)
	}

	return nil
}

func (c *HTTPClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service at %s: %w", c.baseURL, err)
	}

	return resp, nil
}

func (c *HTTPClient) jobURL(prefix, jobID string) string {
	return c.baseURL + prefix + url.PathEscape(jobID)
}

// parseErrorResponse maps a non-OK response onto the core error taxonomy.
// Bodies that are not JSON are kept verbatim in the error.
func parseErrorResponse(resp *http.Response, jobID string) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp errorResponse

	decodeErr := json.Unmarshal(body, &errResp)

	switch {
	case resp.StatusCode == http.StatusAccepted:
		var pending jobResponse
		_ = json.Unmarshal(body, &pending)

		return &core.JobNotReadyError{State: pending.Status}
	case decodeErr != nil:
		return fmt.Errorf("TTS service returned non-OK status: %s, body: %s", resp.Status, string(body))
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: '%s': %s", core.ErrJobNotFound, jobID, errResp.Error)
	case resp.StatusCode == http.StatusInternalServerError && errResp.Status == core.JobStateFailed:
		return &core.JobFailedError{Message: errResp.Error}
	case resp.StatusCode == http.StatusBadRequest && bytes.Contains(body, []byte(core.ErrDuplicateJob.Error())):
		return fmt.Errorf("%w: '%s'", core.ErrDuplicateJob, jobID)
	default:
		return fmt.Errorf("TTS service error (%s): %s", resp.Status, errResp.Error)
	}
}
