// Package api exposes the job service over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/metrics"
	"github.com/book-expert/tts-job-service/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const contentTypeMP3 = "audio/mpeg"

// Rejection reasons reported to metrics.
const (
	rejectInvalid   = "invalid"
	rejectDuplicate = "duplicate"
	rejectTooLong   = "too_long"
	rejectClosed    = "shutting_down"
)

// Submitter registers and enqueues jobs.
type Submitter interface {
	Submit(id, text, voice string, opts *core.SynthesisOptions) (core.Job, error)
}

// JobReader answers status and result queries.
type JobReader interface {
	Status(id string) (core.Job, error)
	FetchResult(ctx context.Context, id string) (string, error)
	Counts() map[core.JobState]int
}

// VoiceLister lists the voice catalog.
type VoiceLister interface {
	Keys() []string
	DefaultVoice() string
}

// SynthesizeRequest is the body of POST /synthesize.
type SynthesizeRequest struct {
	JobID   string                 `json:"jobId"`
	Text    string                 `json:"text"`
	Voice   string                 `json:"voice,omitempty"`
	Options *core.SynthesisOptions `json:"options,omitempty"`
}

// JobResponse is the short job state returned by submit and pending downloads.
type JobResponse struct {
	JobID  string        `json:"jobId"`
	Status core.JobState `json:"status"`
}

// ErrorResponse carries a short cause string.
type ErrorResponse struct {
	Error  string        `json:"error"`
	Status core.JobState `json:"status,omitempty"`
}

// Handler serves the HTTP endpoints.
type Handler struct {
	submitter    Submitter
	jobs         JobReader
	store        core.ArtifactStore
	voices       VoiceLister
	metrics      *metrics.Metrics
	maxTextChars int
	log          *logger.Logger
}

// NewHandler creates a Handler. maxTextChars of zero disables the length check.
func NewHandler(
	submitter Submitter,
	jobs JobReader,
	store core.ArtifactStore,
	voices VoiceLister,
	m *metrics.Metrics,
	maxTextChars int,
	log *logger.Logger,
) *Handler {
	return &Handler{
		submitter:    submitter,
		jobs:         jobs,
		store:        store,
		voices:       voices,
		metrics:      m,
		maxTextChars: maxTextChars,
		log:          log,
	}
}

// NewRouter builds the gin engine with all routes. gatherer backs /metrics.
func NewRouter(handler *Handler, gatherer prometheus.Gatherer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), handler.requestLogger())

	router.POST("/synthesize", handler.Synthesize)
	router.GET("/download/:jobId", handler.Download)
	router.GET("/status/:jobId", handler.Status)
	router.GET("/voices", handler.Voices)
	router.GET("/health", handler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return router
}

// Synthesize accepts a job and answers immediately with its queued state.
func (h *Handler) Synthesize(c *gin.Context) {
	var req SynthesizeRequest

	err := c.ShouldBindJSON(&req)
	if err != nil {
		h.reject(c, http.StatusBadRequest, rejectInvalid, fmt.Sprintf("invalid request body: %v", err))

		return
	}

	if strings.TrimSpace(req.JobID) == "" || strings.TrimSpace(req.Text) == "" {
		h.reject(c, http.StatusBadRequest, rejectInvalid, "jobId and text are required")

		return
	}

	if h.maxTextChars > 0 && utf8.RuneCountInString(req.Text) > h.maxTextChars {
		h.reject(c, http.StatusBadRequest, rejectTooLong,
			fmt.Sprintf("text exceeds %d characters", h.maxTextChars))

		return
	}

	job, err := h.submitter.Submit(req.JobID, req.Text, req.Voice, req.Options)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrDuplicateJob):
			h.reject(c, http.StatusBadRequest, rejectDuplicate, err.Error())
		case errors.Is(err, worker.ErrPoolClosed):
			h.reject(c, http.StatusServiceUnavailable, rejectClosed, err.Error())
		default:
			h.reject(c, http.StatusBadRequest, rejectInvalid, err.Error())
		}

		return
	}

	c.JSON(http.StatusOK, JobResponse{JobID: job.ID, Status: job.State})
}

// Download streams the finished artifact.
func (h *Handler) Download(c *gin.Context) {
	jobID := c.Param("jobId")

	location, err := h.jobs.FetchResult(c.Request.Context(), jobID)
	if err != nil {
		h.writeResultError(c, jobID, err)

		return
	}

	reader, err := h.store.Open(c.Request.Context(), location)
	if err != nil {
		h.log.Error("Failed to open artifact of job %s: %v", jobID, err)
		c.JSON(http.StatusNotFound, ErrorResponse{Error: core.ErrResultMissing.Error(), Status: ""})

		return
	}
	defer reader.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": jobID + ".mp3"})
	c.DataFromReader(http.StatusOK, -1, contentTypeMP3, reader, map[string]string{
		"Content-Disposition": disposition,
	})
}

// Status returns the job snapshot.
func (h *Handler) Status(c *gin.Context) {
	job, err := h.jobs.Status(c.Param("jobId"))
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Status: ""})

		return
	}

	c.JSON(http.StatusOK, job)
}

// Voices lists the catalog.
func (h *Handler) Voices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"voices":  h.voices.Keys(),
		"default": h.voices.DefaultVoice(),
	})
}

// Health reports liveness and the number of jobs per state.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"jobs":   h.jobs.Counts(),
	})
}

func (h *Handler) writeResultError(c *gin.Context, jobID string, err error) {
	var (
		notReady *core.JobNotReadyError
		failed   *core.JobFailedError
	)

	switch {
	case errors.As(err, &notReady):
		c.JSON(http.StatusAccepted, JobResponse{JobID: jobID, Status: notReady.State})
	case errors.As(err, &failed):
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: failed.Message, Status: core.JobStateFailed})
	case errors.Is(err, core.ErrJobNotFound), errors.Is(err, core.ErrResultMissing):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Status: ""})
	default:
		h.log.Error("Failed to fetch result of job %s: %v", jobID, err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to fetch result", Status: ""})
	}
}

func (h *Handler) reject(c *gin.Context, status int, reason, message string) {
	h.metrics.JobRejected(reason)
	c.JSON(status, ErrorResponse{Error: message, Status: ""})
}

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()

		c.Next()

		h.log.Info("%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(started))
	}
}
