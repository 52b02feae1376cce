package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/api"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/jobs"
	"github.com/book-expert/tts-job-service/internal/metrics"
	"github.com/book-expert/tts-job-service/internal/objectstore"
	"github.com/book-expert/tts-job-service/internal/voices"
	"github.com/book-expert/tts-job-service/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// registrySubmitter registers jobs without running them so tests can drive
// the state machine directly.
type registrySubmitter struct {
	registry *jobs.Registry
	closed   bool
}

func (r *registrySubmitter) Submit(id, text, voice string, opts *core.SynthesisOptions) (core.Job, error) {
	if r.closed {
		return core.Job{}, worker.ErrPoolClosed
	}

	return r.registry.Submit(id, text, voice, opts)
}

type apiFixture struct {
	router    *gin.Engine
	registry  *jobs.Registry
	store     *objectstore.DirStore
	submitter *registrySubmitter
}

func newAPIFixture(t *testing.T, maxTextChars int) apiFixture {
	t.Helper()

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	store, err := objectstore.NewDir(t.TempDir())
	require.NoError(t, err)

	catalog, err := voices.New([]string{"en_US-lessac-high", "en_GB-alan-low"}, t.TempDir(), "", "")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	registry := jobs.NewRegistry(store)
	submitter := &registrySubmitter{registry: registry, closed: false}

	handler := api.NewHandler(submitter, registry, store, catalog, metrics.New(reg), maxTextChars, testLogger)

	return apiFixture{
		router:    api.NewRouter(handler, reg),
		registry:  registry,
		store:     store,
		submitter: submitter,
	}
}

func (f apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequestWithContext(context.Background(), method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	recorder := httptest.NewRecorder()
	f.router.ServeHTTP(recorder, req)

	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))

	return body
}

func (f apiFixture) finish(t *testing.T, id string, artifact string) {
	t.Helper()

	_, err := f.registry.MarkProcessing(id)
	require.NoError(t, err)

	work := filepath.Join(t.TempDir(), "work.mp3")
	require.NoError(t, os.WriteFile(work, []byte(artifact), 0o600))

	location, err := f.store.Put(context.Background(), id, work)
	require.NoError(t, err)

	_, err = f.registry.MarkDone(id, location)
	require.NoError(t, err)
}

func TestSynthesize_Queued(t *testing.T) {
	t.Parallel()

	fixture := newAPIFixture(t, 0)

	recorder := fixture.do(t, http.MethodPost, "/synthesize",
		`{"jobId":"t1","text":"hello world","voice":"en_GB-alan-low","options":{"speed":1.2,"normalize_audio":false}}`)
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.JSONEq(t, `{"jobId":"t1","status":"queued"}`, recorder.Body.String())

	job, err := fixture.registry.Status("t1")
	require.NoError(t, err)
	assert.Equal(t, "en_GB-alan-low", job.Voice)
	require.NotNil(t, job.Options)
	require.NotNil(t, job.Options.Speed)
	assert.InEpsilon(t, 1.2, *job.Options.Speed, 0.0001)
	require.NotNil(t, job.Options.NormalizeAudio)
	assert.False(t, *job.Options.NormalizeAudio)
}

func TestSynthesize_BadRequests(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{name: "malformed json", body: `{"jobId":`},
		{name: "missing job id", body: `{"text":"hi"}`},
		{name: "blank text", body: `{"jobId":"a","text":"   "}`},
		{name: "too long", body: `{"jobId":"a","text":"` + strings.Repeat("a", 11) + `"}`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fixture := newAPIFixture(t, 10)

			recorder := fixture.do(t, http.MethodPost, "/synthesize", testCase.body)
			assert.Equal(t, http.StatusBadRequest, recorder.Code)
			assert.NotEmpty(t, decode(t, recorder)["error"])
			assert.Zero(t, fixture.registry.Len())
		})
	}
}

func TestSynthesize_Duplicate(t *testing.T) {
	t.Parallel()

	fixture := newAPIFixture(t, 0)

	first := fixture.do(t, http.MethodPost, "/synthesize", `{"jobId":"dup","text":"a"}`)
	require.Equal(t, http.StatusOK, first.Code)

	second := fixture.do(t, http.MethodPost, "/synthesize", `{"jobId":"dup","text":"b"}`)
	assert.Equal(t, http.StatusBadRequest, second.Code)
	assert.Contains(t, decode(t, second)["error"], "duplicate")
}

func TestSynthesize_ShuttingDown(t *testing.T) {
	t.Parallel()

	fixture := newAPIFixture(t, 0)
	fixture.submitter.closed = true

	recorder := fixture.do(t, http.MethodPost, "/synthesize", `{"jobId":"x","text":"a"}`)
	assert.Equal(t, http.StatusServiceUnavailable, recorder.Code)
}

func TestDownload_States(t *testing.T) {
	t.Parallel()

	fixture := newAPIFixture(t, 0)

	assert.Equal(t, http.StatusNotFound, fixture.do(t, http.MethodGet, "/download/nope", "").Code)

	_, err := fixture.registry.Submit("pending", "x", "", nil)
	require.NoError(t, err)

	pending := fixture.do(t, http.MethodGet, "/download/pending", "")
	assert.Equal(t, http.StatusAccepted, pending.Code)
	assert.JSONEq(t, `{"jobId":"pending","status":"queued"}`, pending.Body.String())

	_, err = fixture.registry.MarkProcessing("pending")
	require.NoError(t, err)

	processing := fixture.do(t, http.MethodGet, "/download/pending", "")
	assert.Equal(t, http.StatusAccepted, processing.Code)
	assert.Equal(t, "processing", decode(t, processing)["status"])

	_, err = fixture.registry.MarkFailed("pending", "chunk 3 failed: boom")
	require.NoError(t, err)

	failed := fixture.do(t, http.MethodGet, "/download/pending", "")
	assert.Equal(t, http.StatusInternalServerError, failed.Code)
	assert.Equal(t, "chunk 3 failed: boom", decode(t, failed)["error"])
}

func TestDownload_Done(t *testing.T) {
	t.Parallel()

	fixture := newAPIFixture(t, 0)

	_, err := fixture.registry.Submit("t1", "x", "", nil)
	require.NoError(t, err)
	fixture.finish(t, "t1", "ID3-audio")

	recorder := fixture.do(t, http.MethodGet, "/download/t1", "")
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "audio/mpeg", recorder.Header().Get("Content-Type"))
	assert.Contains(t, recorder.Header().Get("Content-Disposition"), `filename=t1.mp3`)
	assert.Equal(t, "ID3-audio", recorder.Body.String())

	job, err := fixture.registry.Status("t1")
	require.NoError(t, err)
	require.NoError(t, fixture.store.Delete(context.Background(), job.ResultLocation))

	missing := fixture.do(t, http.MethodGet, "/download/t1", "")
	assert.Equal(t, http.StatusNotFound, missing.Code)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	fixture := newAPIFixture(t, 0)

	assert.Equal(t, http.StatusNotFound, fixture.do(t, http.MethodGet, "/status/nope", "").Code)

	_, err := fixture.registry.Submit("s1", "secret text", "", nil)
	require.NoError(t, err)

	recorder := fixture.do(t, http.MethodGet, "/status/s1", "")
	require.Equal(t, http.StatusOK, recorder.Code)

	body := decode(t, recorder)
	assert.Equal(t, "s1", body["jobId"])
	assert.Equal(t, "queued", body["status"])
	assert.NotContains(t, recorder.Body.String(), "secret text")
}

func TestVoicesHealthMetrics(t *testing.T) {
	t.Parallel()

	fixture := newAPIFixture(t, 0)

	voicesResp := fixture.do(t, http.MethodGet, "/voices", "")
	require.Equal(t, http.StatusOK, voicesResp.Code)
	assert.JSONEq(t,
		`{"voices":["en_GB-alan-low","en_US-lessac-high"],"default":"en_US-lessac-high"}`,
		voicesResp.Body.String())

	_, err := fixture.registry.Submit("h", "x", "", nil)
	require.NoError(t, err)

	health := fixture.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, health.Code)
	assert.JSONEq(t, `{"status":"ok","jobs":{"queued":1}}`, health.Body.String())

	fixture.do(t, http.MethodPost, "/synthesize", `{"jobId":"","text":""}`)

	metricsResp := fixture.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, metricsResp.Code)
	assert.Contains(t, metricsResp.Body.String(), `tts_service_jobs_rejected_total{reason="invalid"} 1`)
}
