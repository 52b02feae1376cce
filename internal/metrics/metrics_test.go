package metrics_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordsJobLifecycle(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.JobSubmitted()
	m.JobSubmitted()
	m.JobRejected("duplicate")
	m.SetQueueDepth(2)
	m.JobStarted()
	m.ObserveChunk(10*time.Millisecond, nil)
	m.ObserveChunk(10*time.Millisecond, errors.New("boom"))
	m.JobFinished(core.JobStateFailed, time.Second)
	m.NotifyFailed()
	m.JobsEvicted(3)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)

	count, err := testutil.GatherAndCount(reg, "tts_service_jobs_submitted_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	expected := `
# HELP tts_service_jobs_completed_total Total number of jobs that reached a terminal state
# TYPE tts_service_jobs_completed_total counter
tts_service_jobs_completed_total{status="failed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tts_service_jobs_completed_total"))

	chunkCount, err := testutil.GatherAndCount(reg, "tts_service_chunks_total")
	require.NoError(t, err)
	assert.Equal(t, 2, chunkCount, "one series per status")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()

	var m *metrics.Metrics

	assert.NotPanics(t, func() {
		m.JobSubmitted()
		m.JobRejected("invalid")
		m.JobStarted()
		m.JobFinished(core.JobStateDone, time.Second)
		m.SetQueueDepth(1)
		m.ObserveChunk(time.Millisecond, nil)
		m.NotifyFailed()
		m.JobsEvicted(1)
	})
}
