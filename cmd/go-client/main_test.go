package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseFlags verifies that command-line flags are parsed correctly.
func TestParseFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		args       []string
		wantText   string
		wantJobID  string
		wantOutput string
		wantPoll   time.Duration
	}{
		{
			name:       "text and job id",
			args:       []string{"--text", "Hello, world!", "--job-id", "t1"},
			wantText:   "Hello, world!",
			wantJobID:  "t1",
			wantOutput: "t1.mp3",
			wantPoll:   defaultPollInterval,
		},
		{
			name:       "explicit output and poll interval",
			args:       []string{"--text", "x", "--job-id", "t2", "--output", "/tmp/a.mp3", "--poll-interval", "2s"},
			wantText:   "x",
			wantJobID:  "t2",
			wantOutput: "/tmp/a.mp3",
			wantPoll:   2 * time.Second,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			flags, err := parseFlags(testCase.args)
			require.NoError(t, err)

			assert.Equal(t, testCase.wantText, flags.text)
			assert.Equal(t, testCase.wantJobID, flags.jobID)
			assert.Equal(t, testCase.wantOutput, flags.output)
			assert.Equal(t, testCase.wantPoll, flags.pollInterval)
			assert.Equal(t, defaultAddr, flags.addr)
		})
	}
}

func TestParseFlags_GeneratesJobID(t *testing.T) {
	t.Parallel()

	flags, err := parseFlags([]string{"--text", "x"})
	require.NoError(t, err)

	assert.NotEmpty(t, flags.jobID)
	assert.Equal(t, flags.jobID+".mp3", flags.output)
}

func TestParseFlags_Unknown(t *testing.T) {
	t.Parallel()

	_, err := parseFlags([]string{"--chunks", "file.json"})
	require.Error(t, err)
}

// TestArgumentValidation verifies the required arguments for a submission.
func TestArgumentValidation(t *testing.T) {
	t.Parallel()

	require.NoError(t, validateFlags(appFlags{text: "some text"}))

	err := validateFlags(appFlags{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), errTextRequired)
}

// fakeService answers like the job service: queued, then done on the second
// status poll, then the artifact.
func fakeService(t *testing.T) *httptest.Server {
	t.Helper()

	var (
		mu    sync.Mutex
		polls int
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /synthesize", func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		_, _ = responseWriter.Write([]byte(`{"jobId":"t1","status":"queued"}`))
	})
	mux.HandleFunc("GET /status/t1", func(responseWriter http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		polls++
		status := "processing"

		if polls > 1 {
			status = "done"
		}
		mu.Unlock()

		responseWriter.Header().Set("Content-Type", "application/json")
		_, _ = responseWriter.Write([]byte(`{"jobId":"t1","status":"` + status + `"}`))
	})
	mux.HandleFunc("GET /download/t1", func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.Header().Set("Content-Type", "audio/mpeg")
		_, _ = responseWriter.Write([]byte("ID3 fake"))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return server
}

func TestSynthesize_WritesOutput(t *testing.T) {
	t.Parallel()

	server := fakeService(t)

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	output := filepath.Join(t.TempDir(), "t1.mp3")
	flags := appFlags{
		addr:         server.URL,
		text:         "hello world",
		voice:        "",
		jobID:        "t1",
		output:       output,
		pollInterval: 5 * time.Millisecond,
		timeout:      5 * time.Second,
		health:       false,
	}

	err = synthesize(client.NewHTTPClient(server.URL, time.Second), testLogger, flags)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "ID3"))
}

func TestHandleHealthCheck(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	testLogger, err := logger.New(t.TempDir(), "test-log.log")
	require.NoError(t, err)

	require.NoError(t, handleHealthCheck(client.NewHTTPClient(server.URL, time.Second), testLogger))

	_, err = downloadTo(context.Background(), client.NewHTTPClient(server.URL, time.Second), "x", t.TempDir())
	require.Error(t, err, "a directory cannot be the output file")
}
