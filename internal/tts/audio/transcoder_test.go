package audio

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockFFmpeg = errors.New("exit status 1")

// fakeRunner records the invocation and writes a fake MP3 to the output path.
type fakeRunner struct {
	fail        bool
	writeEmpty  bool
	skipWrite   bool
	name        string
	args        []string
	stageExists bool
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (string, error) {
	f.name = name
	f.args = args

	stagePath := args[indexOf(args, "-i")+1]
	_, statErr := os.Stat(stagePath)
	f.stageExists = statErr == nil

	if f.fail {
		return "Unknown encoder 'libmp3lame'", errMockFFmpeg
	}

	if f.skipWrite {
		return "", nil
	}

	payload := []byte("ID3fake-mp3")
	if f.writeEmpty {
		payload = nil
	}

	return "", os.WriteFile(args[len(args)-1], payload, 0o600)
}

func indexOf(values []string, target string) int {
	for i, value := range values {
		if value == target {
			return i
		}
	}

	return -1
}

func newTestTranscoder(t *testing.T, runner commandRunner) (*FFmpegTranscoder, string) {
	t.Helper()

	dir := t.TempDir()

	testLogger, err := logger.New(dir, "test-log.log")
	require.NoError(t, err)

	transcoder := newFFmpegTranscoder(FFmpegConfig{
		BinaryPath: "",
		Quality:    DefaultQuality,
		SampleRate: 0,
		StagingDir: dir,
	}, runner, testLogger)

	return transcoder, dir
}

func stagedFiles(t *testing.T, dir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "tts-stage-*.pcm"))
	require.NoError(t, err)

	return matches
}

func TestFFmpegTranscoder_Success(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	transcoder, dir := newTestTranscoder(t, runner)
	outPath := filepath.Join(dir, "out.mp3")

	err := transcoder.Transcode(context.Background(), PCM{SampleRate: 22050, Samples: []int16{1, 2, 3}}, outPath)
	require.NoError(t, err)

	assert.Equal(t, "ffmpeg", runner.name)
	assert.True(t, runner.stageExists, "staging file must exist while ffmpeg runs")
	assert.Equal(t, "22050", runner.args[indexOf(runner.args, "-f")+3])
	assert.Equal(t, "libmp3lame", runner.args[indexOf(runner.args, "-codec:a")+1])
	assert.Equal(t, "2", runner.args[indexOf(runner.args, "-qscale:a")+1])
	assert.Contains(t, runner.args, "24000")
	assert.Empty(t, stagedFiles(t, dir), "staging file must be removed on success")
}

func TestFFmpegTranscoder_Failure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{fail: true}
	transcoder, dir := newTestTranscoder(t, runner)

	err := transcoder.Transcode(context.Background(), PCM{SampleRate: 24000, Samples: []int16{1}}, filepath.Join(dir, "out.mp3"))

	var transcodeErr *core.TranscodeError
	require.ErrorAs(t, err, &transcodeErr)
	require.ErrorIs(t, err, errMockFFmpeg)
	assert.Equal(t, "transcode failed: exit status 1", err.Error())
	assert.NotContains(t, err.Error(), "libmp3lame", "stderr stays in the log")
	assert.NotContains(t, err.Error(), "ffmpeg")
	assert.Empty(t, stagedFiles(t, dir), "staging file must be removed on failure")
}

func TestFFmpegTranscoder_EmptyOutput(t *testing.T) {
	t.Parallel()

	transcoder, dir := newTestTranscoder(t, &fakeRunner{writeEmpty: true})

	err := transcoder.Transcode(context.Background(), PCM{SampleRate: 24000, Samples: []int16{1}}, filepath.Join(dir, "out.mp3"))
	require.ErrorIs(t, err, ErrEmptyOutput)
}

func TestFFmpegTranscoder_MissingOutputIsShort(t *testing.T) {
	t.Parallel()

	transcoder, dir := newTestTranscoder(t, &fakeRunner{skipWrite: true})
	outPath := filepath.Join(dir, "out.mp3")

	err := transcoder.Transcode(context.Background(), PCM{SampleRate: 24000, Samples: []int16{1}}, outPath)
	require.ErrorIs(t, err, ErrMissingOutput)
	assert.NotContains(t, err.Error(), dir)
}

func TestFFmpegTranscoder_StagingFailureIsShort(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	transcoder, dir := newTestTranscoder(t, runner)
	transcoder.config.StagingDir = filepath.Join(dir, "does-not-exist")

	err := transcoder.Transcode(context.Background(), PCM{SampleRate: 24000, Samples: []int16{1}}, filepath.Join(dir, "out.mp3"))
	require.ErrorIs(t, err, ErrStaging)
	assert.NotContains(t, err.Error(), dir)
	assert.Empty(t, runner.name)
}

func TestFFmpegTranscoder_EmptyPCM(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	transcoder, dir := newTestTranscoder(t, runner)

	err := transcoder.Transcode(context.Background(), PCM{SampleRate: 24000}, filepath.Join(dir, "out.mp3"))
	require.ErrorIs(t, err, ErrEmptyPCM)
	assert.Empty(t, runner.name, "ffmpeg must not run for empty input")
}
