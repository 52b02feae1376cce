package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/core"
)

const (
	// DefaultQuality is the libmp3lame VBR quality (0 best, 9 worst).
	DefaultQuality = 2

	defaultFFmpegBinary = "ffmpeg"
	stderrTailBytes     = 512
)

var (
	// ErrEmptyPCM indicates an attempt to transcode a buffer with no samples.
	ErrEmptyPCM = errors.New("pcm buffer is empty")
	// ErrEmptyOutput indicates that the transcoder produced no bytes.
	ErrEmptyOutput = errors.New("transcoder produced no output")
	// ErrStaging indicates that the raw PCM could not be written for the transcoder.
	ErrStaging = errors.New("failed to stage pcm")
	// ErrMissingOutput indicates that the transcoder exited cleanly without writing the output file.
	ErrMissingOutput = errors.New("transcoder output file missing")
)

// commandRunner abstracts process execution so tests can fake the transcoder.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stderr string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	// #nosec G204 -- binary path comes from trusted configuration
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stderr.String(), err
}

// FFmpegConfig configures the ffmpeg transcoder.
type FFmpegConfig struct {
	BinaryPath string
	Quality    int
	SampleRate int
	StagingDir string
}

// FFmpegTranscoder encodes PCM buffers to MP3 by invoking ffmpeg.
type FFmpegTranscoder struct {
	config FFmpegConfig
	runner commandRunner
	log    *logger.Logger
}

// NewFFmpegTranscoder creates a transcoder, filling unset config fields with defaults.
func NewFFmpegTranscoder(cfg FFmpegConfig, log *logger.Logger) *FFmpegTranscoder {
	return newFFmpegTranscoder(cfg, execRunner{}, log)
}

func newFFmpegTranscoder(cfg FFmpegConfig, runner commandRunner, log *logger.Logger) *FFmpegTranscoder {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = defaultFFmpegBinary
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = DefaultSampleRate
	}

	return &FFmpegTranscoder{
		config: cfg,
		runner: runner,
		log:    log,
	}
}

// Transcode encodes pcm into an MP3 file at outPath. The raw staging file is
// removed whether or not encoding succeeds. Failures are *core.TranscodeError
// carrying a short cause; ffmpeg's stderr goes to the log only.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, pcm PCM, outPath string) error {
	if len(pcm.Samples) == 0 {
		return &core.TranscodeError{Err: ErrEmptyPCM}
	}

	stagePath, err := t.stage(pcm)
	if err != nil {
		t.log.Error("Failed to stage PCM for transcoding: %v", err)

		return &core.TranscodeError{Err: ErrStaging}
	}

	defer func() {
		removeErr := os.Remove(stagePath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			t.log.Warn("Failed to remove staging file '%s': %v", stagePath, removeErr)
		}
	}()

	args := []string{
		"-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(pcm.SampleRate),
		"-ac", "1",
		"-i", stagePath,
		"-ar", strconv.Itoa(t.config.SampleRate),
		"-codec:a", "libmp3lame",
		"-qscale:a", strconv.Itoa(t.config.Quality),
		outPath,
	}

	stderr, runErr := t.runner.Run(ctx, t.config.BinaryPath, args...)
	if runErr != nil {
		t.log.Error("%s failed: %v - output: %s", t.config.BinaryPath, runErr, tail(stderr))

		return &core.TranscodeError{Err: runErr}
	}

	info, statErr := os.Stat(outPath)
	if statErr != nil {
		t.log.Error("Failed to stat transcoder output '%s': %v", outPath, statErr)

		return &core.TranscodeError{Err: ErrMissingOutput}
	}

	if info.Size() == 0 {
		return &core.TranscodeError{Err: ErrEmptyOutput}
	}

	return nil
}

func (t *FFmpegTranscoder) stage(pcm PCM) (string, error) {
	file, err := os.CreateTemp(t.config.StagingDir, "tts-stage-*.pcm")
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}

	_, writeErr := file.Write(pcm.S16LE())
	closeErr := file.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(file.Name())

		return "", fmt.Errorf("failed to write staging file: %w", errors.Join(writeErr, closeErr))
	}

	return file.Name(), nil
}

func tail(output string) string {
	output = strings.TrimSpace(output)
	if len(output) > stderrTailBytes {
		return output[len(output)-stderrTailBytes:]
	}

	return output
}
