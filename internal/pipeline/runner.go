package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/tts"
	"github.com/book-expert/tts-job-service/internal/tts/audio"
	"github.com/book-expert/tts-job-service/internal/tts/text"
	"github.com/book-expert/tts-job-service/internal/voices"
	"github.com/google/uuid"
)

// VoiceResolver maps a voice key (empty for the default) to a voice.
type VoiceResolver interface {
	Resolve(key string) (voices.Entry, error)
}

// Transcoder encodes a PCM buffer into a compressed file at outPath.
type Transcoder interface {
	Transcode(ctx context.Context, pcm audio.PCM, outPath string) error
}

// Config holds the tunables of the pipeline.
type Config struct {
	ChunkMaxChars int
	Fanout        int
	WorkDir       string
	// NormalizeText runs text.Normalize over the input before chunking.
	NormalizeText bool
}

// Runner executes the full pipeline for one job.
type Runner struct {
	config     Config
	voices     VoiceResolver
	synth      Synthesizer
	transcoder Transcoder
	store      core.ArtifactStore
	observer   ChunkObserver
	log        *logger.Logger
}

// NewRunner creates a Runner. observer may be nil.
func NewRunner(
	cfg Config,
	voiceResolver VoiceResolver,
	synth Synthesizer,
	transcoder Transcoder,
	store core.ArtifactStore,
	observer ChunkObserver,
	log *logger.Logger,
) *Runner {
	if cfg.ChunkMaxChars <= 0 {
		cfg.ChunkMaxChars = text.DefaultMaxChars
	}

	if cfg.Fanout <= 0 {
		cfg.Fanout = DefaultFanout
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}

	return &Runner{
		config:     cfg,
		voices:     voiceResolver,
		synth:      synth,
		transcoder: transcoder,
		store:      store,
		observer:   observer,
		log:        log,
	}
}

// Run synthesizes the job's text and stores the result, returning the
// artifact location.
func (r *Runner) Run(ctx context.Context, job core.Job) (string, error) {
	voice, err := r.voices.Resolve(job.Voice)
	if err != nil {
		return "", err
	}

	opts, err := tts.ResolveOptions(job.Options)
	if err != nil {
		return "", fmt.Errorf("invalid options: %w", err)
	}

	input := job.Text
	if r.config.NormalizeText {
		input = text.Normalize(input)
	}

	chunks := text.Chunk(input, r.config.ChunkMaxChars)
	if len(chunks) == 0 {
		return "", core.ErrEmptyText
	}

	buffers, err := SynthesizeChunks(ctx, r.synth, voice, chunks, opts, r.config.Fanout, r.observer)
	if err != nil {
		return "", err
	}

	pcm, err := audio.Concat(buffers)
	if err != nil {
		return "", err
	}

	r.log.Info("Job %s: synthesized %d chunks with voice %s (%s of audio)", job.ID, len(chunks), voice.Key, pcm.Duration())

	workPath := filepath.Join(r.config.WorkDir, "tts-"+uuid.NewString()+".mp3")

	defer func() {
		removeErr := os.Remove(workPath)
		if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			r.log.Warn("Failed to remove work file '%s': %v", workPath, removeErr)
		}
	}()

	err = r.transcoder.Transcode(ctx, pcm, workPath)
	if err != nil {
		return "", err
	}

	location, err := r.store.Put(ctx, job.ID, workPath)
	if err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}

	return location, nil
}
