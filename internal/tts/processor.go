// Package tts adapts the piper voice engine to the synthesis pipeline.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/book-expert/tts-job-service/internal/tts/audio"
	"github.com/book-expert/tts-job-service/internal/voices"
)

const defaultPiperBinary = "piper"

var (
	// ErrTextEmpty indicates that there is no text to synthesize.
	ErrTextEmpty = errors.New("text cannot be empty")
	// ErrNoAudio indicates that the engine exited cleanly without producing samples.
	ErrNoAudio = errors.New("engine produced no audio")
)

// Config configures the piper synthesizer.
type Config struct {
	BinaryPath string
	// SampleRate is used for voices whose model config does not state one.
	SampleRate int
	// Timeout bounds a single chunk synthesis; zero means no timeout.
	Timeout time.Duration
}

// voiceConfig is the subset of a piper model's JSON config we read.
type voiceConfig struct {
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
}

// engineError is a failed piper run. Only the exit cause is part of the
// message; stderr is kept for the log.
type engineError struct {
	err    error
	stderr string
}

func (e *engineError) Error() string {
	return fmt.Sprintf("piper failed: %v", e.err)
}

func (e *engineError) Unwrap() error {
	return e.err
}

// runFunc executes the engine with text on stdin and returns stdout.
type runFunc func(ctx context.Context, name string, args []string, stdin string) ([]byte, error)

// PiperSynthesizer synthesizes text by running the piper binary once per chunk.
type PiperSynthesizer struct {
	config Config
	run    runFunc
	log    *logger.Logger

	rateMu sync.RWMutex
	rates  map[string]int
}

// NewPiperSynthesizer creates a new PiperSynthesizer.
func NewPiperSynthesizer(cfg Config, log *logger.Logger) *PiperSynthesizer {
	return newPiperSynthesizer(cfg, runPiper, log)
}

func newPiperSynthesizer(cfg Config, run runFunc, log *logger.Logger) *PiperSynthesizer {
	if cfg.BinaryPath == "" {
		cfg.BinaryPath = defaultPiperBinary
	}

	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}

	return &PiperSynthesizer{
		config: cfg,
		run:    run,
		log:    log,
		rates:  make(map[string]int),
	}
}

// Synthesize converts text into a PCM buffer using the given voice.
func (p *PiperSynthesizer) Synthesize(
	ctx context.Context,
	voice voices.Entry,
	text string,
	opts core.ResolvedOptions,
) (audio.PCM, error) {
	if strings.TrimSpace(text) == "" {
		return audio.PCM{}, ErrTextEmpty
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	args := []string{
		"--model", voice.ModelPath,
		"--config", voice.ConfigPath(),
		"--output-raw",
	}

	if opts.OverrideScales {
		args = append(args,
			"--length-scale", fmt.Sprintf("%.3f", opts.LengthScale),
			"--noise-scale", fmt.Sprintf("%.3f", opts.NoiseScale),
			"--noise-w-scale", fmt.Sprintf("%.3f", opts.NoiseWScale),
		)
	}

	raw, err := p.run(ctx, p.config.BinaryPath, args, text)
	if err != nil {
		var runErr *engineError
		if errors.As(err, &runErr) {
			p.log.Error("%s with voice %s: %v - output: %s", p.config.BinaryPath, voice.Key, runErr.err, runErr.stderr)
		}

		return audio.PCM{}, err
	}

	if len(raw) == 0 {
		return audio.PCM{}, ErrNoAudio
	}

	pcm, err := audio.DecodeS16LE(raw, p.sampleRate(voice))
	if err != nil {
		return audio.PCM{}, fmt.Errorf("failed to decode engine output: %w", err)
	}

	effects := audio.Effects{Volume: opts.Volume, Normalize: opts.NormalizeAudio}

	return effects.Apply(pcm), nil
}

// sampleRate returns the native rate of the voice, cached per model.
func (p *PiperSynthesizer) sampleRate(voice voices.Entry) int {
	p.rateMu.RLock()
	rate, ok := p.rates[voice.Key]
	p.rateMu.RUnlock()

	if ok {
		return rate
	}

	rate = p.config.SampleRate

	data, err := os.ReadFile(voice.ConfigPath())
	if err != nil {
		p.log.Warn("No model config for voice '%s', assuming %d Hz: %v", voice.Key, rate, err)
	} else {
		var cfg voiceConfig

		parseErr := json.Unmarshal(data, &cfg)
		if parseErr != nil {
			p.log.Warn("Unreadable model config for voice '%s', assuming %d Hz: %v", voice.Key, rate, parseErr)
		} else if cfg.Audio.SampleRate > 0 {
			rate = cfg.Audio.SampleRate
		}
	}

	p.rateMu.Lock()
	p.rates[voice.Key] = rate
	p.rateMu.Unlock()

	return rate
}

func runPiper(ctx context.Context, name string, args []string, stdin string) ([]byte, error) {
	// #nosec G204 -- binary path comes from trusted configuration, model paths from the catalog
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("piper interrupted: %w", ctx.Err())
		}

		return nil, &engineError{err: err, stderr: strings.TrimSpace(stderr.String())}
	}

	return stdout.Bytes(), nil
}
