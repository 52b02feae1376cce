// Package config provides the configuration structure for the tts-service.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	StorageDir  = "dir"
	StorageNATS = "nats"
)

// Defaults applied by ApplyDefaults.
const (
	DefaultAddr                   = ":3000"
	DefaultGinMode                = "release"
	DefaultShutdownTimeoutSeconds = 30
	DefaultWorkers                = 3
	DefaultChunkMaxChars          = 3000
	DefaultFanout                 = 4
	DefaultMaxTextChars           = 5000
	DefaultVoicesDir              = "voices"
	DefaultVoicesManifest         = "voices/voices.json"
	DefaultModelExt               = "onnx"
	DefaultVoice                  = "en_US-lessac-high"
	DefaultPiperPath              = "piper"
	DefaultSampleRate             = 24000
	DefaultFFmpegPath             = "ffmpeg"
	DefaultQuality                = 2
	DefaultOutputDir              = "output"
	DefaultNotifyTimeoutSeconds   = 10
	DefaultAudioBucket            = "AUDIO_FILES"

	maxQuality = 9
)

var (
	// ErrUnknownStorageBackend indicates a storage backend other than dir or nats.
	ErrUnknownStorageBackend = errors.New("unknown storage backend")
	// ErrNATSURLRequired indicates a NATS feature enabled without a NATS url.
	ErrNATSURLRequired = errors.New("nats url is required")
	// ErrQualityRange indicates an mp3 quality outside 0..9.
	ErrQualityRange = errors.New("transcoder quality must be between 0 and 9")
	// ErrNegativeSetting indicates a numeric setting below zero.
	ErrNegativeSetting = errors.New("setting cannot be negative")
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr                   string `toml:"addr"`
	GinMode                string `toml:"gin_mode"`
	ShutdownTimeoutSeconds int    `toml:"shutdown_timeout_seconds"`
}

// JobsConfig holds the job queue and pipeline settings. MaxTextChars is a
// pointer so that an explicit 0 (unlimited) differs from unset.
type JobsConfig struct {
	Workers           int    `toml:"workers"`
	ChunkMaxChars     int    `toml:"chunk_max_chars"`
	Fanout            int    `toml:"fanout"`
	MaxTextChars      *int   `toml:"max_text_chars"`
	RetentionSeconds  int    `toml:"retention_seconds"`
	JobTimeoutSeconds int    `toml:"job_timeout_seconds"`
	WorkDir           string `toml:"work_dir"`
	NormalizeText     bool   `toml:"normalize_text"`
}

// VoicesConfig locates the voice catalog.
type VoicesConfig struct {
	ManifestPath string `toml:"manifest_path"`
	Dir          string `toml:"dir"`
	ModelExt     string `toml:"model_ext"`
	Default      string `toml:"default"`
}

// EngineConfig holds the piper settings.
type EngineConfig struct {
	PiperPath      string `toml:"piper_path"`
	SampleRate     int    `toml:"sample_rate"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TranscoderConfig holds the ffmpeg settings. Quality is a pointer because
// zero is the best valid libmp3lame quality.
type TranscoderConfig struct {
	FFmpegPath string `toml:"ffmpeg_path"`
	Quality    *int   `toml:"quality"`
}

// StorageConfig selects where finished artifacts are kept.
type StorageConfig struct {
	Backend   string `toml:"backend"`
	OutputDir string `toml:"output_dir"`
}

// NotifyConfig holds the completion notification targets. Both are optional.
type NotifyConfig struct {
	WebhookURL     string `toml:"webhook_url"`
	NATSSubject    string `toml:"nats_subject"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `toml:"url"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig     `toml:"server"`
	Jobs       JobsConfig       `toml:"jobs"`
	Voices     VoicesConfig     `toml:"voices"`
	Engine     EngineConfig     `toml:"engine"`
	Transcoder TranscoderConfig `toml:"transcoder"`
	Storage    StorageConfig    `toml:"storage"`
	Notify     NotifyConfig     `toml:"notify"`
	NATS       NATSConfig       `toml:"nats"`
	Paths      PathsConfig      `toml:"paths"`
}

// Load loads the configuration for the tts-service.
func Load(log *logger.Logger) (*Config, error) {
	var cfg Config

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile loads the configuration from a local TOML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	var cfg Config

	err = toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file '%s': %w", path, err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyDefaults()

	err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// ApplyDefaults fills every unset field. A zero retention, job timeout or
// engine timeout and empty notification targets mean "disabled" and are kept.
func (c *Config) ApplyDefaults() {
	setString(&c.Server.Addr, DefaultAddr)
	setString(&c.Server.GinMode, DefaultGinMode)
	setInt(&c.Server.ShutdownTimeoutSeconds, DefaultShutdownTimeoutSeconds)

	setInt(&c.Jobs.Workers, DefaultWorkers)
	setInt(&c.Jobs.ChunkMaxChars, DefaultChunkMaxChars)
	setInt(&c.Jobs.Fanout, DefaultFanout)
	setString(&c.Jobs.WorkDir, os.TempDir())

	if c.Jobs.MaxTextChars == nil {
		maxText := DefaultMaxTextChars
		c.Jobs.MaxTextChars = &maxText
	}

	setString(&c.Voices.Dir, DefaultVoicesDir)
	setString(&c.Voices.ManifestPath, DefaultVoicesManifest)
	setString(&c.Voices.ModelExt, DefaultModelExt)
	setString(&c.Voices.Default, DefaultVoice)

	setString(&c.Engine.PiperPath, DefaultPiperPath)
	setInt(&c.Engine.SampleRate, DefaultSampleRate)

	setString(&c.Transcoder.FFmpegPath, DefaultFFmpegPath)

	if c.Transcoder.Quality == nil {
		quality := DefaultQuality
		c.Transcoder.Quality = &quality
	}

	setString(&c.Storage.Backend, StorageDir)
	setString(&c.Storage.OutputDir, DefaultOutputDir)

	setInt(&c.Notify.TimeoutSeconds, DefaultNotifyTimeoutSeconds)

	setString(&c.NATS.AudioObjectStoreBucket, DefaultAudioBucket)

	setString(&c.Paths.BaseLogsDir, os.TempDir())
}

// Validate checks settings that defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageDir:
	case StorageNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: storage backend '%s'", ErrNATSURLRequired, StorageNATS)
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnknownStorageBackend, c.Storage.Backend)
	}

	if c.Notify.NATSSubject != "" && c.NATS.URL == "" {
		return fmt.Errorf("%w: notify subject '%s'", ErrNATSURLRequired, c.Notify.NATSSubject)
	}

	if c.Transcoder.Quality != nil && (*c.Transcoder.Quality < 0 || *c.Transcoder.Quality > maxQuality) {
		return fmt.Errorf("%w: got %d", ErrQualityRange, *c.Transcoder.Quality)
	}

	nonNegative := map[string]int{
		"jobs.retention_seconds":   c.Jobs.RetentionSeconds,
		"jobs.job_timeout_seconds": c.Jobs.JobTimeoutSeconds,
		"engine.timeout_seconds":   c.Engine.TimeoutSeconds,
	}

	if c.Jobs.MaxTextChars != nil {
		nonNegative["jobs.max_text_chars"] = *c.Jobs.MaxTextChars
	}

	for name, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%w: %s = %d", ErrNegativeSetting, name, value)
		}
	}

	return nil
}

// UsesNATS reports whether any component needs a NATS connection.
func (c *Config) UsesNATS() bool {
	return c.Storage.Backend == StorageNATS || c.Notify.NATSSubject != ""
}

// Retention returns how long finished jobs are kept; zero means forever.
func (j JobsConfig) Retention() time.Duration {
	return time.Duration(j.RetentionSeconds) * time.Second
}

// JobTimeout returns the pipeline deadline per job; zero means none.
func (j JobsConfig) JobTimeout() time.Duration {
	return time.Duration(j.JobTimeoutSeconds) * time.Second
}

// Timeout returns the per-chunk piper deadline; zero means none.
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// Timeout returns the per-notification deadline.
func (n NotifyConfig) Timeout() time.Duration {
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// ShutdownTimeout returns how long shutdown waits for in-flight work.
func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

func setString(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func setInt(field *int, value int) {
	if *field == 0 {
		*field = value
	}
}
