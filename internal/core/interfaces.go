// Package core defines the core business types and interfaces for the TTS job service.
package core

import (
	"context"
	"io"
)

// ArtifactStore defines the interface for storing finished audio artifacts.
// Locations returned by Put are opaque to callers and are only ever handed
// back to the same store.
type ArtifactStore interface {
	Put(ctx context.Context, jobID, localPath string) (string, error)
	Open(ctx context.Context, location string) (io.ReadCloser, error)
	Exists(ctx context.Context, location string) (bool, error)
	Delete(ctx context.Context, location string) error
}

// Notifier delivers job completion notifications to an external collaborator.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Notification is the payload sent once a job reaches a terminal state.
type Notification struct {
	JobID  string   `json:"jobId"`
	Status JobState `json:"status"`
	Path   string   `json:"path,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// SynthesisOptions holds optional per-request overrides of the engine's
// signal-generation parameters. Nil fields fall back to engine defaults.
type SynthesisOptions struct {
	Volume            *float64 `json:"volume,omitempty"`
	Speed             *float64 `json:"speed,omitempty"`
	AudioVariation    *float64 `json:"audio_variation,omitempty"`
	SpeakingVariation *float64 `json:"speaking_variation,omitempty"`
	NormalizeAudio    *bool    `json:"normalize_audio,omitempty"`
}

// ResolvedOptions is a fully defaulted and validated set of synthesis parameters.
// The three scales are only passed to the engine when OverrideScales is set;
// otherwise the voice model's own inference settings apply.
type ResolvedOptions struct {
	Volume         float64
	LengthScale    float64
	NoiseScale     float64
	NoiseWScale    float64
	NormalizeAudio bool
	OverrideScales bool
}
