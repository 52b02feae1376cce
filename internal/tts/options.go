package tts

import (
	"errors"
	"fmt"

	"github.com/book-expert/tts-job-service/internal/core"
)

// Fallbacks for fields missing from a supplied options object.
const (
	defaultVolume         = 1.0
	defaultSpeed          = 1.0
	defaultNoiseScale     = 1.0
	defaultNoiseWScale    = 1.0
	defaultNormalizeAudio = true

	maxVolume    = 10.0
	maxSpeed     = 10.0
	maxVariation = 5.0
)

var (
	// ErrVolumeRange indicates that the volume is outside [0.0, 10.0].
	ErrVolumeRange = errors.New("volume must be between 0.0 and 10.0")
	// ErrSpeedRange indicates that the speed is outside (0.0, 10.0].
	ErrSpeedRange = errors.New("speed must be greater than 0.0 and at most 10.0")
	// ErrAudioVariationRange indicates that the audio variation is outside [0.0, 5.0].
	ErrAudioVariationRange = errors.New("audio_variation must be between 0.0 and 5.0")
	// ErrSpeakingVariationRange indicates that the speaking variation is outside [0.0, 5.0].
	ErrSpeakingVariationRange = errors.New("speaking_variation must be between 0.0 and 5.0")
)

// DefaultOptions returns the options of a request without an options object:
// unit volume, normalization on, and the voice model's own scales.
func DefaultOptions() core.ResolvedOptions {
	return core.ResolvedOptions{
		Volume:         defaultVolume,
		LengthScale:    defaultSpeed,
		NoiseScale:     defaultNoiseScale,
		NoiseWScale:    defaultNoiseWScale,
		NormalizeAudio: defaultNormalizeAudio,
		OverrideScales: false,
	}
}

// ResolveOptions applies defaults to opts and validates the result.
// A nil opts leaves the scales to the voice model; a non-nil opts sets all
// three, using 1.0 for any that are missing.
func ResolveOptions(opts *core.SynthesisOptions) (core.ResolvedOptions, error) {
	resolved := DefaultOptions()
	if opts == nil {
		return resolved, nil
	}

	resolved.OverrideScales = true

	if opts.Volume != nil {
		resolved.Volume = *opts.Volume
	}

	if opts.Speed != nil {
		resolved.LengthScale = *opts.Speed
	}

	if opts.AudioVariation != nil {
		resolved.NoiseScale = *opts.AudioVariation
	}

	if opts.SpeakingVariation != nil {
		resolved.NoiseWScale = *opts.SpeakingVariation
	}

	if opts.NormalizeAudio != nil {
		resolved.NormalizeAudio = *opts.NormalizeAudio
	}

	validationErr := validateOptions(resolved)
	if validationErr != nil {
		return core.ResolvedOptions{}, validationErr
	}

	return resolved, nil
}

func validateOptions(opts core.ResolvedOptions) error {
	if opts.Volume < 0.0 || opts.Volume > maxVolume {
		return fmt.Errorf("%w: got %f", ErrVolumeRange, opts.Volume)
	}

	if opts.LengthScale <= 0.0 || opts.LengthScale > maxSpeed {
		return fmt.Errorf("%w: got %f", ErrSpeedRange, opts.LengthScale)
	}

	if opts.NoiseScale < 0.0 || opts.NoiseScale > maxVariation {
		return fmt.Errorf("%w: got %f", ErrAudioVariationRange, opts.NoiseScale)
	}

	if opts.NoiseWScale < 0.0 || opts.NoiseWScale > maxVariation {
		return fmt.Errorf("%w: got %f", ErrSpeakingVariationRange, opts.NoiseWScale)
	}

	return nil
}
