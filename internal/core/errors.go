package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateJob indicates that a job with the same identifier is already registered.
	ErrDuplicateJob = errors.New("duplicate job id")
	// ErrJobNotFound indicates that no job with the identifier is registered.
	ErrJobNotFound = errors.New("job not found")
	// ErrEmptyJobID indicates that a job was submitted without an identifier.
	ErrEmptyJobID = errors.New("job id cannot be empty")
	// ErrResultMissing indicates that a done job's artifact is gone from storage.
	ErrResultMissing = errors.New("result artifact missing")
	// ErrVoiceNotFound indicates that the requested voice is not in the catalog.
	ErrVoiceNotFound = errors.New("voice not found")
	// ErrInvalidVoiceKey indicates a catalog key that is not <lang>_<region>-<speaker>-<quality>.
	ErrInvalidVoiceKey = errors.New("invalid voice key")
	// ErrInvalidTransition indicates a job state change that does not move forward.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrEmptyText indicates that the job text produced no chunks.
	ErrEmptyText = errors.New("text contains no words")
	// ErrSampleRateMismatch indicates PCM buffers with differing sample rates.
	ErrSampleRateMismatch = errors.New("sample rate mismatch")
)

// JobNotReadyError is returned when a result is requested before the job finished.
type JobNotReadyError struct {
	State JobState
}

func (e *JobNotReadyError) Error() string {
	return fmt.Sprintf("job not ready: %s", e.State)
}

// JobFailedError carries the stored failure message of a failed job.
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string {
	return "job failed: " + e.Message
}

// ChunkSynthesisError reports the first chunk whose synthesis failed.
// Index is 1-based.
type ChunkSynthesisError struct {
	Index int
	Err   error
}

func (e *ChunkSynthesisError) Error() string {
	return fmt.Sprintf("chunk %d failed: %v", e.Index, e.Err)
}

// Unwrap exposes the underlying synthesis error.
func (e *ChunkSynthesisError) Unwrap() error {
	return e.Err
}

// TranscodeError reports a transcoder failure.
type TranscodeError struct {
	Err error
}

func (e *TranscodeError) Error() string {
	return fmt.Sprintf("transcode failed: %v", e.Err)
}

// Unwrap exposes the underlying transcoder error.
func (e *TranscodeError) Unwrap() error {
	return e.Err
}
