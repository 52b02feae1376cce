package core

import "time"

// JobState tracks the lifecycle stage of a synthesis job.
type JobState string

const (
	JobStateQueued     JobState = "queued"
	JobStateProcessing JobState = "processing"
	JobStateDone       JobState = "done"
	JobStateFailed     JobState = "failed"
)

// IsTerminal reports whether no further transitions are allowed from the state.
func (s JobState) IsTerminal() bool {
	return s == JobStateDone || s == JobStateFailed
}

// Job is one client-submitted text-to-speech request.
type Job struct {
	ID             string            `json:"jobId"`
	Text           string            `json:"-"`
	Voice          string            `json:"voice,omitempty"`
	Options        *SynthesisOptions `json:"options,omitempty"`
	State          JobState          `json:"status"`
	ResultLocation string            `json:"path,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	StartedAt      time.Time         `json:"startedAt,omitzero"`
	FinishedAt     time.Time         `json:"finishedAt,omitzero"`
}
