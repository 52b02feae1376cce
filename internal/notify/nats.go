package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// ErrEmptySubject indicates a NATS notifier built without a subject.
var ErrEmptySubject = errors.New("nats subject cannot be empty")

// JobCompletedEvent is the payload published on NATS when a job finishes.
// The workflow id of the header is the job id.
type JobCompletedEvent struct {
	Header events.EventHeader `json:"header"`
	JobID  string             `json:"jobId"`
	Status core.JobState      `json:"status"`
	Path   string             `json:"path,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// NATS publishes notifications as JobCompletedEvent messages.
type NATS struct {
	natsConnection *nats.Conn
	subject        string
}

// NewNATS creates a NATS notifier publishing on subject.
func NewNATS(natsConnection *nats.Conn, subject string) (*NATS, error) {
	if subject == "" {
		return nil, ErrEmptySubject
	}

	return &NATS{
		natsConnection: natsConnection,
		subject:        subject,
	}, nil
}

// Notify publishes the event and flushes it to the server.
func (n *NATS) Notify(ctx context.Context, notification core.Notification) error {
	event := JobCompletedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now(),
			WorkflowID: notification.JobID,
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		JobID:  notification.JobID,
		Status: notification.Status,
		Path:   notification.Path,
		Error:  notification.Error,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal completion event: %w", err)
	}

	err = n.natsConnection.Publish(n.subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish completion event to %s: %w", n.subject, err)
	}

	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		err = n.natsConnection.FlushWithContext(ctx)
	} else {
		err = n.natsConnection.Flush()
	}

	if err != nil {
		return fmt.Errorf("failed to flush completion event: %w", err)
	}

	return nil
}
