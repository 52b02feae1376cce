package notify

import (
	"context"
	"errors"

	"github.com/book-expert/tts-job-service/internal/core"
)

// Multi sends every notification to all of its notifiers and joins their errors.
type Multi []core.Notifier

// Notify calls each notifier in order; one failure does not stop the rest.
func (m Multi) Notify(ctx context.Context, notification core.Notification) error {
	var errs []error

	for _, notifier := range m {
		err := notifier.Notify(ctx, notification)
		if err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, core.Notification) error {
	return nil
}
