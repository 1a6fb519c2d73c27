package dispatch

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-email-verification/internal/domain"
)

// DeadLetterSink receives jobs that exhausted their attempts.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, job domain.DispatchJob, cause error) error
}

// LogSink records dead letters in the service log only.
type LogSink struct{}

func (LogSink) DeadLetter(_ context.Context, job domain.DispatchJob, cause error) error {
	slog.Error("dead letter",
		"record_id", job.RecordID,
		"attempts", job.Attempts,
		"enqueued_at", job.EnqueuedAt,
		"err", cause)
	return nil
}

// MultiSink fans a dead letter out to every sink and joins their errors.
type MultiSink []DeadLetterSink

func (m MultiSink) DeadLetter(ctx context.Context, job domain.DispatchJob, cause error) error {
	var errs []error
	for _, s := range m {
		if err := s.DeadLetter(ctx, job, cause); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
