// Package dispatch delivers verification emails off the request path with a
// bounded retry policy. A job that fails its final attempt is logged and
// handed to a dead-letter sink; nothing is ever reported back to the caller
// that enqueued it.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-email-verification/internal/domain"
	"github.com/go-email-verification/internal/metrics"
	"github.com/sethvargo/go-retry"
)

const (
	maxBackoff            = 30 * time.Second
	defaultAttemptTimeout = 30 * time.Second
)

// Sender performs a single delivery attempt for job.
type Sender interface {
	Send(ctx context.Context, job domain.DispatchJob) error
}

// Policy bounds delivery retries. Attempts counts the first try.
// AttemptTimeout caps a single Send; zero means defaultAttemptTimeout.
type Policy struct {
	MaxAttempts    int
	Backoff        time.Duration
	AttemptTimeout time.Duration
}

// DefaultPolicy is three attempts with exponential backoff from two seconds.
var DefaultPolicy = Policy{MaxAttempts: 3, Backoff: 2 * time.Second, AttemptTimeout: defaultAttemptTimeout}

func (p Policy) attemptTimeout() time.Duration {
	if p.AttemptTimeout <= 0 {
		return defaultAttemptTimeout
	}
	return p.AttemptTimeout
}

func (p Policy) backoff() retry.Backoff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	base := p.Backoff
	if base <= 0 {
		base = time.Millisecond
	}
	b := retry.NewExponential(base)
	b = retry.WithCappedDuration(maxBackoff, b)
	return retry.WithMaxRetries(uint64(attempts-1), b)
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the runner gives up without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Runner executes jobs against a Sender under a Policy.
type Runner struct {
	sender  Sender
	policy  Policy
	sink    DeadLetterSink
	metrics *metrics.Metrics
}

func NewRunner(sender Sender, policy Policy, sink DeadLetterSink, m *metrics.Metrics) *Runner {
	if sink == nil {
		sink = LogSink{}
	}
	return &Runner{sender: sender, policy: policy, sink: sink, metrics: m}
}

// Run delivers job, retrying transient failures. It never returns an error:
// the final failure goes to the dead-letter sink instead.
func (r *Runner) Run(ctx context.Context, job domain.DispatchJob) {
	attempt := 0
	err := retry.Do(ctx, r.policy.backoff(), func(ctx context.Context) error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.policy.attemptTimeout())
		err := r.sender.Send(attemptCtx, job)
		cancel()
		if err == nil {
			r.metrics.RecordAttempt("ok")
			return nil
		}
		r.metrics.RecordAttempt("error")
		slog.Warn("verification email attempt failed",
			"record_id", job.RecordID, "attempt", attempt, "err", err)
		if IsPermanent(err) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err == nil {
		slog.Info("verification email sent", "record_id", job.RecordID, "attempts", attempt)
		return
	}

	job.Attempts = attempt
	cause := fmt.Errorf("%w: %v", domain.ErrDispatchFailure, err)
	slog.Error("verification email abandoned",
		"record_id", job.RecordID, "attempts", attempt, "err", err)
	r.metrics.RecordDeadLetter()
	if sinkErr := r.sink.DeadLetter(context.WithoutCancel(ctx), job, cause); sinkErr != nil {
		slog.Error("dead-letter sink failed", "record_id", job.RecordID, "err", sinkErr)
	}
}
