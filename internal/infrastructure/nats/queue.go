// Package natsinfra moves dispatch jobs through a NATS JetStream stream so
// that delivery survives process restarts and can be shared by several
// worker processes.
package natsinfra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-email-verification/internal/config"
	"github.com/go-email-verification/internal/domain"
	"github.com/nats-io/nats.go"
)

const (
	publishTimeout = 2 * time.Second
	// ackWait must exceed the worst-case retry schedule of one job.
	ackWait = 2 * time.Minute
)

// JobRunner delivers one job and handles its own failures.
type JobRunner interface {
	Run(ctx context.Context, job domain.DispatchJob)
}

// Queue publishes dispatch jobs to JetStream and consumes them with a
// durable queue-group subscription.
type Queue struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	stream  string
	subject string
	durable string

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect dials NATS and makes sure the stream for cfg exists.
func Connect(cfg config.Dispatch, opts ...nats.Option) (*Queue, error) {
	nc, err := nats.Connect(cfg.NATSURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	q := &Queue{
		conn:    nc,
		js:      js,
		stream:  cfg.NATSStream,
		subject: cfg.NATSSubject,
		durable: cfg.NATSDurable,
	}
	if err := q.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return q, nil
}

func (q *Queue) ensureStream() error {
	_, err := q.js.StreamInfo(q.stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("stream info: %w", err)
	}
	_, err = q.js.AddStream(&nats.StreamConfig{
		Name:      q.stream,
		Subjects:  []string{q.subject},
		Retention: nats.WorkQueuePolicy,
		Storage:   nats.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", q.stream, err)
	}
	slog.Info("created jetstream stream", "stream", q.stream, "subject", q.subject)
	return nil
}

// Enqueue publishes job and waits only for the stream acknowledgement.
func (q *Queue) Enqueue(ctx context.Context, job domain.DispatchJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("%w: marshal job: %w", domain.ErrDispatchFailure, err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if _, err := q.js.Publish(q.subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("%w: publish: %w", domain.ErrDispatchFailure, err)
	}
	return nil
}

// Consume runs every received job through runner until ctx is done.
func (q *Queue) Consume(ctx context.Context, runner JobRunner) error {
	handler := func(msg *nats.Msg) {
		if err := handle(ctx, runner, msg.Data); err != nil {
			slog.Error("dropping undecodable dispatch job", "subject", msg.Subject, "err", err)
			_ = msg.Term()
			return
		}
		_ = msg.Ack()
	}
	sub, err := q.js.QueueSubscribe(q.subject, q.durable, handler,
		nats.Durable(q.durable),
		nats.ManualAck(),
		nats.AckExplicit(),
		nats.AckWait(ackWait),
	)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", q.subject, err)
	}
	q.mu.Lock()
	q.subs = append(q.subs, sub)
	q.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return nil
}

// handle decodes one message and runs it. Runner failures are dead-lettered
// by the runner itself, so only a decode failure is returned.
func handle(ctx context.Context, runner JobRunner, data []byte) error {
	var job domain.DispatchJob
	if err := json.Unmarshal(data, &job); err != nil {
		return fmt.Errorf("decode job: %w", err)
	}
	if job.RecordID == "" {
		return errors.New("decode job: missing record id")
	}
	runner.Run(ctx, job)
	return nil
}

// Close drains subscriptions and the connection.
func (q *Queue) Close(_ context.Context) error {
	q.mu.Lock()
	for _, s := range q.subs {
		_ = s.Drain()
	}
	q.subs = nil
	q.mu.Unlock()
	if err := q.conn.Drain(); err != nil {
		q.conn.Close()
		return err
	}
	return nil
}
