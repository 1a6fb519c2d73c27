package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-email-verification/internal/config"
	"github.com/go-email-verification/internal/dispatch"
	"github.com/go-email-verification/internal/domain"
	"github.com/go-email-verification/internal/infrastructure/awscfg"
	"github.com/go-email-verification/internal/infrastructure/dynamo"
	jwtinfra "github.com/go-email-verification/internal/infrastructure/jwt"
	"github.com/go-email-verification/internal/infrastructure/memory"
	natsinfra "github.com/go-email-verification/internal/infrastructure/nats"
	s3infra "github.com/go-email-verification/internal/infrastructure/s3"
	"github.com/go-email-verification/internal/infrastructure/smtp"
	"github.com/go-email-verification/internal/infrastructure/sns"
	"github.com/go-email-verification/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type recordStore interface {
	GetOrCreate(ctx context.Context, email string, now time.Time) (*domain.VerificationRecord, bool, error)
	Get(ctx context.Context, recordID string) (*domain.VerificationRecord, error)
	MarkVerified(ctx context.Context, recordID string, now time.Time) (domain.MarkResult, error)
	MarkRequested(ctx context.Context, recordID string, at time.Time) error
}

type jobQueue interface {
	Enqueue(ctx context.Context, job domain.DispatchJob) error
	Close(ctx context.Context) error
}

// app holds the long-lived components shared by the serve and worker commands.
type app struct {
	records  recordStore
	codec    *jwtinfra.Codec
	queue    jobQueue // nil when no mail transport is configured
	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a := &app{registry: reg, metrics: metrics.New(reg)}

	records, err := newRecordStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.records = records

	codec, err := jwtinfra.NewCodec(cfg)
	if err != nil {
		return nil, err
	}
	a.codec = codec

	if !cfg.MailConfigured() {
		slog.Warn("SMTP_HOST not set, verification emails will not be sent")
		return a, nil
	}

	sink, err := newDeadLetterSink(ctx, cfg)
	if err != nil {
		return nil, err
	}
	runner := dispatch.NewRunner(
		dispatch.NewMailSender(records, smtp.NewMailer(cfg)),
		dispatch.Policy{
			MaxAttempts:    cfg.Dispatch.MaxAttempts,
			Backoff:        cfg.Dispatch.Backoff,
			AttemptTimeout: cfg.Dispatch.AttemptTimeout,
		},
		sink,
		a.metrics,
	)

	switch cfg.Dispatch.Backend {
	case "nats":
		q, err := natsinfra.Connect(cfg.Dispatch)
		if err != nil {
			return nil, err
		}
		if err := q.Consume(ctx, runner); err != nil {
			_ = q.Close(ctx)
			return nil, err
		}
		a.queue = q
	default:
		q := dispatch.NewQueue(runner, dispatch.Config{
			Workers: cfg.Dispatch.Workers,
			Buffer:  cfg.Dispatch.Buffer,
		}, a.metrics)
		q.Start()
		a.queue = q
	}
	return a, nil
}

func newRecordStore(ctx context.Context, cfg *config.Config) (recordStore, error) {
	if cfg.StoreDriver == "memory" {
		slog.Warn("using in-memory verification store, records are lost on restart")
		return memory.NewVerificationRepo(), nil
	}
	client, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return dynamo.NewVerificationRepo(client, cfg.DynamoTables.EmailVerifications), nil
}

// newDeadLetterSink always logs, and additionally archives to S3 and alerts
// through SNS when those are configured.
func newDeadLetterSink(ctx context.Context, cfg *config.Config) (dispatch.DeadLetterSink, error) {
	sinks := dispatch.MultiSink{dispatch.LogSink{}}
	if cfg.Dispatch.DeadLetterBucket != "" {
		awsCfg, err := awscfg.Load(ctx, cfg, cfg.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("dead-letter archive: %w", err)
		}
		sinks = append(sinks, s3infra.NewDeadLetterArchive(s3infra.NewClient(awsCfg, cfg), cfg.Dispatch.DeadLetterBucket))
	}
	if cfg.Dispatch.DeadLetterTopicARN != "" {
		awsCfg, err := awscfg.Load(ctx, cfg, cfg.Dispatch.SNSRegion)
		if err != nil {
			return nil, fmt.Errorf("dead-letter alerter: %w", err)
		}
		sinks = append(sinks, sns.NewDeadLetterAlerter(sns.NewClient(awsCfg), cfg.Dispatch.DeadLetterTopicARN))
	}
	return sinks, nil
}

// close drains the dispatch queue. Jobs still retrying when ctx expires are
// dead-lettered by the runner.
func (a *app) close(ctx context.Context) {
	if a.queue == nil {
		return
	}
	if err := a.queue.Close(ctx); err != nil {
		slog.Error("dispatch queue close", "err", err)
	}
}
