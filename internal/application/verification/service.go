package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-email-verification/internal/domain"
	jwtinfra "github.com/go-email-verification/internal/infrastructure/jwt"
	"github.com/go-email-verification/internal/metrics"
	"github.com/go-email-verification/internal/pkg/validate"
)

// Service issues and redeems email verification tokens.
type Service interface {
	// RequestVerification only fails for a missing email. Every other outcome,
	// including internal faults, is reported to the caller as success.
	RequestVerification(ctx context.Context, email string) error
	RedeemToken(ctx context.Context, token string) (domain.MarkResult, error)
}

type recordStore interface {
	GetOrCreate(ctx context.Context, email string, now time.Time) (*domain.VerificationRecord, bool, error)
	Get(ctx context.Context, recordID string) (*domain.VerificationRecord, error)
	MarkVerified(ctx context.Context, recordID string, now time.Time) (domain.MarkResult, error)
	MarkRequested(ctx context.Context, recordID string, at time.Time) error
}

type tokenCodec interface {
	Mint(recordID string) domain.VerificationClaim
	Issue(claim domain.VerificationClaim) (string, error)
	Parse(token string) (*domain.VerificationClaim, error)
}

type enqueuer interface {
	Enqueue(ctx context.Context, job domain.DispatchJob) error
}

type service struct {
	records   recordStore
	codec     tokenCodec
	queue     enqueuer
	verifyURL string
	metrics   *metrics.Metrics
	now       func() time.Time
}

// ServiceDeps wires the orchestrator. A nil Queue means no mail transport is
// configured: issuance still succeeds but nothing is sent.
type ServiceDeps struct {
	Records   recordStore
	Codec     tokenCodec
	Queue     enqueuer
	VerifyURL string
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		records:   deps.Records,
		codec:     deps.Codec,
		queue:     deps.Queue,
		verifyURL: deps.VerifyURL,
		metrics:   deps.Metrics,
		now:       now,
	}
}

func (s *service) RequestVerification(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email required: %w", domain.ErrMissingInput)
	}
	result := s.issue(ctx, email)
	s.metrics.RecordRequest(result)
	return nil
}

// issue runs the issuance steps and returns a short outcome label. Failures
// are logged here and never leave this function.
func (s *service) issue(ctx context.Context, email string) string {
	if !validate.Email(email) {
		slog.Info("verification requested for malformed address", "email", email)
		return "malformed"
	}
	now := s.now().UTC()
	rec, created, err := s.records.GetOrCreate(ctx, email, now)
	if err != nil {
		slog.Error("verification record lookup failed", "email", email, "err", err)
		return "error"
	}
	if rec.Verified {
		slog.Info("verification requested for verified address", "email", email, "record_id", rec.ID)
		return "already_verified"
	}

	token, err := s.codec.Issue(s.codec.Mint(rec.ID))
	if err != nil {
		slog.Error("mint verification token failed", "record_id", rec.ID, "err", err)
		return "error"
	}
	if !created {
		if err := s.records.MarkRequested(ctx, rec.ID, now); err != nil {
			slog.Warn("failed to update last requested time", "record_id", rec.ID, "err", err)
		}
	}

	if s.queue == nil {
		slog.Warn("mail transport not configured, verification email not sent", "record_id", rec.ID)
		return "not_sent"
	}
	job := domain.DispatchJob{RecordID: rec.ID, Link: s.link(token), EnqueuedAt: now}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		slog.Error("enqueue verification email failed", "record_id", rec.ID,
			"err", fmt.Errorf("%w: %w", domain.ErrDispatchFailure, err))
		return "dispatch_failed"
	}
	slog.Info("queued verification email", "email", email, "record_id", rec.ID, "created", created)
	return "queued"
}

func (s *service) RedeemToken(ctx context.Context, token string) (domain.MarkResult, error) {
	if strings.TrimSpace(token) == "" {
		s.metrics.RecordRedemption("missing")
		return 0, fmt.Errorf("token required: %w", domain.ErrMissingInput)
	}

	claim, err := s.codec.Parse(token)
	if err != nil {
		if errors.Is(err, jwtinfra.ErrExpired) {
			slog.Warn("verification token expired")
			s.metrics.RecordRedemption("expired")
			return 0, fmt.Errorf("redeem: %w", domain.ErrTokenExpired)
		}
		slog.Warn("verification token rejected", "err", err)
		s.metrics.RecordRedemption("invalid")
		return 0, fmt.Errorf("redeem: %w", domain.ErrTokenInvalid)
	}

	if _, err := s.records.Get(ctx, claim.RecordID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			slog.Warn("verification token for unknown record", "record_id", claim.RecordID)
			s.metrics.RecordRedemption("invalid")
			return 0, fmt.Errorf("redeem: %w", domain.ErrTokenInvalid)
		}
		s.metrics.RecordRedemption("error")
		return 0, fmt.Errorf("load verification record: %w", err)
	}

	res, err := s.records.MarkVerified(ctx, claim.RecordID, s.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.RecordRedemption("invalid")
			return 0, fmt.Errorf("redeem: %w", domain.ErrTokenInvalid)
		}
		s.metrics.RecordRedemption("error")
		return 0, fmt.Errorf("mark verified: %w", err)
	}

	switch res {
	case domain.MarkVerified:
		slog.Info("email verified", "record_id", claim.RecordID)
	case domain.MarkAlreadyVerified:
		slog.Debug("email already verified", "record_id", claim.RecordID)
	}
	s.metrics.RecordRedemption(res.String())
	return res, nil
}

func (s *service) link(token string) string {
	u, err := url.Parse(s.verifyURL)
	if err != nil {
		return s.verifyURL + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
