package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-email-verification/internal/domain"
)

const verificationSubject = "Verify your email"

type recordReader interface {
	Get(ctx context.Context, recordID string) (*domain.VerificationRecord, error)
}

type mailer interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// MailSender resolves the recipient from the store at send time and mails
// the verification link.
type MailSender struct {
	records recordReader
	mailer  mailer
}

func NewMailSender(records recordReader, m mailer) *MailSender {
	return &MailSender{records: records, mailer: m}
}

func (s *MailSender) Send(ctx context.Context, job domain.DispatchJob) error {
	rec, err := s.records.Get(ctx, job.RecordID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return Permanent(err)
		}
		return fmt.Errorf("load record: %w", err)
	}
	if rec.Verified {
		slog.Info("skipping email for verified address", "record_id", rec.ID)
		return nil
	}
	return s.mailer.SendEmail(ctx, rec.Email, verificationSubject, verificationBody(job.Link))
}

func verificationBody(link string) string {
	return fmt.Sprintf("Click the link to verify your email: %s\n\nIf you did not request this, you can ignore this message.\n", link)
}
