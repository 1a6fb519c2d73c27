package s3infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-email-verification/internal/config"
	"github.com/go-email-verification/internal/domain"
	"github.com/go-email-verification/internal/pkg/id"
)

const keyPrefix = "dead-letters"

// PutObjectAPI is the subset of the S3 client the archive uses.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	var opts []func(*s3.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, opts...)
}

// deadLetter is the archived JSON document. It never carries the link, which
// embeds a live token.
type deadLetter struct {
	RecordID   string    `json:"record_id"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	FailedAt   time.Time `json:"failed_at"`
	Error      string    `json:"error"`
}

// DeadLetterArchive stores abandoned dispatch jobs as JSON objects, one per
// failure, under dead-letters/YYYY/MM/DD/.
type DeadLetterArchive struct {
	client PutObjectAPI
	bucket string
	now    func() time.Time
}

func NewDeadLetterArchive(client PutObjectAPI, bucket string) *DeadLetterArchive {
	return &DeadLetterArchive{client: client, bucket: bucket, now: time.Now}
}

func (a *DeadLetterArchive) DeadLetter(ctx context.Context, job domain.DispatchJob, cause error) error {
	failedAt := a.now().UTC()
	body, err := json.Marshal(deadLetter{
		RecordID:   job.RecordID,
		Attempts:   job.Attempts,
		EnqueuedAt: job.EnqueuedAt,
		FailedAt:   failedAt,
		Error:      cause.Error(),
	})
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	key := objectKey(failedAt, job.RecordID)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put object: %w", err)
	}
	return nil
}

func objectKey(at time.Time, recordID string) string {
	return fmt.Sprintf("%s/%s/%s-%s.json", keyPrefix, at.Format("2006/01/02"), recordID, id.New())
}
