package sns

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/go-email-verification/internal/domain"
)

// PublishAPI is the subset of the SNS client the alerter uses.
type PublishAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// DeadLetterAlerter notifies operators on an SNS topic when a verification
// email is abandoned.
type DeadLetterAlerter struct {
	client   PublishAPI
	topicARN string
}

func NewClient(awsCfg aws.Config) *sns.Client {
	return sns.NewFromConfig(awsCfg)
}

func NewDeadLetterAlerter(client PublishAPI, topicARN string) *DeadLetterAlerter {
	return &DeadLetterAlerter{client: client, topicARN: topicARN}
}

func (a *DeadLetterAlerter) DeadLetter(ctx context.Context, job domain.DispatchJob, cause error) error {
	msg := fmt.Sprintf("verification email for record %s abandoned after %d attempts: %v",
		job.RecordID, job.Attempts, cause)
	_, err := a.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.topicARN),
		Subject:  aws.String("Verification email dead letter"),
		Message:  aws.String(msg),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"record_id": {DataType: aws.String("String"), StringValue: aws.String(job.RecordID)},
		},
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
