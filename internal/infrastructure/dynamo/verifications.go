package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-email-verification/internal/domain"
	"github.com/go-email-verification/internal/pkg/id"
)

// recordItem is the stored shape of a VerificationRecord (pk = REC#<id>).
type recordItem struct {
	PK string `dynamodbav:"pk"`
	domain.VerificationRecord
}

// emailItem reserves an address for exactly one record (pk = EMAIL#<email>).
type emailItem struct {
	PK             string `dynamodbav:"pk"`
	VerificationID string `dynamodbav:"verification_id"`
}

// VerificationRepo stores verification records in a single DynamoDB table.
// Every read is strongly consistent so a redemption sees the latest state.
type VerificationRepo struct {
	client    API
	tableName string
	newID     func() string
}

func NewVerificationRepo(client API, tableName string) *VerificationRepo {
	return &VerificationRepo{client: client, tableName: tableName, newID: id.New}
}

// GetOrCreate returns the record for email, creating it when none exists.
// Concurrent creators for the same email converge on one record.
func (r *VerificationRepo) GetOrCreate(ctx context.Context, email string, now time.Time) (*domain.VerificationRecord, bool, error) {
	if rec, err := r.getByEmail(ctx, email); err == nil {
		return rec, false, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	rec := &domain.VerificationRecord{
		ID:              r.newID(),
		Email:           email,
		LastRequestedAt: now,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := r.create(ctx, rec)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return nil, false, err
	}

	// Lost the race for this email; the winner's record is now readable.
	existing, err := r.getByEmail(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("read record after conflict: %w", err)
	}
	return existing, false, nil
}

func (r *VerificationRepo) Get(ctx context.Context, recordID string) (*domain.VerificationRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            recordKey(recordID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("verification record not found: %w", domain.ErrNotFound)
	}
	var item recordItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal verification record: %w", err)
	}
	return &item.VerificationRecord, nil
}

// MarkVerified flips verified to true with a conditional write. A failed
// condition on an existing item means another call already verified it.
func (r *VerificationRepo) MarkVerified(ctx context.Context, recordID string, now time.Time) (domain.MarkResult, error) {
	ts, err := attributevalue.Marshal(now)
	if err != nil {
		return 0, fmt.Errorf("marshal timestamp: %w", err)
	}
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 recordKey(recordID),
		UpdateExpression:    aws.String("SET #v = :t, #u = :now"),
		ConditionExpression: aws.String("attribute_exists(#pk) AND #v = :f"),
		ExpressionAttributeNames: map[string]string{
			"#pk": fieldPK,
			"#v":  fieldVerified,
			"#u":  fieldUpdatedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t":   &types.AttributeValueMemberBOOL{Value: true},
			":f":   &types.AttributeValueMemberBOOL{Value: false},
			":now": ts,
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return domain.MarkVerified, nil
	}
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if len(ccf.Item) > 0 {
			return domain.MarkAlreadyVerified, nil
		}
		return 0, fmt.Errorf("verification record not found: %w", domain.ErrNotFound)
	}
	return 0, err
}

// MarkRequested records the time of the latest token issuance.
func (r *VerificationRepo) MarkRequested(ctx context.Context, recordID string, at time.Time) error {
	ue, err := buildUpdateExpr(map[string]interface{}{
		fieldLastRequestedAt: at,
		fieldUpdatedAt:       at,
	})
	if err != nil {
		return err
	}
	ue.Names["#pk"] = fieldPK
	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       recordKey(recordID),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("attribute_exists(#pk)"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return fmt.Errorf("verification record not found: %w", domain.ErrNotFound)
	}
	return err
}

func (r *VerificationRepo) getByEmail(ctx context.Context, email string) (*domain.VerificationRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            emailKey(email),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, err
	}
	if out.Item == nil {
		return nil, fmt.Errorf("email not registered: %w", domain.ErrNotFound)
	}
	var lock emailItem
	if err := attributevalue.UnmarshalMap(out.Item, &lock); err != nil {
		return nil, fmt.Errorf("unmarshal email item: %w", err)
	}
	return r.Get(ctx, lock.VerificationID)
}

// create writes the record and its email reservation atomically.
func (r *VerificationRepo) create(ctx context.Context, rec *domain.VerificationRecord) error {
	recItem, err := attributevalue.MarshalMap(recordItem{PK: recordPrefix + rec.ID, VerificationRecord: *rec})
	if err != nil {
		return fmt.Errorf("marshal verification record: %w", err)
	}
	lockItem, err := attributevalue.MarshalMap(emailItem{PK: emailPrefix + rec.Email, VerificationID: rec.ID})
	if err != nil {
		return fmt.Errorf("marshal email item: %w", err)
	}
	notExists := aws.String("attribute_not_exists(#pk)")
	names := map[string]string{"#pk": fieldPK}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:                aws.String(r.tableName),
				Item:                     recItem,
				ConditionExpression:      notExists,
				ExpressionAttributeNames: names,
			}},
			{Put: &types.Put{
				TableName:                aws.String(r.tableName),
				Item:                     lockItem,
				ConditionExpression:      notExists,
				ExpressionAttributeNames: names,
			}},
		},
	})
	if err == nil {
		return nil
	}
	var tce *types.TransactionCanceledException
	if errors.As(err, &tce) {
		for _, reason := range tce.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("email already registered: %w", domain.ErrConflict)
			}
		}
	}
	return fmt.Errorf("create verification record: %w", err)
}
