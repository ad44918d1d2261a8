package archive

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoDBAPI is the subset of the DynamoDB client the catalog uses.
// Narrowed for test fakes.
type DynamoDBAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoDBCatalog is a Catalog backed by one DynamoDB table with partition
// key "pk" (string). Runs live under "run#<id>", current pointers under
// "current#<index>". Run registration is a conditional write, so two
// publishers racing on one run id cannot both succeed.
//
// Expected table:
//
//	aws dynamodb create-table \
//	  --table-name pairgo-runs \
//	  --attribute-definitions AttributeName=pk,AttributeType=S \
//	  --key-schema AttributeName=pk,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DynamoDBCatalog struct {
	client DynamoDBAPI
	table  string
}

var _ Catalog = (*DynamoDBCatalog)(nil)

// NewDynamoDBCatalog creates a catalog over the given table.
func NewDynamoDBCatalog(client DynamoDBAPI, table string) *DynamoDBCatalog {
	return &DynamoDBCatalog{
		client: client,
		table:  table,
	}
}

func runKey(runID string) string    { return "run#" + runID }
func currentKey(index string) string { return "current#" + index }

// PutRun implements Catalog. The write is guarded by
// attribute_not_exists(pk): a second registration of the same run id fails
// with ErrAlreadyPublished.
func (c *DynamoDBCatalog) PutRun(ctx context.Context, rec RunRecord) error {
	_, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"pk":           &types.AttributeValueMemberS{Value: runKey(rec.RunID)},
			"run_id":       &types.AttributeValueMemberS{Value: rec.RunID},
			"index_name":   &types.AttributeValueMemberS{Value: rec.Index},
			"k":            &types.AttributeValueMemberN{Value: strconv.Itoa(rec.K)},
			"item_count":   &types.AttributeValueMemberN{Value: strconv.Itoa(rec.ItemCount)},
			"created_at":   &types.AttributeValueMemberS{Value: rec.CreatedAt.UTC().Format(time.RFC3339Nano)},
			"manifest_key": &types.AttributeValueMemberS{Value: rec.ManifestKey},
		},
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return fmt.Errorf("%w: %s", ErrAlreadyPublished, rec.RunID)
		}
		return fmt.Errorf("archive: put run %s: %w", rec.RunID, err)
	}
	return nil
}

// GetRun implements Catalog.
func (c *DynamoDBCatalog) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: runKey(runID)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return RunRecord{}, fmt.Errorf("archive: get run %s: %w", runID, err)
	}
	if out.Item == nil {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return decodeRun(out.Item)
}

// SetCurrent implements Catalog. The pointer is an unconditional overwrite:
// publishing a newer run moves the index forward.
func (c *DynamoDBCatalog) SetCurrent(ctx context.Context, index, runID string) error {
	if _, err := c.GetRun(ctx, runID); err != nil {
		return err
	}
	_, err := c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item: map[string]types.AttributeValue{
			"pk":     &types.AttributeValueMemberS{Value: currentKey(index)},
			"run_id": &types.AttributeValueMemberS{Value: runID},
		},
	})
	if err != nil {
		return fmt.Errorf("archive: set current %s: %w", index, err)
	}
	return nil
}

// Current implements Catalog.
func (c *DynamoDBCatalog) Current(ctx context.Context, index string) (string, error) {
	out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"pk": &types.AttributeValueMemberS{Value: currentKey(index)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("archive: current %s: %w", index, err)
	}
	if out.Item == nil {
		return "", fmt.Errorf("%w: no current run for index %s", ErrRunNotFound, index)
	}
	attr, ok := out.Item["run_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("archive: current %s: malformed item", index)
	}
	return attr.Value, nil
}

func decodeRun(item map[string]types.AttributeValue) (RunRecord, error) {
	var rec RunRecord

	str := func(name string) (string, error) {
		attr, ok := item[name].(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("archive: missing attribute %s", name)
		}
		return attr.Value, nil
	}
	num := func(name string) (int, error) {
		attr, ok := item[name].(*types.AttributeValueMemberN)
		if !ok {
			return 0, fmt.Errorf("archive: missing attribute %s", name)
		}
		return strconv.Atoi(attr.Value)
	}

	var err error
	if rec.RunID, err = str("run_id"); err != nil {
		return rec, err
	}
	if rec.Index, err = str("index_name"); err != nil {
		return rec, err
	}
	if rec.K, err = num("k"); err != nil {
		return rec, err
	}
	if rec.ItemCount, err = num("item_count"); err != nil {
		return rec, err
	}
	if rec.ManifestKey, err = str("manifest_key"); err != nil {
		return rec, err
	}
	created, err := str("created_at")
	if err != nil {
		return rec, err
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return rec, fmt.Errorf("archive: bad created_at: %w", err)
	}
	return rec, nil
}
