// Package dynamo implements the Store contract on DynamoDB. Single-table
// layout: attribute "pk" is the partition key and "sk" the sort key; all other
// attributes are the raw record fields.
package dynamo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"finanzas-sd/db"
	finerr "finanzas-sd/pkg/errors"
)

// Config holds DynamoDB connection configuration.
type Config struct {
	Table    string
	Region   string
	Endpoint string // non-empty for local development against dynamodb-local
}

// Store implements db.Store over one DynamoDB table.
type Store struct {
	client *dynamodb.Client
	table  string
}

// NewStore builds a store from the default AWS credential chain.
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, table: cfg.Table}, nil
}

// NewStoreWithClient wires an existing client, for tests and custom setups.
func NewStoreWithClient(client *dynamodb.Client, table string) *Store {
	return &Store{client: client, table: table}
}

func (s *Store) Get(ctx context.Context, key db.Key) (db.Item, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       keyAttrs(key),
	})
	if err != nil {
		return nil, finerr.NewStoreUnavailable("dynamodb get failed", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	return unmarshalItem(out.Item)
}

func (s *Store) Put(ctx context.Context, key db.Key, item db.Item) error {
	attrs, err := marshalItem(key, item)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      attrs,
	})
	if err != nil {
		return finerr.NewStoreUnavailable("dynamodb put failed", err)
	}
	return nil
}

func (s *Store) PutIfAbsent(ctx context.Context, key db.Key, item db.Item) error {
	attrs, err := marshalItem(key, item)
	if err != nil {
		return err
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                attrs,
		ConditionExpression: aws.String("attribute_not_exists(pk) AND attribute_not_exists(sk)"),
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return db.ErrConditionFailed
		}
		return finerr.NewStoreUnavailable("dynamodb conditional put failed", err)
	}
	return nil
}

func (s *Store) QueryPrefix(ctx context.Context, partition, prefix, cursor string, limit int) (db.Page, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: partition},
			":prefix": &types.AttributeValueMemberS{Value: prefix},
		},
	}
	if limit > 0 {
		input.Limit = aws.Int32(int32(limit))
	}
	if cursor != "" {
		start, err := decodeCursor(cursor)
		if err != nil {
			return db.Page{}, finerr.NewValidation("malformed continuation token", partition)
		}
		input.ExclusiveStartKey = start
	}

	out, err := s.client.Query(ctx, input)
	if err != nil {
		return db.Page{}, finerr.NewStoreUnavailable("dynamodb query failed", err)
	}

	page := db.Page{}
	for _, raw := range out.Items {
		item, err := unmarshalItem(raw)
		if err != nil {
			return db.Page{}, err
		}
		page.Items = append(page.Items, item)
	}
	if len(out.LastEvaluatedKey) > 0 {
		page.NextCursor, err = encodeCursor(out.LastEvaluatedKey)
		if err != nil {
			return db.Page{}, err
		}
	}
	return page, nil
}

func keyAttrs(key db.Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: key.Partition},
		"sk": &types.AttributeValueMemberS{Value: key.Sort},
	}
}

func marshalItem(key db.Key, item db.Item) (map[string]types.AttributeValue, error) {
	attrs, err := attributevalue.MarshalMap(map[string]any(item))
	if err != nil {
		return nil, finerr.NewStoreUnavailable("marshal item", err)
	}
	attrs["pk"] = &types.AttributeValueMemberS{Value: key.Partition}
	attrs["sk"] = &types.AttributeValueMemberS{Value: key.Sort}
	return attrs, nil
}

func unmarshalItem(attrs map[string]types.AttributeValue) (db.Item, error) {
	var raw map[string]any
	if err := attributevalue.UnmarshalMap(attrs, &raw); err != nil {
		return nil, finerr.NewStoreUnavailable("unmarshal item", err)
	}
	delete(raw, "pk")
	delete(raw, "sk")
	return raw, nil
}

// Continuation tokens are the marshaled LastEvaluatedKey, JSON-encoded and
// base64-wrapped so they stay opaque to callers.
func encodeCursor(lek map[string]types.AttributeValue) (string, error) {
	var plain map[string]string
	if err := attributevalue.UnmarshalMap(lek, &plain); err != nil {
		return "", finerr.NewStoreUnavailable("encode continuation token", err)
	}
	buf, err := json.Marshal(plain)
	if err != nil {
		return "", finerr.NewStoreUnavailable("encode continuation token", err)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	buf, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, err
	}
	var plain map[string]string
	if err := json.Unmarshal(buf, &plain); err != nil {
		return nil, err
	}
	out := make(map[string]types.AttributeValue, len(plain))
	for k, v := range plain {
		out[k] = &types.AttributeValueMemberS{Value: v}
	}
	return out, nil
}
