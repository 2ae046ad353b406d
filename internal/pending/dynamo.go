package pending

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// entryRecord is one pending key. The table uses scope as partition key and
// key as sort key; expiresAt is registered as the table TTL attribute.
type entryRecord struct {
	Scope     string `dynamodbav:"scope"`
	Key       string `dynamodbav:"key"`
	Value     string `dynamodbav:"value"`
	UpdatedAt string `dynamodbav:"updatedAt"`
	ExpiresAt int64  `dynamodbav:"expiresAt,omitempty"`
}

// DynamoProvider stores pending entries in a DynamoDB table.
type DynamoProvider struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

func NewDynamoProvider(client dynamoAPI, tableName string, ttl time.Duration, logger *logging.Logger) *DynamoProvider {
	if client == nil {
		panic("pending: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("pending: table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoProvider{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

func (p *DynamoProvider) For(scope string) Store {
	return &dynamoStore{provider: p, scope: scope}
}

type dynamoStore struct {
	provider *DynamoProvider
	scope    string
}

func (s *dynamoStore) itemKey(key Key) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"scope": &types.AttributeValueMemberS{Value: s.scope},
		"key":   &types.AttributeValueMemberS{Value: string(key)},
	}
}

func (s *dynamoStore) Put(ctx context.Context, key Key, value string) error {
	if err := validKey(key); err != nil {
		return err
	}
	now := s.provider.now().UTC()
	item, err := attributevalue.MarshalMap(entryRecord{
		Scope:     s.scope,
		Key:       string(key),
		Value:     value,
		UpdatedAt: now.Format(time.RFC3339Nano),
		ExpiresAt: now.Add(s.provider.ttl).Unix(),
	})
	if err != nil {
		return fmt.Errorf("pending: failed to marshal entry: %w", err)
	}
	if _, err := s.provider.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.provider.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("pending: failed to persist %s: %w", key, err)
	}
	return nil
}

func (s *dynamoStore) Get(ctx context.Context, key Key) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	out, err := s.provider.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.provider.tableName),
		Key:            s.itemKey(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("pending: failed to fetch %s: %w", key, err)
	}
	if out.Item == nil {
		return "", ErrNotFound
	}
	var rec entryRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return "", fmt.Errorf("pending: failed to decode %s: %w", key, err)
	}
	// DynamoDB deletes expired items lazily.
	if rec.ExpiresAt > 0 && rec.ExpiresAt <= s.provider.now().Unix() {
		s.provider.logger.Debug("pending entry expired", "scope", s.scope, "key", string(key))
		return "", ErrNotFound
	}
	return rec.Value, nil
}

func (s *dynamoStore) Remove(ctx context.Context, key Key) error {
	if err := validKey(key); err != nil {
		return err
	}
	if _, err := s.provider.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.provider.tableName),
		Key:       s.itemKey(key),
	}); err != nil {
		return fmt.Errorf("pending: failed to delete %s: %w", key, err)
	}
	return nil
}
