package pending

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

type mockDynamo struct {
	items     map[string]map[string]types.AttributeValue
	putInput  *dynamodb.PutItemInput
	deleted   []string
	getErr    error
	deleteErr error
}

func itemID(key map[string]types.AttributeValue) string {
	scope := key["scope"].(*types.AttributeValueMemberS).Value
	k := key["key"].(*types.AttributeValueMemberS).Value
	return scope + "/" + k
}

func (m *mockDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInput = in
	if m.items == nil {
		m.items = make(map[string]map[string]types.AttributeValue)
	}
	m.items[itemID(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return &dynamodb.GetItemOutput{Item: m.items[itemID(in.Key)]}, nil
}

func (m *mockDynamo) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	id := itemID(in.Key)
	m.deleted = append(m.deleted, id)
	delete(m.items, id)
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoStorePutPersistsTTL(t *testing.T) {
	mock := &mockDynamo{}
	provider := NewDynamoProvider(mock, "pending-bookings", time.Hour, logging.Default())

	if err := SaveSessionID(context.Background(), provider.For("patient-1"), "cs_123"); err != nil {
		t.Fatalf("SaveSessionID returned error: %v", err)
	}
	if mock.putInput == nil {
		t.Fatal("expected PutItem to be called")
	}
	if got := *mock.putInput.TableName; got != "pending-bookings" {
		t.Fatalf("unexpected table %q", got)
	}

	var rec entryRecord
	if err := attributevalue.UnmarshalMap(mock.putInput.Item, &rec); err != nil {
		t.Fatalf("failed to unmarshal stored entry: %v", err)
	}
	if rec.Scope != "patient-1" || rec.Key != string(KeySessionID) || rec.Value != "cs_123" {
		t.Fatalf("unexpected record %+v", rec)
	}
	if rec.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL in the future")
	}
}

func TestDynamoStoreGetAndRemove(t *testing.T) {
	ctx := context.Background()
	mock := &mockDynamo{}
	store := NewDynamoProvider(mock, "pending-bookings", time.Hour, nil).For("patient-1")

	if err := SaveBooking(ctx, store, sampleBooking()); err != nil {
		t.Fatalf("SaveBooking returned error: %v", err)
	}
	got, err := LoadBooking(ctx, store)
	if err != nil {
		t.Fatalf("LoadBooking returned error: %v", err)
	}
	if got.PatientID != "P1" || got.TotalAmount != 550 {
		t.Fatalf("unexpected booking %+v", got)
	}

	if err := Clear(ctx, store); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if len(mock.deleted) != 2 {
		t.Fatalf("expected two deletes, got %v", mock.deleted)
	}
	if _, err := LoadBooking(ctx, store); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after clear, got %v", err)
	}
}

func TestDynamoStoreIgnoresExpiredItems(t *testing.T) {
	ctx := context.Background()
	mock := &mockDynamo{}
	provider := NewDynamoProvider(mock, "pending-bookings", time.Minute, nil)
	store := provider.For("patient-1")
	if err := SaveSessionID(ctx, store, "cs_old"); err != nil {
		t.Fatalf("SaveSessionID returned error: %v", err)
	}

	provider.now = func() time.Time { return time.Now().Add(time.Hour) }
	if _, err := LoadSessionID(ctx, store); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired entry to be treated as missing, got %v", err)
	}
}

func TestDynamoStoreWrapsErrors(t *testing.T) {
	mock := &mockDynamo{getErr: errors.New("throttled"), deleteErr: errors.New("denied")}
	store := NewDynamoProvider(mock, "pending-bookings", time.Hour, nil).For("p")

	if _, err := store.Get(context.Background(), KeySessionID); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
	if err := Clear(context.Background(), store); err == nil {
		t.Fatal("expected delete errors to surface")
	}
}

func TestNewDynamoProviderValidation(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for empty table name")
		}
	}()
	NewDynamoProvider(&mockDynamo{}, "", time.Hour, nil)
}
