package kv

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/stupiduntilnot/chatrelay/internal/db"
)

// exerciseStore runs the shared contract every backend must satisfy.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, found, err := s.Get(ctx, "42_7")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, s.Put(ctx, "42_7", "first"))
	v, found, err := s.Get(ctx, "42_7")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "first", v)

	require.NoError(t, s.Put(ctx, "42_7", "second\n\nrecord"))
	v, _, err = s.Get(ctx, "42_7")
	require.NoError(t, err)
	require.Equal(t, "second\n\nrecord", v)

	require.NoError(t, s.Put(ctx, "43_7", "other"))
	require.NoError(t, s.Delete(ctx, "42_7"))
	_, found, err = s.Get(ctx, "42_7")
	require.NoError(t, err)
	require.False(t, found)

	v, found, err = s.Get(ctx, "43_7")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "other", v)

	require.NoError(t, s.Delete(ctx, "missing"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLStoreSQLite(t *testing.T) {
	database, err := db.OpenDB(t.TempDir() + "/kv.db")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.InitSchema(database))

	s := NewSQLStore(database, SQLite)
	exerciseStore(t, s)
	require.NoError(t, s.Close())
	require.NoError(t, database.Ping(), "borrowed handle must stay open")
}

func TestDialectByName(t *testing.T) {
	for _, name := range []string{"sqlite", "postgres", "mysql"} {
		d, ok := DialectByName(name)
		require.True(t, ok, name)
		require.Equal(t, name, d.Name)
	}
	_, ok := DialectByName("oracle")
	require.False(t, ok)
	require.Contains(t, Postgres.SelectSQL, "$1")
	require.Contains(t, MySQL.UpsertSQL, "ON DUPLICATE KEY")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := OpenRedis(context.Background(), mr.Addr(), "", "chatrelay:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	exerciseStore(t, s)

	require.NoError(t, s.Put(context.Background(), "9_7", "x"))
	got, err := mr.Get("chatrelay:9_7")
	require.NoError(t, err)
	require.Equal(t, "x", got)
}

func TestRedisStoreUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStore(client, "p:")
	mr.Close()

	_, _, err := s.Get(context.Background(), "1_2")
	require.Error(t, err)
}

type fakeDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newFakeDynamo() *fakeDynamo {
	return &fakeDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(item map[string]types.AttributeValue) string {
	return item[dynamoKeyAttr].(*types.AttributeValueMemberS).Value
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if !aws.ToBool(in.ConsistentRead) {
		return nil, errors.New("expected consistent read")
	}
	return &dynamodb.GetItemOutput{Item: f.items[keyOf(in.Key)]}, nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	delete(f.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func TestDynamoStore(t *testing.T) {
	fake := newFakeDynamo()
	exerciseStore(t, NewDynamoStore(fake, "sessions"))
}

func TestDynamoStoreError(t *testing.T) {
	fake := newFakeDynamo()
	fake.err = errors.New("throttled")
	s := NewDynamoStore(fake, "sessions")
	_, _, err := s.Get(context.Background(), "1_2")
	require.ErrorIs(t, err, fake.err)
	require.ErrorIs(t, s.Put(context.Background(), "1_2", "v"), fake.err)
	require.ErrorIs(t, s.Delete(context.Background(), "1_2"), fake.err)
}
