package store

import (
	"context"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRecord struct {
	ID    string `dynamodbav:"id"`
	Name  string `dynamodbav:"name"`
	Score int    `dynamodbav:"score"`
}

func mustItem(t *testing.T, v any) Item {
	t.Helper()
	item, err := attributevalue.MarshalMap(v)
	require.NoError(t, err)
	return item
}

func TestMemoryStore_PutAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Put(ctx, "users", mustItem(t, testRecord{ID: "u1", Name: "alice"}))
	require.NoError(t, err)

	item, err := s.Get(ctx, "users", "u1")
	require.NoError(t, err)
	require.NotNil(t, item)

	var rec testRecord
	require.NoError(t, attributevalue.UnmarshalMap(item, &rec))
	assert.Equal(t, "alice", rec.Name)
}

func TestMemoryStore_GetMissingReturnsNil(t *testing.T) {
	s := NewMemoryStore()

	item, err := s.Get(context.Background(), "users", "nope")

	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestMemoryStore_PutRequiresID(t *testing.T) {
	s := NewMemoryStore()

	err := s.Put(context.Background(), "users", Item{"name": &types.AttributeValueMemberS{Value: "x"}})

	assert.ErrorIs(t, err, ErrMissingID)
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "users", mustItem(t, testRecord{ID: "u1", Name: "alice"})))

	item, _ := s.Get(ctx, "users", "u1")
	item["name"] = &types.AttributeValueMemberS{Value: "mallory"}

	again, _ := s.Get(ctx, "users", "u1")
	assert.Equal(t, "alice", again["name"].(*types.AttributeValueMemberS).Value)
}

func TestMemoryStore_UpdateAddAndSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "users", mustItem(t, testRecord{ID: "u1", Name: "alice", Score: 2})))

	updated, err := s.Update(ctx, "users", "u1", Mutation{
		Set:       map[string]any{"name": "bob"},
		Add:       map[string]int{"score": -3},
		Condition: Exists("id"),
	})
	require.NoError(t, err)

	var rec testRecord
	require.NoError(t, attributevalue.UnmarshalMap(updated, &rec))
	assert.Equal(t, "bob", rec.Name)
	assert.Equal(t, -1, rec.Score)
}

func TestMemoryStore_UpdateConditionFailed(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Update(context.Background(), "users", "ghost", Mutation{
		Add:       map[string]int{"score": 1},
		Condition: Exists("id"),
	})

	assert.ErrorIs(t, err, ErrConditionFailed)
	item, _ := s.Get(context.Background(), "users", "ghost")
	assert.Nil(t, item)
}

func TestMemoryStore_UpdateWithoutConditionCreates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.Update(ctx, "users", "u9", Mutation{Add: map[string]int{"score": 1}})
	require.NoError(t, err)

	item, _ := s.Get(ctx, "users", "u9")
	require.NotNil(t, item)
	assert.Equal(t, "1", item["score"].(*types.AttributeValueMemberN).Value)
}

func TestMemoryStore_SetNilStoresNull(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "guesses", Item{"id": &types.AttributeValueMemberS{Value: "g1"}}))

	_, err := s.Update(ctx, "guesses", "g1", Mutation{Set: map[string]any{"isCorrect": nil}})
	require.NoError(t, err)

	items, err := s.Scan(ctx, "guesses", Equals("isCorrect", nil))
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMemoryStore_ScanFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "users", mustItem(t, testRecord{ID: "u1", Name: "alice"})))
	require.NoError(t, s.Put(ctx, "users", mustItem(t, testRecord{ID: "u2", Name: "bob"})))

	all, err := s.Scan(ctx, "users", nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	bobs, err := s.Scan(ctx, "users", Equals("name", "bob"))
	require.NoError(t, err)
	require.Len(t, bobs, 1)
	id, _ := ItemID(bobs[0])
	assert.Equal(t, "u2", id)
}

func TestMemoryStore_ScanEmptyTable(t *testing.T) {
	items, err := NewMemoryStore().Scan(context.Background(), "nothing", nil)

	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "users", mustItem(t, testRecord{ID: "u1"})))

	require.NoError(t, s.Delete(ctx, "users", "u1"))
	require.NoError(t, s.Delete(ctx, "users", "u1"))

	item, _ := s.Get(ctx, "users", "u1")
	assert.Nil(t, item)
}

func TestMemoryStore_ConcurrentAdds(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "users", mustItem(t, testRecord{ID: "u1"})))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, "users", "u1", Mutation{Add: map[string]int{"score": 1}})
		}()
	}
	wg.Wait()

	item, _ := s.Get(ctx, "users", "u1")
	var rec testRecord
	require.NoError(t, attributevalue.UnmarshalMap(item, &rec))
	assert.Equal(t, 50, rec.Score)
}

func TestMemoryStore_ResolveOnlyOnce(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "guesses", Item{
		"id":        &types.AttributeValueMemberS{Value: "g1"},
		"isCorrect": &types.AttributeValueMemberNULL{Value: true},
	}))

	guard := Mutation{
		Set:       map[string]any{"isCorrect": true},
		Condition: And(Exists("id"), Or(Missing("isCorrect"), Equals("isCorrect", nil))),
	}

	_, err := s.Update(ctx, "guesses", "g1", guard)
	require.NoError(t, err)

	_, err = s.Update(ctx, "guesses", "g1", guard)
	assert.ErrorIs(t, err, ErrConditionFailed)
}
