package store

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDynamo records inputs and serves canned outputs
type fakeDynamo struct {
	putInputs    []*dynamodb.PutItemInput
	getInputs    []*dynamodb.GetItemInput
	updateInputs []*dynamodb.UpdateItemInput
	scanInputs   []*dynamodb.ScanInput

	getItem     Item
	updateOut   Item
	updateErr   error
	scanPages   [][]Item
	describeErr error
	created     []string
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.putInputs = append(f.putInputs, in)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.getInputs = append(f.getInputs, in)
	return &dynamodb.GetItemOutput{Item: f.getItem}, nil
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updateInputs = append(f.updateInputs, in)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &dynamodb.UpdateItemOutput{Attributes: f.updateOut}, nil
}

func (f *fakeDynamo) DeleteItem(_ context.Context, _ *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *fakeDynamo) Scan(_ context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	f.scanInputs = append(f.scanInputs, in)
	page := len(f.scanInputs) - 1
	if page >= len(f.scanPages) {
		return &dynamodb.ScanOutput{}, nil
	}
	out := &dynamodb.ScanOutput{Items: f.scanPages[page]}
	if page < len(f.scanPages)-1 {
		out.LastEvaluatedKey = keyOf("cursor")
	}
	return out, nil
}

func (f *fakeDynamo) DescribeTable(_ context.Context, in *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	if f.describeErr != nil && !contains(f.created, aws.ToString(in.TableName)) {
		return nil, f.describeErr
	}
	return &dynamodb.DescribeTableOutput{
		Table: &types.TableDescription{
			TableName:   in.TableName,
			TableStatus: types.TableStatusActive,
		},
	}, nil
}

func (f *fakeDynamo) CreateTable(_ context.Context, in *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	f.created = append(f.created, aws.ToString(in.TableName))
	return &dynamodb.CreateTableOutput{}, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestDynamoStore_GetMissingReturnsNil(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake)

	item, err := s.Get(context.Background(), "users", "u1")

	require.NoError(t, err)
	assert.Nil(t, item)
	require.Len(t, fake.getInputs, 1)
	assert.Equal(t, "u1", fake.getInputs[0].Key["id"].(*types.AttributeValueMemberS).Value)
}

func TestDynamoStore_PutRequiresID(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake)

	err := s.Put(context.Background(), "users", Item{})

	assert.ErrorIs(t, err, ErrMissingID)
	assert.Empty(t, fake.putInputs)
}

func TestDynamoStore_UpdateRendersExpressions(t *testing.T) {
	fake := &fakeDynamo{updateOut: Item{"id": &types.AttributeValueMemberS{Value: "u1"}}}
	s := NewDynamoStore(fake)

	_, err := s.Update(context.Background(), "users", "u1", Mutation{
		Set:       map[string]any{"updatedAt": "2024-01-01T00:00:00Z"},
		Add:       map[string]int{"score": -1},
		Condition: Exists("id"),
	})
	require.NoError(t, err)

	require.Len(t, fake.updateInputs, 1)
	in := fake.updateInputs[0]
	assert.Equal(t, "SET #n0 = :v0 ADD #n1 :v1", aws.ToString(in.UpdateExpression))
	assert.Equal(t, "attribute_exists(#n2)", aws.ToString(in.ConditionExpression))
	assert.Equal(t, map[string]string{"#n0": "updatedAt", "#n1": "score", "#n2": "id"}, in.ExpressionAttributeNames)
	assert.Equal(t, "-1", in.ExpressionAttributeValues[":v1"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, types.ReturnValueAllNew, in.ReturnValues)
}

func TestDynamoStore_UpdateResolveGuard(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake)

	_, err := s.Update(context.Background(), "guesses", "g1", Mutation{
		Set:       map[string]any{"isCorrect": true},
		Condition: Or(Missing("isCorrect"), Equals("isCorrect", nil)),
	})
	require.NoError(t, err)

	in := fake.updateInputs[0]
	assert.Equal(t, "SET #n0 = :v0", aws.ToString(in.UpdateExpression))
	assert.Equal(t, "(attribute_not_exists(#n0) OR #n0 = :v1)", aws.ToString(in.ConditionExpression))
}

func TestDynamoStore_UpdateMapsConditionalCheckFailed(t *testing.T) {
	fake := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{Message: aws.String("nope")}}
	s := NewDynamoStore(fake)

	_, err := s.Update(context.Background(), "users", "u1", Mutation{Add: map[string]int{"score": 1}})

	assert.ErrorIs(t, err, ErrConditionFailed)
}

func TestDynamoStore_UpdateWrapsOtherErrors(t *testing.T) {
	boom := errors.New("throttled")
	fake := &fakeDynamo{updateErr: boom}
	s := NewDynamoStore(fake)

	_, err := s.Update(context.Background(), "users", "u1", Mutation{Add: map[string]int{"score": 1}})

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrConditionFailed)
}

func TestDynamoStore_UpdateEmptyMutation(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake)

	_, err := s.Update(context.Background(), "users", "u1", Mutation{})

	assert.Error(t, err)
	assert.Empty(t, fake.updateInputs)
}

func TestDynamoStore_ScanFollowsPages(t *testing.T) {
	fake := &fakeDynamo{scanPages: [][]Item{
		{{"id": &types.AttributeValueMemberS{Value: "g1"}}},
		{{"id": &types.AttributeValueMemberS{Value: "g2"}}, {"id": &types.AttributeValueMemberS{Value: "g3"}}},
	}}
	s := NewDynamoStore(fake)

	items, err := s.Scan(context.Background(), "guesses", Or(Missing("isCorrect"), Equals("isCorrect", nil)))

	require.NoError(t, err)
	assert.Len(t, items, 3)
	require.Len(t, fake.scanInputs, 2)
	assert.Equal(t, "(attribute_not_exists(#n0) OR #n0 = :v0)", aws.ToString(fake.scanInputs[0].FilterExpression))
	assert.NotNil(t, fake.scanInputs[1].ExclusiveStartKey)
}

func TestDynamoStore_ScanWithoutFilter(t *testing.T) {
	fake := &fakeDynamo{}
	s := NewDynamoStore(fake)

	_, err := s.Scan(context.Background(), "users", nil)

	require.NoError(t, err)
	require.Len(t, fake.scanInputs, 1)
	assert.Nil(t, fake.scanInputs[0].FilterExpression)
	assert.Nil(t, fake.scanInputs[0].ExpressionAttributeNames)
}

func TestEnsureDynamoTables_CreatesMissing(t *testing.T) {
	fake := &fakeDynamo{describeErr: &types.ResourceNotFoundException{Message: aws.String("missing")}}

	created, err := EnsureDynamoTables(context.Background(), fake, "users", "guesses")

	require.NoError(t, err)
	assert.Equal(t, []string{"users", "guesses"}, created)
}

func TestEnsureDynamoTables_SkipsExisting(t *testing.T) {
	fake := &fakeDynamo{}

	created, err := EnsureDynamoTables(context.Background(), fake, "users")

	require.NoError(t, err)
	assert.Empty(t, created)
	assert.Empty(t, fake.created)
}

func TestEnsureDynamoTables_DescribeFailure(t *testing.T) {
	fake := &fakeDynamo{describeErr: errors.New("access denied")}

	_, err := EnsureDynamoTables(context.Background(), fake, "users")

	assert.Error(t, err)
	assert.Empty(t, fake.created)
}
