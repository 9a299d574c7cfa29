package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore stores items in DynamoDB tables keyed by "id".
type DynamoStore struct {
	client DynamoAPI
}

func NewDynamoStore(client DynamoAPI) *DynamoStore {
	return &DynamoStore{client: client}
}

// NewDynamoClient builds a DynamoDB client for region. A non-empty endpoint
// points the client at DynamoDB Local or another compatible server.
func NewDynamoClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

// Put stores an item, overwriting any existing item with the same id
func (s *DynamoStore) Put(ctx context.Context, table string, item Item) error {
	if _, err := ItemID(item); err != nil {
		return err
	}

	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("failed to put item: %w", err)
	}
	return nil
}

// Get retrieves an item by id
func (s *DynamoStore) Get(ctx context.Context, table, id string) (Item, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(table),
		Key:       keyOf(id),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}
	return result.Item, nil
}

// Update renders the mutation into an UpdateExpression and returns ALL_NEW attributes
func (s *DynamoStore) Update(ctx context.Context, table, id string, m Mutation) (Item, error) {
	input, err := buildUpdateInput(table, id, m)
	if err != nil {
		return nil, err
	}

	result, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrConditionFailed
		}
		return nil, fmt.Errorf("failed to update item: %w", err)
	}
	return result.Attributes, nil
}

// Delete removes an item by id
func (s *DynamoStore) Delete(ctx context.Context, table, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(table),
		Key:       keyOf(id),
	})
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// Scan reads the whole table page by page, filtering server-side
func (s *DynamoStore) Scan(ctx context.Context, table string, filter Filter) ([]Item, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(table),
	}

	if filter != nil {
		e := newExpression()
		input.FilterExpression = aws.String(filter.render(e))
		if e.err != nil {
			return nil, e.err
		}
		input.ExpressionAttributeNames = e.attributeNames()
		input.ExpressionAttributeValues = e.attributeValues()
	}

	var items []Item
	paginator := dynamodb.NewScanPaginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		items = append(items, page.Items...)
	}
	return items, nil
}

func buildUpdateInput(table, id string, m Mutation) (*dynamodb.UpdateItemInput, error) {
	if len(m.Set) == 0 && len(m.Add) == 0 {
		return nil, fmt.Errorf("empty mutation for %s/%s", table, id)
	}

	e := newExpression()
	var clauses []string

	if len(m.Set) > 0 {
		fields := slices.Sorted(maps.Keys(m.Set))
		assignments := make([]string, 0, len(fields))
		for _, field := range fields {
			av, err := marshalValue(m.Set[field])
			if err != nil {
				return nil, fmt.Errorf("failed to marshal %s: %w", field, err)
			}
			assignments = append(assignments, e.name(field)+" = "+e.value(av))
		}
		clauses = append(clauses, "SET "+strings.Join(assignments, ", "))
	}

	if len(m.Add) > 0 {
		fields := slices.Sorted(maps.Keys(m.Add))
		increments := make([]string, 0, len(fields))
		for _, field := range fields {
			av := &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", m.Add[field])}
			increments = append(increments, e.name(field)+" "+e.value(av))
		}
		clauses = append(clauses, "ADD "+strings.Join(increments, ", "))
	}

	input := &dynamodb.UpdateItemInput{
		TableName:        aws.String(table),
		Key:              keyOf(id),
		UpdateExpression: aws.String(strings.Join(clauses, " ")),
		ReturnValues:     types.ReturnValueAllNew,
	}

	if m.Condition != nil {
		input.ConditionExpression = aws.String(m.Condition.render(e))
	}
	if e.err != nil {
		return nil, e.err
	}

	input.ExpressionAttributeNames = e.attributeNames()
	input.ExpressionAttributeValues = e.attributeValues()
	return input, nil
}

func keyOf(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		KeyAttribute: &types.AttributeValueMemberS{Value: id},
	}
}
