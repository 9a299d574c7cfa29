package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableAdminAPI is the subset of the DynamoDB client needed to provision tables.
type TableAdminAPI interface {
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// tableReadyTimeout bounds the wait for a freshly created table to become ACTIVE
const tableReadyTimeout = 2 * time.Minute

// EnsureDynamoTables creates every missing table with a string hash key "id"
// and on-demand billing. It returns the names of the tables it created.
func EnsureDynamoTables(ctx context.Context, client TableAdminAPI, tables ...string) ([]string, error) {
	var created []string

	for _, table := range tables {
		exists, err := dynamoTableExists(ctx, client, table)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		_, err = client.CreateTable(ctx, &dynamodb.CreateTableInput{
			TableName: aws.String(table),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String(KeyAttribute), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String(KeyAttribute), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode: types.BillingModePayPerRequest,
		})
		if err != nil {
			return created, fmt.Errorf("failed to create table %s: %w", table, err)
		}

		waiter := dynamodb.NewTableExistsWaiter(client)
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, tableReadyTimeout); err != nil {
			return created, fmt.Errorf("table %s did not become active: %w", table, err)
		}
		created = append(created, table)
	}

	return created, nil
}

func dynamoTableExists(ctx context.Context, client TableAdminAPI, table string) (bool, error) {
	_, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(table),
	})
	if err == nil {
		return true, nil
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		return false, nil
	}
	return false, fmt.Errorf("failed to describe table %s: %w", table, err)
}
