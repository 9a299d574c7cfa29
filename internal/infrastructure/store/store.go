package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

var (
	// ErrConditionFailed is returned by Update when Mutation.Condition does not hold.
	ErrConditionFailed = errors.New("condition check failed")
	// ErrMissingID is returned when an item has no string "id" attribute.
	ErrMissingID = errors.New("item has no id attribute")
)

// KeyAttribute is the hash key of every collection.
const KeyAttribute = "id"

// Item is a schema-less record. DynamoDB attribute values are used by every
// backend so that NULL and absent attributes stay distinguishable.
type Item = map[string]types.AttributeValue

// Mutation describes an update of a single item.
type Mutation struct {
	// Set overwrites attributes; a nil value stores an explicit NULL.
	Set map[string]any
	// Add increments numeric attributes, treating absent ones as zero.
	Add map[string]int
	// Condition must hold against the stored item, or Update fails with
	// ErrConditionFailed. A nil Condition always holds.
	Condition Filter
}

// Store is the key-value persistence used by the ledgers. Every collection is
// keyed by the string attribute "id". Scans are unordered.
type Store interface {
	Put(ctx context.Context, table string, item Item) error
	// Get returns nil, nil when the item does not exist.
	Get(ctx context.Context, table, id string) (Item, error)
	// Update applies m and returns the item as stored afterwards. Like
	// DynamoDB, updating an absent item creates it unless the condition
	// forbids it.
	Update(ctx context.Context, table, id string, m Mutation) (Item, error)
	Delete(ctx context.Context, table, id string) error
	// Scan returns every item matching filter; a nil filter matches all.
	Scan(ctx context.Context, table string, filter Filter) ([]Item, error)
}

// ItemID returns the string id attribute of an item.
func ItemID(item Item) (string, error) {
	v, ok := item[KeyAttribute].(*types.AttributeValueMemberS)
	if !ok || v.Value == "" {
		return "", ErrMissingID
	}
	return v.Value, nil
}

// applyMutation computes the item that results from applying m to current.
// current may be nil. The returned item is a fresh map.
func applyMutation(id string, current Item, m Mutation) (Item, error) {
	if !Match(m.Condition, current) {
		return nil, ErrConditionFailed
	}

	next := maps.Clone(current)
	if next == nil {
		next = Item{KeyAttribute: &types.AttributeValueMemberS{Value: id}}
	}

	for field, value := range m.Set {
		av, err := marshalValue(value)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", field, err)
		}
		next[field] = av
	}

	for field, delta := range m.Add {
		base := 0.0
		if n, ok := next[field].(*types.AttributeValueMemberN); ok {
			parsed, err := strconv.ParseFloat(n.Value, 64)
			if err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", field, err)
			}
			base = parsed
		}
		next[field] = &types.AttributeValueMemberN{
			Value: strconv.FormatFloat(base+float64(delta), 'f', -1, 64),
		}
	}

	return next, nil
}

func marshalValue(value any) (types.AttributeValue, error) {
	if value == nil {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	return attributevalue.Marshal(value)
}
