package store

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Filter is a typed predicate over an Item. It is evaluated in memory by
// Match and rendered to a DynamoDB expression by the Dynamo backend.
type Filter interface {
	match(item Item) bool
	render(e *expression) string
}

// Equals matches items whose attribute equals value. A nil value matches an
// explicit NULL attribute only, never an absent one.
func Equals(field string, value any) Filter {
	av, err := marshalValue(value)
	return equalsFilter{field: field, value: av, err: err}
}

// Missing matches items that do not carry the attribute at all.
func Missing(field string) Filter { return missingFilter{field: field} }

// Exists matches items that carry the attribute, NULL included.
func Exists(field string) Filter { return existsFilter{field: field} }

// Or matches when any of the filters matches.
func Or(filters ...Filter) Filter { return anyFilter{filters: filters} }

// And matches when all of the filters match.
func And(filters ...Filter) Filter { return allFilter{filters: filters} }

// Match reports whether item satisfies f. A nil filter matches everything,
// including a nil item.
func Match(f Filter, item Item) bool {
	if f == nil {
		return true
	}
	return f.match(item)
}

type equalsFilter struct {
	field string
	value types.AttributeValue
	err   error
}

func (f equalsFilter) match(item Item) bool {
	if f.err != nil {
		return false
	}
	current, ok := item[f.field]
	return ok && attributeEqual(current, f.value)
}

func (f equalsFilter) render(e *expression) string {
	if f.err != nil {
		e.fail(fmt.Errorf("invalid value for %s: %w", f.field, f.err))
	}
	return e.name(f.field) + " = " + e.value(f.value)
}

type missingFilter struct{ field string }

func (f missingFilter) match(item Item) bool {
	_, ok := item[f.field]
	return !ok
}

func (f missingFilter) render(e *expression) string {
	return "attribute_not_exists(" + e.name(f.field) + ")"
}

type existsFilter struct{ field string }

func (f existsFilter) match(item Item) bool {
	_, ok := item[f.field]
	return ok
}

func (f existsFilter) render(e *expression) string {
	return "attribute_exists(" + e.name(f.field) + ")"
}

type anyFilter struct{ filters []Filter }

func (f anyFilter) match(item Item) bool {
	for _, sub := range f.filters {
		if Match(sub, item) {
			return true
		}
	}
	return false
}

func (f anyFilter) render(e *expression) string {
	return e.join(f.filters, " OR ")
}

type allFilter struct{ filters []Filter }

func (f allFilter) match(item Item) bool {
	for _, sub := range f.filters {
		if !Match(sub, item) {
			return false
		}
	}
	return true
}

func (f allFilter) render(e *expression) string {
	return e.join(f.filters, " AND ")
}

func attributeEqual(a, b types.AttributeValue) bool {
	switch av := a.(type) {
	case *types.AttributeValueMemberS:
		bv, ok := b.(*types.AttributeValueMemberS)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberN:
		bv, ok := b.(*types.AttributeValueMemberN)
		if !ok {
			return false
		}
		x, errX := strconv.ParseFloat(av.Value, 64)
		y, errY := strconv.ParseFloat(bv.Value, 64)
		if errX != nil || errY != nil {
			return av.Value == bv.Value
		}
		return x == y
	case *types.AttributeValueMemberBOOL:
		bv, ok := b.(*types.AttributeValueMemberBOOL)
		return ok && av.Value == bv.Value
	case *types.AttributeValueMemberNULL:
		_, ok := b.(*types.AttributeValueMemberNULL)
		return ok
	default:
		return reflect.DeepEqual(a, b)
	}
}

// expression accumulates placeholder names and values while rendering
// filters and mutations into DynamoDB expression strings.
type expression struct {
	names  map[string]string
	values map[string]types.AttributeValue
	err    error
}

func newExpression() *expression {
	return &expression{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

func (e *expression) name(field string) string {
	for placeholder, existing := range e.names {
		if existing == field {
			return placeholder
		}
	}
	placeholder := fmt.Sprintf("#n%d", len(e.names))
	e.names[placeholder] = field
	return placeholder
}

func (e *expression) value(av types.AttributeValue) string {
	placeholder := fmt.Sprintf(":v%d", len(e.values))
	e.values[placeholder] = av
	return placeholder
}

func (e *expression) join(filters []Filter, sep string) string {
	if len(filters) == 0 {
		e.fail(fmt.Errorf("empty compound filter"))
		return ""
	}
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		parts = append(parts, f.render(e))
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return "(" + strings.Join(parts, sep) + ")"
}

func (e *expression) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// attributeNames returns nil when no names were used; DynamoDB rejects empty maps.
func (e *expression) attributeNames() map[string]string {
	if len(e.names) == 0 {
		return nil
	}
	return e.names
}

func (e *expression) attributeValues() map[string]types.AttributeValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values
}
