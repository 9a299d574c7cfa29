// Package score keeps each user's running score on the user record.
package score

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/btc-guess/internal/infrastructure/store"
)

var (
	ErrUserNotFound = errors.New("user not found")
)

const scoreAttribute = "score"

// Ledger applies additive score changes. Deltas are applied atomically by
// the store, so concurrent changes never overwrite each other.
type Ledger struct {
	store store.Store
	table string
	now   func() time.Time
}

// NewLedger creates a score ledger over the users table
func NewLedger(s store.Store, usersTable string) *Ledger {
	return &Ledger{store: s, table: usersTable, now: time.Now}
}

// Apply adds delta to the user's score and returns the new score. The score
// may go negative.
func (l *Ledger) Apply(ctx context.Context, userID string, delta int) (int, error) {
	item, err := l.store.Update(ctx, l.table, userID, store.Mutation{
		Add:       map[string]int{scoreAttribute: delta},
		Set:       map[string]any{"updatedAt": l.now().UTC()},
		Condition: store.Exists(store.KeyAttribute),
	})
	if errors.Is(err, store.ErrConditionFailed) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to apply score delta for %s: %w", userID, err)
	}
	return scoreOf(item)
}

// Get returns the user's current score; a user without a score has zero
func (l *Ledger) Get(ctx context.Context, userID string) (int, error) {
	item, err := l.store.Get(ctx, l.table, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to get score for %s: %w", userID, err)
	}
	if item == nil {
		return 0, ErrUserNotFound
	}
	return scoreOf(item)
}

func scoreOf(item store.Item) (int, error) {
	n, ok := item[scoreAttribute].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseFloat(n.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse score %q: %w", n.Value, err)
	}
	return int(v), nil
}
