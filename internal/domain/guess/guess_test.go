package guess

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/btc-guess/internal/infrastructure/store"
	"github.com/example/btc-guess/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const table = "guesses"

func newTestService() (*Service, *mocks.MockStore) {
	st := mocks.NewMockStore()
	return NewService(st, table), st
}

func seed(t *testing.T, st *mocks.MockStore, id string, isCorrect types.AttributeValue) {
	t.Helper()
	item := store.Item{
		"id":              &types.AttributeValueMemberS{Value: id},
		"userId":          &types.AttributeValueMemberS{Value: "user-1"},
		"priceSnapshotId": &types.AttributeValueMemberS{Value: "snap-1"},
		"direction":       &types.AttributeValueMemberS{Value: "UP"},
		"createdAt":       &types.AttributeValueMemberS{Value: "2024-03-01T12:00:00Z"},
	}
	if isCorrect != nil {
		item["isCorrect"] = isCorrect
	}
	require.NoError(t, st.Backing().Put(context.Background(), table, item))
}

// ============================================
// Direction / Outcome
// ============================================

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"UP", Up, false},
		{"down", Down, false},
		{" Up ", Up, false},
		{"SIDEWAYS", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirection(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDirection)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOutcome(t *testing.T) {
	assert.Nil(t, Unresolved.IsCorrect())
	assert.True(t, *Correct.IsCorrect())
	assert.False(t, *Incorrect.IsCorrect())

	assert.Equal(t, 0, Unresolved.Delta())
	assert.Equal(t, 1, Correct.Delta())
	assert.Equal(t, -1, Incorrect.Delta())

	assert.Equal(t, Correct, OutcomeOf(true))
	assert.Equal(t, Incorrect, OutcomeOf(false))
	assert.Equal(t, "unresolved", Unresolved.String())
}

// ============================================
// Create / List
// ============================================

func TestService_Create_PersistsExplicitNull(t *testing.T) {
	svc, st := newTestService()

	g, err := svc.Create(context.Background(), "snap-1", Up, "user-1")

	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, Unresolved, g.Outcome)
	assert.Nil(t, g.ResolvedAt)

	require.Len(t, st.PutCalls, 1)
	item := st.PutCalls[0].Item
	assert.IsType(t, &types.AttributeValueMemberNULL{}, item["isCorrect"])
	assert.NotContains(t, item, "resolvedAt")
	assert.Equal(t, "UP", item["direction"].(*types.AttributeValueMemberS).Value)
	assert.Equal(t, "snap-1", item["priceSnapshotId"].(*types.AttributeValueMemberS).Value)
}

func TestService_Create_InvalidDirection(t *testing.T) {
	svc, st := newTestService()

	g, err := svc.Create(context.Background(), "snap-1", Direction("LEFT"), "user-1")

	assert.ErrorIs(t, err, ErrInvalidDirection)
	assert.Nil(t, g)
	assert.Empty(t, st.PutCalls)
}

func TestService_Create_StoreFailure(t *testing.T) {
	svc, st := newTestService()
	st.PutErr = errors.New("unavailable")

	_, err := svc.Create(context.Background(), "snap-1", Down, "user-1")

	assert.ErrorIs(t, err, st.PutErr)
}

func TestService_ListUnresolved_MixedStates(t *testing.T) {
	svc, st := newTestService()
	seed(t, st, "absent", nil)
	seed(t, st, "null", &types.AttributeValueMemberNULL{Value: true})
	seed(t, st, "true", &types.AttributeValueMemberBOOL{Value: true})
	seed(t, st, "false", &types.AttributeValueMemberBOOL{Value: false})

	guesses, err := svc.ListUnresolved(context.Background())

	require.NoError(t, err)
	ids := make([]string, 0, len(guesses))
	for _, g := range guesses {
		ids = append(ids, g.ID)
		assert.Equal(t, Unresolved, g.Outcome)
	}
	assert.ElementsMatch(t, []string{"absent", "null"}, ids)
}

func TestService_ListByUser(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, err := svc.Create(ctx, "snap-1", Up, "alice")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "snap-1", Down, "bob")
	require.NoError(t, err)
	_, err = svc.Create(ctx, "snap-2", Down, "alice")
	require.NoError(t, err)

	mine, err := svc.ListByUser(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	all, err := svc.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestService_ListUnresolved_SkipsUndecodableRows(t *testing.T) {
	svc, st := newTestService()
	core, logs := observer.New(zap.WarnLevel)
	svc.WithLogger(zap.New(core))
	seed(t, st, "good", nil)
	require.NoError(t, st.Backing().Put(context.Background(), table, store.Item{
		"id":        &types.AttributeValueMemberS{Value: "corrupt"},
		"createdAt": &types.AttributeValueMemberS{Value: "not-a-time"},
	}))

	guesses, err := svc.ListUnresolved(context.Background())

	require.NoError(t, err)
	require.Len(t, guesses, 1)
	assert.Equal(t, "good", guesses[0].ID)

	skipped := logs.FilterMessage("skipping undecodable guess").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, "corrupt", skipped[0].ContextMap()["guess_id"])
}

func TestService_ListUnresolved_ScanFailure(t *testing.T) {
	svc, st := newTestService()
	st.ScanErr = errors.New("throttled")

	_, err := svc.ListUnresolved(context.Background())

	assert.ErrorIs(t, err, st.ScanErr)
}

// ============================================
// Resolve
// ============================================

func TestService_Resolve_Success(t *testing.T) {
	svc, _ := newTestService()
	resolvedAt := time.Date(2024, 3, 1, 12, 1, 0, 0, time.UTC)
	svc.now = func() time.Time { return resolvedAt }
	ctx := context.Background()

	g, err := svc.Create(ctx, "snap-1", Up, "user-1")
	require.NoError(t, err)

	resolved, err := svc.Resolve(ctx, g.ID, true)

	require.NoError(t, err)
	assert.Equal(t, Correct, resolved.Outcome)
	require.NotNil(t, resolved.ResolvedAt)
	assert.True(t, resolvedAt.Equal(*resolved.ResolvedAt))

	stored, err := svc.FindByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, Correct, stored.Outcome)
}

func TestService_Resolve_LegacyRowWithoutFlag(t *testing.T) {
	svc, st := newTestService()
	seed(t, st, "legacy", nil)

	resolved, err := svc.Resolve(context.Background(), "legacy", false)

	require.NoError(t, err)
	assert.Equal(t, Incorrect, resolved.Outcome)
}

func TestService_Resolve_Twice(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	g, err := svc.Create(ctx, "snap-1", Down, "user-1")
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, g.ID, false)
	require.NoError(t, err)

	_, err = svc.Resolve(ctx, g.ID, true)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	stored, err := svc.FindByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, Incorrect, stored.Outcome)
}

func TestService_Resolve_NotFound(t *testing.T) {
	svc, st := newTestService()

	_, err := svc.Resolve(context.Background(), "ghost", true)

	assert.ErrorIs(t, err, ErrGuessNotFound)
	item, _ := st.Backing().Get(context.Background(), table, "ghost")
	assert.Nil(t, item)
}

func TestService_Resolve_StoreFailure(t *testing.T) {
	svc, st := newTestService()
	st.UpdateErr = errors.New("timeout")

	_, err := svc.Resolve(context.Background(), "g1", true)

	assert.ErrorIs(t, err, st.UpdateErr)
	assert.NotErrorIs(t, err, ErrAlreadyResolved)
}

func TestService_Resolve_SendsGuardedMutation(t *testing.T) {
	svc, st := newTestService()
	seed(t, st, "g1", &types.AttributeValueMemberNULL{Value: true})

	_, err := svc.Resolve(context.Background(), "g1", true)
	require.NoError(t, err)

	require.Len(t, st.UpdateCalls, 1)
	m := st.UpdateCalls[0].Mutation
	assert.Equal(t, true, m.Set["isCorrect"])
	assert.Contains(t, m.Set, "resolvedAt")
	assert.NotNil(t, m.Condition)
}
