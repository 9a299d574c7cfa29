package user

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/example/btc-guess/internal/auth"
	"github.com/example/btc-guess/internal/infrastructure/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const table = "users"

func newTestUserService() (*Service, *mocks.MockStore) {
	st := mocks.NewMockStore()
	return NewService(st, table), st
}

// ============================================
// Username Validation Tests
// ============================================

func TestIsValidUsername(t *testing.T) {
	valid := []string{"abc", "satoshi_n", "hal-finney", "A1_b2-C3", "twentycharacters_ok"}
	for _, name := range valid {
		t.Run(name, func(t *testing.T) {
			assert.True(t, IsValidUsername(name))
		})
	}

	invalid := []string{"", "ab", "has space", "emoji🙂", "dot.name", "twenty-one-characters"}
	for _, name := range invalid {
		t.Run(name, func(t *testing.T) {
			assert.False(t, IsValidUsername(name))
		})
	}
}

func TestIsValidUsername_LengthBounds(t *testing.T) {
	assert.False(t, IsValidUsername(strings.Repeat("a", MinUsernameLength-1)))
	assert.True(t, IsValidUsername(strings.Repeat("a", MinUsernameLength)))
	assert.True(t, IsValidUsername(strings.Repeat("a", MaxUsernameLength)))
	assert.False(t, IsValidUsername(strings.Repeat("a", MaxUsernameLength+1)))
}

func TestHasValidUsernameChars(t *testing.T) {
	assert.True(t, HasValidUsernameChars("ab"))
	assert.True(t, HasValidUsernameChars("a_very-long_name_beyond_twenty"))
	assert.False(t, HasValidUsernameChars("sat oshi"))
	assert.False(t, HasValidUsernameChars(""))
}

// ============================================
// Register Tests
// ============================================

func TestService_Register_Success(t *testing.T) {
	svc, st := newTestUserService()

	u, err := svc.Register(context.Background(), "satoshi", "secret123")

	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "satoshi", u.Username)
	assert.Equal(t, 0, u.Score)
	assert.NotEqual(t, "secret123", u.PasswordHash)
	assert.True(t, auth.CheckPassword("secret123", u.PasswordHash))

	require.Len(t, st.PutCalls, 1)
	item := st.PutCalls[0].Item
	assert.Equal(t, "0", item["score"].(*types.AttributeValueMemberN).Value)
	assert.Contains(t, item, "password")
}

func TestService_Register_DuplicateUsername(t *testing.T) {
	svc, st := newTestUserService()
	ctx := context.Background()
	_, err := svc.Register(ctx, "satoshi", "secret123")
	require.NoError(t, err)

	u, err := svc.Register(ctx, "satoshi", "another1")

	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Nil(t, u)
	assert.Len(t, st.PutCalls, 1)
}

func TestService_Register_InvalidUsername(t *testing.T) {
	svc, st := newTestUserService()

	_, err := svc.Register(context.Background(), "x", "secret123")

	assert.ErrorIs(t, err, ErrInvalidUsername)
	assert.Empty(t, st.ScanCalls)
}

func TestService_Register_ShortPassword(t *testing.T) {
	svc, st := newTestUserService()

	_, err := svc.Register(context.Background(), "satoshi", "12345")

	assert.ErrorIs(t, err, auth.ErrPasswordTooShort)
	assert.Empty(t, st.PutCalls)
}

func TestService_Register_ScanFailure(t *testing.T) {
	svc, st := newTestUserService()
	st.ScanErr = errors.New("throttled")

	_, err := svc.Register(context.Background(), "satoshi", "secret123")

	assert.ErrorIs(t, err, st.ScanErr)
	assert.Empty(t, st.PutCalls)
}

// ============================================
// Authenticate Tests
// ============================================

func TestService_Authenticate(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()
	registered, err := svc.Register(ctx, "satoshi", "secret123")
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "satoshi", "secret123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, u.ID)

	_, err = svc.Authenticate(ctx, "satoshi", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody", "secret123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

// ============================================
// Find Tests
// ============================================

func TestService_FindByID(t *testing.T) {
	svc, _ := newTestUserService()
	ctx := context.Background()
	registered, err := svc.Register(ctx, "satoshi", "secret123")
	require.NoError(t, err)

	u, err := svc.FindByID(ctx, registered.ID)
	require.NoError(t, err)
	assert.Equal(t, "satoshi", u.Username)
	assert.True(t, registered.CreatedAt.Equal(u.CreatedAt))

	missing, err := svc.FindByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestService_FindByUsername_Missing(t *testing.T) {
	svc, _ := newTestUserService()

	u, err := svc.FindByUsername(context.Background(), "nobody")

	require.NoError(t, err)
	assert.Nil(t, u)
}
