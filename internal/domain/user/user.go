package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/example/btc-guess/internal/auth"
	"github.com/example/btc-guess/internal/infrastructure/store"
	"github.com/google/uuid"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidUsername    = errors.New("username must be 3-20 characters of letters, digits, underscores or hyphens")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Username length bounds, in bytes
const (
	MinUsernameLength = 3
	MaxUsernameLength = 20
)

var usernameChars = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// User represents a registered player
type User struct {
	ID           string    `dynamodbav:"id"`
	Username     string    `dynamodbav:"username"`
	PasswordHash string    `dynamodbav:"password"`
	Score        int       `dynamodbav:"score"`
	CreatedAt    time.Time `dynamodbav:"createdAt"`
	UpdatedAt    time.Time `dynamodbav:"updatedAt"`
}

// Service handles user domain operations
type Service struct {
	store store.Store
	table string
	now   func() time.Time
}

// NewService creates a new user service
func NewService(s store.Store, table string) *Service {
	return &Service{store: s, table: table, now: time.Now}
}

// HasValidUsernameChars reports whether username only uses letters, digits,
// underscores and hyphens
func HasValidUsernameChars(username string) bool {
	return usernameChars.MatchString(username)
}

// IsValidUsername applies the full username rule: length and character set
func IsValidUsername(username string) bool {
	n := len(username)
	return n >= MinUsernameLength && n <= MaxUsernameLength && HasValidUsernameChars(username)
}

// Register creates a new user with a zero score. Uniqueness is checked with
// a scan, so two simultaneous registrations of one name can both succeed.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	if !IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}

	existing, err := s.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: passwordHash,
		Score:        0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}
	if err := s.store.Put(ctx, s.table, item); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	return u, nil
}

// Authenticate returns the user whose credentials match
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, err := s.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || !auth.CheckPassword(password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// FindByID returns the user, or nil when it does not exist
func (s *Service) FindByID(ctx context.Context, id string) (*User, error) {
	item, err := s.store.Get(ctx, s.table, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}
	if item == nil {
		return nil, nil
	}
	return decode(item)
}

// FindByUsername returns the user, or nil when no user has that name
func (s *Service) FindByUsername(ctx context.Context, username string) (*User, error) {
	items, err := s.store.Scan(ctx, s.table, store.Equals("username", username))
	if err != nil {
		return nil, fmt.Errorf("failed to find user %s: %w", username, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return decode(items[0])
}

func decode(item store.Item) (*User, error) {
	var u User
	if err := attributevalue.UnmarshalMap(item, &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &u, nil
}
