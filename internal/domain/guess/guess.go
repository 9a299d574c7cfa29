package guess

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/example/btc-guess/internal/infrastructure/store"
	"github.com/example/btc-guess/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidDirection = errors.New("direction must be UP or DOWN")
	ErrGuessNotFound    = errors.New("guess not found")
	ErrAlreadyResolved  = errors.New("guess already resolved")
)

// Direction is the predicted move of the next price reading
type Direction string

const (
	Up   Direction = "UP"
	Down Direction = "DOWN"
)

// ParseDirection accepts UP or DOWN in any letter case
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToUpper(strings.TrimSpace(s))) {
	case Up:
		return Up, nil
	case Down:
		return Down, nil
	default:
		return "", ErrInvalidDirection
	}
}

// Outcome is the resolution state of a guess. It only ever moves from
// Unresolved to Correct or Incorrect.
type Outcome int

const (
	Unresolved Outcome = iota
	Correct
	Incorrect
)

func (o Outcome) String() string {
	switch o {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	default:
		return "unresolved"
	}
}

// IsCorrect renders the outcome as the nullable flag clients expect
func (o Outcome) IsCorrect() *bool {
	switch o {
	case Correct:
		v := true
		return &v
	case Incorrect:
		v := false
		return &v
	default:
		return nil
	}
}

// Delta is the score change the outcome is worth
func (o Outcome) Delta() int {
	switch o {
	case Correct:
		return 1
	case Incorrect:
		return -1
	default:
		return 0
	}
}

// OutcomeOf maps a verdict to its outcome
func OutcomeOf(correct bool) Outcome {
	if correct {
		return Correct
	}
	return Incorrect
}

// Guess is a user's prediction against one price snapshot
type Guess struct {
	ID              string
	UserID          string
	PriceSnapshotID string
	Direction       Direction
	Outcome         Outcome
	CreatedAt       time.Time
	ResolvedAt      *time.Time
}

// record is the persisted layout. isCorrect is NULL until resolution;
// older rows may omit it entirely.
type record struct {
	ID              string     `dynamodbav:"id"`
	UserID          string     `dynamodbav:"userId"`
	PriceSnapshotID string     `dynamodbav:"priceSnapshotId"`
	Direction       string     `dynamodbav:"direction"`
	IsCorrect       *bool      `dynamodbav:"isCorrect"`
	CreatedAt       time.Time  `dynamodbav:"createdAt"`
	ResolvedAt      *time.Time `dynamodbav:"resolvedAt,omitempty"`
}

// UnresolvedFilter matches guesses whose isCorrect is absent or NULL
func UnresolvedFilter() store.Filter {
	return store.Or(store.Missing("isCorrect"), store.Equals("isCorrect", nil))
}

// Service handles guess persistence
type Service struct {
	store  store.Store
	table  string
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a new guess service
func NewService(s store.Store, table string) *Service {
	return &Service{store: s, table: table, now: time.Now, logger: zap.NewNop()}
}

// WithLogger sets the logger used to report rows skipped while listing
func (s *Service) WithLogger(logger *zap.Logger) *Service {
	s.logger = logger
	return s
}

// Create records an unresolved guess. The snapshot reference is not checked.
func (s *Service) Create(ctx context.Context, priceSnapshotID string, direction Direction, userID string) (*Guess, error) {
	if direction != Up && direction != Down {
		return nil, ErrInvalidDirection
	}

	g := &Guess{
		ID:              uuid.New().String(),
		UserID:          userID,
		PriceSnapshotID: priceSnapshotID,
		Direction:       direction,
		Outcome:         Unresolved,
		CreatedAt:       s.now().UTC(),
	}

	item, err := attributevalue.MarshalMap(toRecord(g))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal guess: %w", err)
	}
	if err := s.store.Put(ctx, s.table, item); err != nil {
		return nil, fmt.Errorf("failed to save guess: %w", err)
	}

	return g, nil
}

// FindByID returns the guess, or nil when it does not exist
func (s *Service) FindByID(ctx context.Context, id string) (*Guess, error) {
	item, err := s.store.Get(ctx, s.table, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get guess %s: %w", id, err)
	}
	if item == nil {
		return nil, nil
	}
	return Decode(item)
}

// ListAll returns every guess
func (s *Service) ListAll(ctx context.Context) ([]Guess, error) {
	return s.list(ctx, nil)
}

// ListByUser returns the guesses placed by userID
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Guess, error) {
	return s.list(ctx, store.Equals("userId", userID))
}

// ListUnresolved returns the guesses still awaiting a verdict. Rows that fail
// to decode are logged and left out.
func (s *Service) ListUnresolved(ctx context.Context) ([]Guess, error) {
	return s.list(ctx, UnresolvedFilter())
}

// Resolve records the verdict of an unresolved guess. The transition is
// conditional in the store, so concurrent resolvers cannot both succeed.
func (s *Service) Resolve(ctx context.Context, id string, correct bool) (*Guess, error) {
	item, err := s.store.Update(ctx, s.table, id, store.Mutation{
		Set: map[string]any{
			"isCorrect":  correct,
			"resolvedAt": s.now().UTC(),
		},
		Condition: store.And(store.Exists(store.KeyAttribute), UnresolvedFilter()),
	})
	if errors.Is(err, store.ErrConditionFailed) {
		existing, getErr := s.store.Get(ctx, s.table, id)
		if getErr != nil {
			return nil, fmt.Errorf("failed to inspect guess %s: %w", id, getErr)
		}
		if existing == nil {
			return nil, ErrGuessNotFound
		}
		return nil, ErrAlreadyResolved
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve guess %s: %w", id, err)
	}

	return Decode(item)
}

func (s *Service) list(ctx context.Context, filter store.Filter) ([]Guess, error) {
	items, err := s.store.Scan(ctx, s.table, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list guesses: %w", err)
	}

	guesses := make([]Guess, 0, len(items))
	for _, item := range items {
		g, err := Decode(item)
		if err != nil {
			id, _ := store.ItemID(item)
			s.logger.Warn("skipping undecodable guess",
				zap.String("table", s.table),
				zap.String("guess_id", id),
				zap.Error(err),
			)
			metrics.UndecodableItems.WithLabelValues(s.table).Inc()
			continue
		}
		guesses = append(guesses, *g)
	}
	return guesses, nil
}

func toRecord(g *Guess) record {
	return record{
		ID:              g.ID,
		UserID:          g.UserID,
		PriceSnapshotID: g.PriceSnapshotID,
		Direction:       string(g.Direction),
		IsCorrect:       g.Outcome.IsCorrect(),
		CreatedAt:       g.CreatedAt,
		ResolvedAt:      g.ResolvedAt,
	}
}

// Decode converts a stored guess item, including DynamoDB stream images
func Decode(item store.Item) (*Guess, error) {
	var r record
	if err := attributevalue.UnmarshalMap(item, &r); err != nil {
		return nil, fmt.Errorf("failed to decode guess: %w", err)
	}

	outcome := Unresolved
	if r.IsCorrect != nil {
		outcome = OutcomeOf(*r.IsCorrect)
	}

	return &Guess{
		ID:              r.ID,
		UserID:          r.UserID,
		PriceSnapshotID: r.PriceSnapshotID,
		Direction:       Direction(r.Direction),
		Outcome:         outcome,
		CreatedAt:       r.CreatedAt,
		ResolvedAt:      r.ResolvedAt,
	}, nil
}
