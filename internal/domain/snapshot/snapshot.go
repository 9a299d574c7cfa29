package snapshot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/example/btc-guess/internal/infrastructure/store"
	"github.com/example/btc-guess/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidPrice = errors.New("price must be a finite, non-negative number")
)

// PriceSnapshot is one BTC/USD price observation. Snapshots are never
// updated after creation.
type PriceSnapshot struct {
	ID        string    `dynamodbav:"id" json:"id"`
	Timestamp time.Time `dynamodbav:"timestamp" json:"timestamp"`
	Price     float64   `dynamodbav:"price" json:"price"`
	CreatedAt time.Time `dynamodbav:"createdAt" json:"createdAt"`
}

// Service handles price snapshot persistence
type Service struct {
	store  store.Store
	table  string
	now    func() time.Time
	logger *zap.Logger
}

// NewService creates a new snapshot service
func NewService(s store.Store, table string) *Service {
	return &Service{store: s, table: table, now: time.Now, logger: zap.NewNop()}
}

// WithLogger sets the logger used to report rows skipped while listing
func (s *Service) WithLogger(logger *zap.Logger) *Service {
	s.logger = logger
	return s
}

// Create records a price observed at timestamp
func (s *Service) Create(ctx context.Context, timestamp time.Time, price float64) (*PriceSnapshot, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return nil, ErrInvalidPrice
	}

	snap := &PriceSnapshot{
		ID:        uuid.New().String(),
		Timestamp: timestamp.UTC(),
		Price:     price,
		CreatedAt: s.now().UTC(),
	}

	item, err := attributevalue.MarshalMap(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.store.Put(ctx, s.table, item); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	return snap, nil
}

// FindByID returns the snapshot, or nil when it does not exist
func (s *Service) FindByID(ctx context.Context, id string) (*PriceSnapshot, error) {
	item, err := s.store.Get(ctx, s.table, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", id, err)
	}
	if item == nil {
		return nil, nil
	}
	return decode(item)
}

// FindAll returns every snapshot in no particular order. Rows that fail to
// decode are logged and left out.
func (s *Service) FindAll(ctx context.Context) ([]PriceSnapshot, error) {
	items, err := s.store.Scan(ctx, s.table, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	snaps := make([]PriceSnapshot, 0, len(items))
	for _, item := range items {
		snap, err := decode(item)
		if err != nil {
			id, _ := store.ItemID(item)
			s.logger.Warn("skipping undecodable snapshot",
				zap.String("table", s.table),
				zap.String("snapshot_id", id),
				zap.Error(err),
			)
			metrics.UndecodableItems.WithLabelValues(s.table).Inc()
			continue
		}
		snaps = append(snaps, *snap)
	}
	return snaps, nil
}

// FindLatest returns the snapshot with the greatest observation timestamp,
// or nil when none exist. Ties go to the later createdAt, then the greater id.
func (s *Service) FindLatest(ctx context.Context) (*PriceSnapshot, error) {
	snaps, err := s.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}

	latest := snaps[0]
	for _, snap := range snaps[1:] {
		if newer(snap, latest) {
			latest = snap
		}
	}
	return &latest, nil
}

func newer(a, b PriceSnapshot) bool {
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.After(b.Timestamp)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

func decode(item store.Item) (*PriceSnapshot, error) {
	var snap PriceSnapshot
	if err := attributevalue.UnmarshalMap(item, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}
