// Package resolution records a price reading each cycle and settles every
// outstanding guess against it.
package resolution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/example/btc-guess/internal/domain/guess"
	"github.com/example/btc-guess/internal/domain/snapshot"
	"github.com/example/btc-guess/internal/events"
	"github.com/example/btc-guess/internal/metrics"
	"github.com/example/btc-guess/internal/pricefeed"
	"go.uber.org/zap"
)

var (
	ErrFeedUnavailable  = errors.New("price feed unavailable")
	ErrPersistSnapshot  = errors.New("failed to persist price snapshot")
	ErrEnumerateGuesses = errors.New("failed to enumerate unresolved guesses")
)

const defaultFeedTimeout = 10 * time.Second

// SkipReason says why a guess was left unresolved in a cycle
type SkipReason string

const (
	SkipReasonMissingSnapshot  SkipReason = "missing_snapshot"
	SkipReasonAwaitingReading  SkipReason = "awaiting_next_reading"
	SkipReasonAlreadyResolved  SkipReason = "already_resolved"
	SkipReasonGuessMissing     SkipReason = "guess_missing"
	SkipReasonInvalidDirection SkipReason = "invalid_direction"
	SkipReasonCancelled        SkipReason = "cancelled"
)

// SnapshotStore is the part of the snapshot service the engine needs
type SnapshotStore interface {
	Create(ctx context.Context, timestamp time.Time, price float64) (*snapshot.PriceSnapshot, error)
	FindByID(ctx context.Context, id string) (*snapshot.PriceSnapshot, error)
}

// GuessLedger is the part of the guess service the engine needs
type GuessLedger interface {
	ListUnresolved(ctx context.Context) ([]guess.Guess, error)
	Resolve(ctx context.Context, id string, correct bool) (*guess.Guess, error)
}

// ScoreLedger applies score deltas
type ScoreLedger interface {
	Apply(ctx context.Context, userID string, delta int) (int, error)
}

// Publisher receives resolution events; Kafka in production
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// Config wires the engine's collaborators
type Config struct {
	Feed      pricefeed.Feed
	Snapshots SnapshotStore
	Guesses   GuessLedger
	Scores    ScoreLedger
	Publisher Publisher // optional
	Logger    *zap.Logger
	// FeedTimeout bounds the price poll; zero means 10s
	FeedTimeout time.Duration
}

// CycleReport summarises one cycle
type CycleReport struct {
	SnapshotID string
	Price      float64
	Unresolved int
	Resolved   int
	Correct    int
	Incorrect  int
	Skipped    int
	Failed     int
	// ScoreFailures counts guesses resolved whose score update then failed
	ScoreFailures int
	Skips         map[SkipReason]int
	Duration      time.Duration
}

func (r *CycleReport) skip(reason SkipReason) {
	r.Skipped++
	r.Skips[reason]++
	metrics.GuessesSkipped.WithLabelValues(string(reason)).Inc()
}

// Engine runs resolution cycles. It holds no state between cycles.
type Engine struct {
	feed        pricefeed.Feed
	snapshots   SnapshotStore
	guesses     GuessLedger
	scores      ScoreLedger
	publisher   Publisher
	logger      *zap.Logger
	feedTimeout time.Duration
	now         func() time.Time
}

// NewEngine creates a resolution engine
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.FeedTimeout
	if timeout <= 0 {
		timeout = defaultFeedTimeout
	}
	return &Engine{
		feed:        cfg.Feed,
		snapshots:   cfg.Snapshots,
		guesses:     cfg.Guesses,
		scores:      cfg.Scores,
		publisher:   cfg.Publisher,
		logger:      logger.Named("resolution"),
		feedTimeout: timeout,
		now:         time.Now,
	}
}

// RunCycle polls the feed, records the reading as a snapshot and resolves
// every unresolved guess against it. A failure before enumeration aborts
// the cycle with nothing resolved; failures on individual guesses are
// logged and counted and never abort the cycle.
//
// A guess only resolves against a reading taken after the snapshot it was
// placed on. Guesses whose snapshot is the one just recorded, or one
// observed no earlier than it, are skipped as SkipReasonAwaitingReading
// and resolve on the next cycle. Guess rows that fail to decode are left
// out of enumeration and never block the rest of the batch.
func (e *Engine) RunCycle(ctx context.Context) (report CycleReport, err error) {
	start := e.now()
	report.Skips = make(map[SkipReason]int)
	defer func() {
		report.Duration = e.now().Sub(start)
		metrics.CycleDuration.Observe(report.Duration.Seconds())
	}()

	price, err := e.poll(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}

	snap, err := e.snapshots.Create(ctx, start, price)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrPersistSnapshot, err)
	}
	report.SnapshotID = snap.ID
	report.Price = snap.Price
	metrics.LastPrice.Set(snap.Price)
	e.logger.Info("price snapshot recorded",
		zap.String("snapshot_id", snap.ID),
		zap.Float64("price", snap.Price),
	)
	e.publishSnapshot(ctx, snap)

	pending, err := e.guesses.ListUnresolved(ctx)
	if err != nil {
		return report, fmt.Errorf("%w: %w", ErrEnumerateGuesses, err)
	}
	report.Unresolved = len(pending)
	if len(pending) == 0 {
		return report, nil
	}

	refs := make(map[string]*snapshot.PriceSnapshot)
	for i := range pending {
		if ctx.Err() != nil {
			for range pending[i:] {
				report.skip(SkipReasonCancelled)
			}
			break
		}
		e.resolveOne(ctx, &pending[i], snap, refs, &report)
	}

	e.logger.Info("resolution cycle completed",
		zap.String("snapshot_id", snap.ID),
		zap.Int("unresolved", report.Unresolved),
		zap.Int("resolved", report.Resolved),
		zap.Int("correct", report.Correct),
		zap.Int("incorrect", report.Incorrect),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, ctx.Err()
}

func (e *Engine) poll(ctx context.Context) (float64, error) {
	pollCtx, cancel := context.WithTimeout(ctx, e.feedTimeout)
	defer cancel()

	price, err := e.feed.CurrentPrice(pollCtx)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0, fmt.Errorf("unusable price %v", price)
	}
	return price, nil
}

func (e *Engine) resolveOne(ctx context.Context, g *guess.Guess, current *snapshot.PriceSnapshot, refs map[string]*snapshot.PriceSnapshot, report *CycleReport) {
	log := e.logger.With(
		zap.String("guess_id", g.ID),
		zap.String("user_id", g.UserID),
		zap.String("snapshot_id", g.PriceSnapshotID),
	)

	if g.Direction != guess.Up && g.Direction != guess.Down {
		log.Warn("guess has invalid direction", zap.String("direction", string(g.Direction)))
		report.skip(SkipReasonInvalidDirection)
		return
	}

	ref, cached := refs[g.PriceSnapshotID]
	if !cached {
		var err error
		ref, err = e.snapshots.FindByID(ctx, g.PriceSnapshotID)
		if err != nil {
			log.Error("failed to load reference snapshot", zap.Error(err))
			report.Failed++
			return
		}
		refs[g.PriceSnapshotID] = ref
	}
	if ref == nil {
		log.Warn("reference snapshot not found, guess left unresolved")
		report.skip(SkipReasonMissingSnapshot)
		return
	}

	// a guess placed on this cycle's reading waits for the next one
	if ref.ID == current.ID || !ref.Timestamp.Before(current.Timestamp) {
		report.skip(SkipReasonAwaitingReading)
		return
	}

	correct := Verdict(g.Direction, ref.Price, current.Price)

	resolved, err := e.guesses.Resolve(ctx, g.ID, correct)
	switch {
	case errors.Is(err, guess.ErrAlreadyResolved):
		log.Debug("guess resolved concurrently, skipping")
		report.skip(SkipReasonAlreadyResolved)
		return
	case errors.Is(err, guess.ErrGuessNotFound):
		log.Warn("guess disappeared before resolution")
		report.skip(SkipReasonGuessMissing)
		return
	case err != nil:
		log.Error("failed to resolve guess", zap.Error(err))
		report.Failed++
		return
	}

	outcome := guess.OutcomeOf(correct)
	report.Resolved++
	if correct {
		report.Correct++
	} else {
		report.Incorrect++
	}
	metrics.GuessesResolved.WithLabelValues(outcome.String()).Inc()

	score, err := e.scores.Apply(ctx, g.UserID, outcome.Delta())
	if err != nil {
		// the verdict stands; the score is not retried
		log.Error("failed to apply score delta", zap.Int("delta", outcome.Delta()), zap.Error(err))
		report.ScoreFailures++
	} else {
		log.Debug("guess resolved",
			zap.Bool("correct", correct),
			zap.Float64("reference_price", ref.Price),
			zap.Float64("price", current.Price),
			zap.Int("score", score),
		)
	}

	resolvedAt := current.Timestamp
	if resolved != nil && resolved.ResolvedAt != nil {
		resolvedAt = *resolved.ResolvedAt
	}
	e.publish(ctx, func() (events.Envelope, error) {
		return events.NewGuessResolved(events.GuessResolved{
			GuessID:         g.ID,
			UserID:          g.UserID,
			PriceSnapshotID: g.PriceSnapshotID,
			Direction:       string(g.Direction),
			IsCorrect:       correct,
			ReferencePrice:  ref.Price,
			ResolvedPrice:   current.Price,
			ScoreDelta:      outcome.Delta(),
			ResolvedAt:      resolvedAt,
		})
	})
}

// Verdict reports whether a guess was right. The price went up only if it
// strictly increased, so an unchanged price counts as DOWN.
func Verdict(direction guess.Direction, referencePrice, currentPrice float64) bool {
	up := currentPrice > referencePrice
	return (direction == guess.Up && up) || (direction == guess.Down && !up)
}

func (e *Engine) publishSnapshot(ctx context.Context, snap *snapshot.PriceSnapshot) {
	e.publish(ctx, func() (events.Envelope, error) {
		return events.NewPriceSnapshotRecorded(events.PriceSnapshotRecorded{
			SnapshotID: snap.ID,
			Price:      snap.Price,
			Timestamp:  snap.Timestamp,
		})
	})
}

func (e *Engine) publish(ctx context.Context, build func() (events.Envelope, error)) {
	if e.publisher == nil {
		return
	}
	env, err := build()
	if err != nil {
		e.logger.Error("failed to build event", zap.Error(err))
		return
	}
	if err := e.publisher.Publish(ctx, env); err != nil {
		e.logger.Warn("failed to publish event",
			zap.String("type", string(env.Type)),
			zap.String("key", env.Key),
			zap.Error(err),
		)
	}
}
