// Package events defines the messages published when prices are recorded
// and guesses are resolved.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownType = errors.New("unknown event type")
)

// Type names an event
type Type string

const (
	TypePriceSnapshotRecorded Type = "PriceSnapshotRecorded"
	TypeGuessResolved         Type = "GuessResolved"
)

// Envelope wraps every event on the wire
type Envelope struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// PriceSnapshotRecorded is emitted after each successful price poll
type PriceSnapshotRecorded struct {
	SnapshotID string    `json:"snapshotId"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
}

// GuessResolved is emitted once per guess when its outcome is fixed
type GuessResolved struct {
	GuessID         string    `json:"guessId"`
	UserID          string    `json:"userId"`
	PriceSnapshotID string    `json:"priceSnapshotId"`
	Direction       string    `json:"direction"`
	IsCorrect       bool      `json:"isCorrect"`
	ReferencePrice  float64   `json:"referencePrice,omitempty"`
	ResolvedPrice   float64   `json:"resolvedPrice,omitempty"`
	ScoreDelta      int       `json:"scoreDelta"`
	ResolvedAt      time.Time `json:"resolvedAt"`
}

// New wraps data in an envelope with a fresh id
func New(t Type, key string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s: %w", t, err)
	}
	return Envelope{
		ID:        uuid.New().String(),
		Type:      t,
		Key:       key,
		Data:      raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewPriceSnapshotRecorded keys the event by snapshot id
func NewPriceSnapshotRecorded(e PriceSnapshotRecorded) (Envelope, error) {
	return New(TypePriceSnapshotRecorded, e.SnapshotID, e)
}

// NewGuessResolved keys the event by user id so one user's events stay ordered
func NewGuessResolved(e GuessResolved) (Envelope, error) {
	return New(TypeGuessResolved, e.UserID, e)
}

// Parse decodes an envelope from its JSON form
func Parse(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: empty", ErrUnknownType)
	}
	return env, nil
}

// Decode unmarshals the payload into out
func (e Envelope) Decode(out any) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", e.Type, err)
	}
	return nil
}
