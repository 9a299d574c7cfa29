package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/example/btc-guess/internal/api/middleware"
	"github.com/example/btc-guess/internal/domain/guess"
	"github.com/example/btc-guess/internal/domain/snapshot"
	"github.com/example/btc-guess/internal/metrics"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const serviceName = "btc-guess-backend"

type Handlers struct {
	snapshots *snapshot.Service
	guesses   *guess.Service
	validate  *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func NewHandlers(snapshots *snapshot.Service, guesses *guess.Service, logger *zap.Logger) *Handlers {
	return &Handlers{
		snapshots: snapshots,
		guesses:   guesses,
		validate:  newValidator(),
		logger:    logger.Named("api"),
		now:       time.Now,
	}
}

// PlaceGuessRequest is the body of POST /guesses. PriceSnapshotID, when
// given, must be the latest snapshot the client saw.
type PlaceGuessRequest struct {
	Direction       string `json:"direction" validate:"required,direction"`
	PriceSnapshotID string `json:"priceSnapshotId" validate:"omitempty,uuid"`
}

// GuessResponse exposes isCorrect as null until the guess is resolved
type GuessResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	PriceSnapshotID string     `json:"priceSnapshotId"`
	Direction       string     `json:"direction"`
	IsCorrect       *bool      `json:"isCorrect"`
	Outcome         string     `json:"outcome"`
	CreatedAt       time.Time  `json:"createdAt"`
	ResolvedAt      *time.Time `json:"resolvedAt,omitempty"`
}

func toGuessResponse(g guess.Guess) GuessResponse {
	return GuessResponse{
		ID:              g.ID,
		UserID:          g.UserID,
		PriceSnapshotID: g.PriceSnapshotID,
		Direction:       string(g.Direction),
		IsCorrect:       g.Outcome.IsCorrect(),
		Outcome:         g.Outcome.String(),
		CreatedAt:       g.CreatedAt,
		ResolvedAt:      g.ResolvedAt,
	}
}

func toGuessResponses(guesses []guess.Guess) []GuessResponse {
	out := make([]GuessResponse, 0, len(guesses))
	for _, g := range guesses {
		out = append(out, toGuessResponse(g))
	}
	return out
}

// Service Handlers

func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("BTC Guess Backend API"))
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339Nano),
		"service":   serviceName,
	})
}

// Price Snapshot Handlers

func (h *Handlers) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.snapshots.FindAll(r.Context())
	if err != nil {
		h.internalError(w, "failed to list price snapshots", err)
		return
	}
	if snaps == nil {
		snaps = []snapshot.PriceSnapshot{}
	}
	respondJSON(w, http.StatusOK, snaps)
}

func (h *Handlers) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	latest, err := h.snapshots.FindLatest(r.Context())
	if err != nil {
		h.internalError(w, "failed to find latest price snapshot", err)
		return
	}
	if latest == nil {
		respondJSONError(w, "no price snapshot recorded yet", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, latest)
}

// Guess Handlers

// PlaceGuess records a guess against the latest snapshot
func (h *Handlers) PlaceGuess(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req PlaceGuessRequest
	if err := decodeAndValidate(h.validate, r, &req); err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	direction, err := guess.ParseDirection(req.Direction)
	if err != nil {
		respondJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	latest, err := h.snapshots.FindLatest(r.Context())
	if err != nil {
		h.internalError(w, "failed to find latest price snapshot", err)
		return
	}
	if latest == nil {
		respondJSONError(w, "no price snapshot available yet", http.StatusServiceUnavailable)
		return
	}
	if req.PriceSnapshotID != "" && req.PriceSnapshotID != latest.ID {
		respondJSONError(w, "price snapshot is no longer the latest", http.StatusConflict)
		return
	}

	g, err := h.guesses.Create(r.Context(), latest.ID, direction, userID)
	if err != nil {
		h.internalError(w, "failed to create guess", err)
		return
	}
	metrics.GuessesPlaced.WithLabelValues(string(direction)).Inc()

	h.logger.Info("guess placed",
		zap.String("guess_id", g.ID),
		zap.String("user_id", userID),
		zap.String("snapshot_id", latest.ID),
		zap.String("direction", string(direction)),
	)
	respondJSON(w, http.StatusCreated, toGuessResponse(*g))
}

func (h *Handlers) ListGuesses(w http.ResponseWriter, r *http.Request) {
	guesses, err := h.guesses.ListAll(r.Context())
	if err != nil {
		h.internalError(w, "failed to list guesses", err)
		return
	}
	respondJSON(w, http.StatusOK, toGuessResponses(guesses))
}

func (h *Handlers) MyGuesses(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondJSONError(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	guesses, err := h.guesses.ListByUser(r.Context(), userID)
	if err != nil {
		h.internalError(w, "failed to list guesses", err)
		return
	}
	respondJSON(w, http.StatusOK, toGuessResponses(guesses))
}

func (h *Handlers) internalError(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	respondJSONError(w, "internal server error", http.StatusInternalServerError)
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondJSONError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}
