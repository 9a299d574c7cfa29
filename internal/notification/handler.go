package notification

import (
	"context"
	"fmt"

	"github.com/example/btc-guess/internal/domain/user"
	"github.com/example/btc-guess/internal/events"
	"go.uber.org/zap"
)

// Notification is a message addressed to one user
type Notification struct {
	UserID   string
	Username string
	Subject  string
	Body     string
}

// Sender delivers notifications
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// UserLookup resolves the recipient of a notification
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*user.User, error)
}

// Handler processes events for sending notifications
type Handler struct {
	sender Sender
	users  UserLookup
	logger *zap.Logger
}

// NewHandler creates a new notification handler
func NewHandler(sender Sender, users UserLookup, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		sender: sender,
		users:  users,
		logger: logger.Named("notifier"),
	}
}

// HandleEvent processes an event envelope from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	env, err := events.Parse(value)
	if err != nil {
		h.logger.Warn("failed to parse event", zap.ByteString("key", key), zap.Error(err))
		return err
	}

	// Only guess resolutions are notified
	if env.Type != events.TypeGuessResolved {
		return nil
	}

	var e events.GuessResolved
	if err := env.Decode(&e); err != nil {
		h.logger.Warn("failed to decode GuessResolved", zap.String("event_id", env.ID), zap.Error(err))
		return err
	}
	return h.HandleGuessResolved(ctx, e)
}

// HandleGuessResolved tells the guess owner how their guess turned out.
// An unknown user is logged and dropped; a delivery failure is returned.
func (h *Handler) HandleGuessResolved(ctx context.Context, e events.GuessResolved) error {
	log := h.logger.With(zap.String("guess_id", e.GuessID), zap.String("user_id", e.UserID))

	u, err := h.users.FindByID(ctx, e.UserID)
	if err != nil {
		log.Error("failed to load user", zap.Error(err))
		return fmt.Errorf("failed to load user %s: %w", e.UserID, err)
	}
	if u == nil {
		log.Warn("user not found, dropping notification")
		return nil
	}

	n := Notification{
		UserID:   u.ID,
		Username: u.Username,
		Subject:  BuildResolutionSubject(e),
		Body:     BuildResolutionBody(u.Username, u.Score, e),
	}
	if err := h.sender.Send(ctx, n); err != nil {
		log.Error("failed to send notification", zap.Error(err))
		return err
	}

	log.Info("resolution notification sent", zap.Bool("correct", e.IsCorrect))
	return nil
}
