package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogSender writes notifications to the structured log. Users carry no
// contact address, so this is the delivery channel.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("notification")}
}

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info(n.Subject,
		zap.String("user_id", n.UserID),
		zap.String("username", n.Username),
		zap.String("body", n.Body),
	)
	return nil
}
