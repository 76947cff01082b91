// Package notify delivers short texts to users. Delivery is best effort; a
// failed notification never affects the order change that caused it.
package notify

import (
	"context"
	"errors"

	"bombily/pkg/logger"
)

type Notifier interface {
	Notify(ctx context.Context, userID, text string) error
}

// Log writes notifications to the log instead of sending them.
type Log struct {
	log logger.ILogger
}

func NewLog(log logger.ILogger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(_ context.Context, userID, text string) error {
	l.log.Info("notification", logger.String("user_id", userID), logger.String("text", text))
	return nil
}

// Multi sends through every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, userID, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, userID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
