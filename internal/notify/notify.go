// Package notify alerts human supervisors when a caller question is escalated.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Notification describes one escalated question.
type Notification struct {
	ID        string    `json:"id"`
	RequestID string    `json:"request_id"`
	Question  string    `json:"question"`
	CallerID  string    `json:"caller_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers a notification on a best-effort basis.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to a structured logger.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier. A nil logger uses slog.Default().
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.logger.InfoContext(ctx, "supervisor help needed",
		"request_id", n.RequestID,
		"caller_id", n.CallerID,
		"question", n.Question,
	)
	return nil
}

// Multi fans a notification out to every notifier. All notifiers are tried;
// their errors are joined.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, nt := range m {
		if err := nt.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", nt, err))
		}
	}
	return errors.Join(errs...)
}
