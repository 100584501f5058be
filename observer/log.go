package observer

import (
	"context"
	"log/slog"
	"time"

	"github.com/syssam/sqlkit"
)

// Log logs connection events with slog. Queries are logged at debug level,
// queries slower than the threshold at warn level and exceptions at error
// level.
type Log struct {
	logger    *slog.Logger
	threshold time.Duration
}

// LogOption configures a Log observer.
type LogOption func(*Log)

// WithSlowThreshold logs queries slower than d at warn level.
func WithSlowThreshold(d time.Duration) LogOption {
	return func(l *Log) {
		l.threshold = d
	}
}

// NewLog returns a Log observer writing to logger.
func NewLog(logger *slog.Logger, opts ...LogOption) *Log {
	l := &Log{logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Observe implements sqlkit.Observer.
func (l *Log) Observe(ctx context.Context, ev sqlkit.Event, subject any) {
	switch s := subject.(type) {
	case error:
		l.logger.ErrorContext(ctx, "sql exception", "error", s)
	case sqlkit.Executed:
		level := slog.LevelDebug
		if l.threshold > 0 && s.Elapsed() > l.threshold {
			level = slog.LevelWarn
		}
		l.logger.Log(ctx, level, "sql "+ev.String(),
			"sql", s.String(),
			"elapsed", s.Elapsed(),
		)
	case *sqlkit.Connection:
		l.logger.DebugContext(ctx, "sql "+ev.String(), "conn", s.ID())
	default:
		l.logger.DebugContext(ctx, "sql "+ev.String())
	}
}
