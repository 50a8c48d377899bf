package services

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger routes cron's own logging into slog. cron reports every
// schedule wake-up at info level, which is debug noise here.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
