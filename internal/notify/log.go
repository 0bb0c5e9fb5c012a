package notify

import (
	"context"

	"github.com/lumenforge/lumenforge-web/internal/log"
)

// LogSink records that a submission arrived. Field values are not logged.
type LogSink struct {
	logger log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	if logger == nil {
		logger = log.Nop()
	}
	return &LogSink{logger: logger}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Deliver(ctx context.Context, s Submission) error {
	l.logger.Info(ctx, "form submission received",
		"submission_id", s.ID,
		"kind", s.Kind,
		"fields", s.FieldNames(),
		"bot_score", s.BotScore,
	)
	return nil
}
