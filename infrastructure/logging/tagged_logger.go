package logging

import (
	"voicelink/application/logging"
)

// TaggedLogger prefixes every line with a fixed tag, such as the id of a
// connection attempt.
type TaggedLogger struct {
	logger logging.Logger
	tag    string
}

func NewTaggedLogger(logger logging.Logger, tag string) logging.Logger {
	return &TaggedLogger{logger: logger, tag: tag}
}

func (l *TaggedLogger) Printf(format string, v ...any) {
	l.logger.Printf("[%s] "+format, append([]any{l.tag}, v...)...)
}

// DiscardLogger drops everything.
type DiscardLogger struct{}

func (DiscardLogger) Printf(string, ...any) {}
