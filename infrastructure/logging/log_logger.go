package logging

import (
	"io"
	"log"
	"voicelink/application/logging"
)

// LogLogger writes through a standard library logger. The zero value uses
// the package-level log output.
type LogLogger struct {
	out *log.Logger
}

func NewLogLogger() logging.Logger {
	return &LogLogger{}
}

// NewWriterLogger writes timestamped lines to w.
func NewWriterLogger(w io.Writer) logging.Logger {
	return &LogLogger{out: log.New(w, "", log.LstdFlags|log.Lmicroseconds)}
}

func (l LogLogger) Printf(format string, v ...any) {
	if l.out == nil {
		log.Printf(format, v...)
		return
	}
	l.out.Printf(format, v...)
}
