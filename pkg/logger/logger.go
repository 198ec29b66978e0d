package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Logger interface for console output
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	// Print writes the message as-is, without timestamp or level prefix
	Print(format string, args ...interface{})
}

// StandardLogger implements Logger interface
type StandardLogger struct {
	verbose bool
	logger  *log.Logger
}

// New creates a new logger writing to stdout
func New(verbose bool) Logger {
	return NewWithWriter(os.Stdout, verbose)
}

// NewWithWriter creates a logger writing to w. A nil writer yields a
// logger that discards everything (quiet mode).
func NewWithWriter(w io.Writer, verbose bool) *StandardLogger {
	l := &StandardLogger{verbose: verbose}
	if w != nil {
		l.logger = log.New(w, "", 0)
	}
	return l
}

// Debug logs debug messages (only in verbose mode)
func (l *StandardLogger) Debug(format string, args ...interface{}) {
	if l.verbose {
		l.logWithLevel("DEBUG", format, args...)
	}
}

// Info logs informational messages
func (l *StandardLogger) Info(format string, args ...interface{}) {
	l.logWithLevel("INFO", format, args...)
}

// Warn logs warning messages
func (l *StandardLogger) Warn(format string, args ...interface{}) {
	l.logWithLevel("WARN", format, args...)
}

// Error logs error messages
func (l *StandardLogger) Error(format string, args ...interface{}) {
	l.logWithLevel("ERROR", format, args...)
}

// Print writes an unprefixed line
func (l *StandardLogger) Print(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf(format, args...)
}

// DebugWriter returns an io.Writer that logs each write at debug level. It
// is meant for http.Server.ErrorLog.
func DebugWriter(l Logger) io.Writer {
	return debugWriter{l}
}

type debugWriter struct{ l Logger }

func (w debugWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.l.Debug("%s", msg)
	return len(p), nil
}

// logWithLevel logs a message with the specified level
func (l *StandardLogger) logWithLevel(level string, format string, args ...interface{}) {
	// Skip logging if logger is nil (quiet mode)
	if l.logger == nil {
		return
	}
	timestamp := time.Now().Format("15:04:05")
	prefix := fmt.Sprintf("[%s] %s: ", timestamp, level)
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%s%s", prefix, message)
}
